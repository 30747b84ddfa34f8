// Package rekey implements the administrative batch job that re-encrypts
// stored credential envelopes to a newer key version.
package rekey

import (
	"context"
	"fmt"
	"io"

	"github.com/passvault/passvault/internal/crypto"
	"github.com/passvault/passvault/internal/models"
	"go.uber.org/zap"
)

// Repository defines the persistence operations needed by the rekeyer. It
// spans all owners: rekeying is an administrative path.
type Repository interface {
	Count(ctx context.Context) (int64, error)
	CountWithVersion(ctx context.Context, version int) (int64, error)
	ListBelowVersion(ctx context.Context, version int) ([]models.Credential, error)
	// UpdateEnvelope persists envelope and key version atomically for one
	// record; a failure for one record must not corrupt others.
	UpdateEnvelope(ctx context.Context, owner, id, envelope string, keyVersion int) error
}

// Plan is the read-only report of what a rekey run would touch.
type Plan struct {
	Total           int64
	AlreadyOnTarget int64
	ToRekey         int64
}

// RecordResult is the per-record outcome of an Execute run.
type RecordResult struct {
	ID          string
	Name        string
	FromVersion int
	Err         error
}

// Result summarizes an Execute run.
type Result struct {
	Succeeded int
	Failed    int
	Records   []RecordResult
}

// Rekeyer walks all records below a target key version and re-encrypts them,
// one transaction per record, best effort: a failed record is logged and
// skipped, never aborting the batch. Running it twice is idempotent; the
// second run finds nothing below the target.
type Rekeyer struct {
	repo  Repository
	vault *crypto.Vault
	log   *zap.Logger
	out   io.Writer
}

// New constructs a Rekeyer. Progress lines are written to out.
func New(repo Repository, vault *crypto.Vault, log *zap.Logger, out io.Writer) *Rekeyer {
	return &Rekeyer{repo: repo, vault: vault, log: log, out: out}
}

// Plan reports how many records a run targeting the given version would
// process, without mutating anything.
func (r *Rekeyer) Plan(ctx context.Context, targetVersion int) (Plan, error) {
	total, err := r.repo.Count(ctx)
	if err != nil {
		return Plan{}, err
	}
	onTarget, err := r.repo.CountWithVersion(ctx, targetVersion)
	if err != nil {
		return Plan{}, err
	}
	below, err := r.repo.ListBelowVersion(ctx, targetVersion)
	if err != nil {
		return Plan{}, err
	}
	return Plan{Total: total, AlreadyOnTarget: onTarget, ToRekey: int64(len(below))}, nil
}

// Execute re-encrypts every record below targetVersion to targetVersion. In
// dry-run mode it decrypts and reports but writes nothing. Interactive
// confirmation is the caller's job (see cmd/rekey).
func (r *Rekeyer) Execute(ctx context.Context, targetVersion int, dryRun bool) (Result, error) {
	creds, err := r.repo.ListBelowVersion(ctx, targetVersion)
	if err != nil {
		return Result{}, err
	}

	var result Result
	for _, cred := range creds {
		record := RecordResult{ID: cred.ID, Name: cred.Name, FromVersion: cred.KeyVersion}
		record.Err = r.rekeyOne(ctx, cred, targetVersion, dryRun)
		if record.Err != nil {
			result.Failed++
			r.log.Error("failed to rekey credential",
				zap.String("credential_id", cred.ID),
				zap.Int("from_version", cred.KeyVersion),
				zap.Int("to_version", targetVersion),
				zap.Error(record.Err),
			)
			fmt.Fprintf(r.out, "Failed to re-key credential %s: %v\n", cred.ID, record.Err)
		} else {
			result.Succeeded++
			if dryRun {
				fmt.Fprintf(r.out, "[DRY RUN] Would re-key credential %s (%s) from version %d to %d\n",
					cred.ID, cred.Name, cred.KeyVersion, targetVersion)
			} else {
				r.log.Info("rekeyed credential",
					zap.String("credential_id", cred.ID),
					zap.Int("from_version", cred.KeyVersion),
					zap.Int("to_version", targetVersion),
				)
				fmt.Fprintf(r.out, "Re-keyed credential %s (%s) from version %d to %d\n",
					cred.ID, cred.Name, cred.KeyVersion, targetVersion)
			}
		}
		result.Records = append(result.Records, record)
	}
	return result, nil
}

func (r *Rekeyer) rekeyOne(ctx context.Context, cred models.Credential, targetVersion int, dryRun bool) error {
	plaintext, err := r.vault.Decrypt(cred.Envelope, cred.KeyVersion)
	if err != nil {
		return fmt.Errorf("decrypt under version %d: %w", cred.KeyVersion, err)
	}
	if dryRun {
		return nil
	}
	envelope, err := r.vault.EncryptWithVersion(plaintext, targetVersion)
	if err != nil {
		return fmt.Errorf("encrypt under version %d: %w", targetVersion, err)
	}
	return r.repo.UpdateEnvelope(ctx, cred.Owner, cred.ID, envelope, targetVersion)
}
