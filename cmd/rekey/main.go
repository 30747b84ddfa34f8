// Package main implements the administrative re-keying command: it walks all
// stored credentials below a target key version and re-encrypts them, with a
// dry-run mode and an interactive confirmation before mutating anything.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/passvault/passvault/internal/config"
	"github.com/passvault/passvault/internal/crypto"
	"github.com/passvault/passvault/internal/db"
	"github.com/passvault/passvault/internal/logger"
	"github.com/passvault/passvault/internal/rekey"
	"github.com/passvault/passvault/internal/repository"
	"go.uber.org/zap"
)

func main() {
	targetVersion := flag.Int("to-version", 0, "target key version to re-encrypt passwords to")
	dryRun := flag.Bool("dry-run", false, "show what would be changed without changing anything")
	options := config.Parse()

	if *targetVersion <= 0 {
		fmt.Fprintln(os.Stderr, "-to-version is required")
		os.Exit(2)
	}

	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init("Info"); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	masterKeys, err := options.MasterKeyBytes()
	if err != nil {
		zapLogger.Fatal("cannot parse master keys", zap.Error(err))
	}
	keyring, err := crypto.NewKeyring(masterKeys, options.CurrentKeyVersion, []byte(options.LegacySecret))
	if err != nil {
		zapLogger.Fatal("cannot init keyring", zap.Error(err))
	}
	vault := crypto.NewVault(keyring, zapLogger)

	postgresDB, err := db.InitPostgres(options.DatabaseDSN)
	if err != nil {
		zapLogger.Fatal("cannot init database", zap.Error(err))
	}

	repo := repository.NewPostgresCredentialRepository(postgresDB)
	rekeyer := rekey.New(repo, vault, zapLogger, os.Stdout)
	ctx := context.Background()

	fmt.Printf("Starting password re-keying to version %d\n", *targetVersion)
	if *dryRun {
		fmt.Println("DRY RUN MODE - No changes will be made")
	}

	plan, err := rekeyer.Plan(ctx, *targetVersion)
	if err != nil {
		zapLogger.Fatal("cannot plan re-keying", zap.Error(err))
	}
	fmt.Printf("Total credentials: %d\n", plan.Total)
	fmt.Printf("Already on target version %d: %d\n", *targetVersion, plan.AlreadyOnTarget)
	fmt.Printf("Credentials to re-key: %d\n", plan.ToRekey)

	if plan.ToRekey == 0 {
		fmt.Println("All credentials are already on the target version")
		return
	}

	if !*dryRun && !confirm(plan.ToRekey, *targetVersion) {
		fmt.Println("Aborted")
		os.Exit(1)
	}

	result, err := rekeyer.Execute(ctx, *targetVersion, *dryRun)
	if err != nil {
		zapLogger.Fatal("re-keying failed", zap.Error(err))
	}

	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("Re-keying Summary:")
	fmt.Printf("  Total processed: %d\n", len(result.Records))
	fmt.Printf("  Successful: %d\n", result.Succeeded)
	fmt.Printf("  Failed: %d\n", result.Failed)
	fmt.Println(strings.Repeat("=", 60))

	if result.Failed > 0 {
		fmt.Println("Completed with errors. Check the security logs for details.")
		os.Exit(1)
	}
}

// confirm asks the operator to type "yes" before a mutating run.
func confirm(count int64, targetVersion int) bool {
	fmt.Printf("\nThis will re-key %d credentials to version %d. Are you sure? Type \"yes\" to continue: ",
		count, targetVersion)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(line), "yes")
}
