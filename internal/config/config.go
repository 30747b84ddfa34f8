// Package config provides functionality for managing configuration options
// for the application using command-line flags and environment variables.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Options holds the configuration values for the application.
type Options struct {
	// Addr defines the server's listening address (ip:port).
	Addr string

	// DatabaseDSN holds the database connection string for the application.
	DatabaseDSN string

	// RedisAddr is the address of the Redis instance backing the throttle
	// counters. Empty means an in-process store (single-node only).
	RedisAddr string

	// MasterKeys maps key version (as a string, for JSON) to master secret.
	MasterKeys map[string]string

	// CurrentKeyVersion is the version used for all new encryptions.
	CurrentKeyVersion int

	// LegacySecret is the secret of the pre-versioning envelope format.
	// Empty means the lowest registered version's secret is used.
	LegacySecret string

	// MaxLoginAttempts before lockout; LoginLockoutMinutes the lockout span.
	MaxLoginAttempts    int
	LoginLockoutMinutes int

	// APIMaxPerMinute / APIMaxPerHour are the rate-limit caps;
	// APILockoutMinutes the lockout set when either is exceeded.
	APIMaxPerMinute   int64
	APIMaxPerHour     int64
	APILockoutMinutes int

	// CertFile and KeyFile enable TLS when both are set.
	CertFile string
	KeyFile  string

	// Config is the path to the Config file.
	Config string
}

// options holds the current configuration values.
var options = &Options{MasterKeys: map[string]string{}}

// masterKeysFlag accepts "1:secret,2:secret" on the command line.
type masterKeysFlag struct{ opts *Options }

func (f masterKeysFlag) String() string { return "" }

func (f masterKeysFlag) Set(value string) error {
	for _, pair := range strings.Split(value, ",") {
		version, secret, ok := strings.Cut(pair, ":")
		if !ok {
			return fmt.Errorf("master key %q: want version:secret", pair)
		}
		f.opts.MasterKeys[version] = secret
	}
	return nil
}

// init initializes command-line flags and sets default values.
func init() {
	flag.StringVar(&options.Addr, "a", "localhost:8080", "run on ip:port server")
	flag.StringVar(&options.DatabaseDSN, "d", "", "db address")
	flag.StringVar(&options.RedisAddr, "r", "", "redis address for throttle state")
	flag.Var(masterKeysFlag{options}, "keys", "master keys as version:secret[,version:secret...]")
	flag.IntVar(&options.CurrentKeyVersion, "key-version", 1, "current encryption key version")
	flag.StringVar(&options.Config, "config", "config.json", "path to config file")
	flag.StringVar(&options.Config, "c", "config.json", "path to config file (shorthand)")
}

// Parse parses the command-line flags and environment variables to set
// configuration values. It returns a pointer to the Options struct containing
// the parsed configuration values.
func Parse() *Options {
	flag.Parse()

	// Override flags with environment variables if set
	if configPath := os.Getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}

	if options.Config != "" {
		if _, err := os.Stat(options.Config); err == nil {
			data, err := os.ReadFile(options.Config)
			if err != nil {
				log.Fatalf("error while reading config file: %v", err)
			}
			if err := json.Unmarshal(data, options); err != nil {
				log.Fatalf("error while parsing config file: %v", err)
			}
		}
	}

	if serverAddress := os.Getenv("SERVER_ADDRESS"); serverAddress != "" {
		options.Addr = serverAddress
	}
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		options.DatabaseDSN = dsn
	}
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		options.RedisAddr = redisAddr
	}
	if keys := os.Getenv("MASTER_KEYS"); keys != "" {
		if err := (masterKeysFlag{options}).Set(keys); err != nil {
			log.Fatalf("error while parsing MASTER_KEYS: %v", err)
		}
	}
	if version := os.Getenv("CURRENT_KEY_VERSION"); version != "" {
		v, err := strconv.Atoi(version)
		if err != nil {
			log.Fatalf("error while parsing CURRENT_KEY_VERSION: %v", err)
		}
		options.CurrentKeyVersion = v
	}

	return options
}

// MasterKeyBytes converts the configured version→secret map to the keyring's
// int-keyed form.
func (o *Options) MasterKeyBytes() (map[int][]byte, error) {
	keys := make(map[int][]byte, len(o.MasterKeys))
	for version, secret := range o.MasterKeys {
		v, err := strconv.Atoi(version)
		if err != nil {
			return nil, fmt.Errorf("invalid key version %q: %w", version, err)
		}
		keys[v] = []byte(secret)
	}
	return keys, nil
}

// LoginLockout returns the configured login lockout duration.
func (o *Options) LoginLockout() time.Duration {
	return time.Duration(o.LoginLockoutMinutes) * time.Minute
}

// APILockout returns the configured API lockout duration.
func (o *Options) APILockout() time.Duration {
	return time.Duration(o.APILockoutMinutes) * time.Minute
}
