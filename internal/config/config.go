// Package config provides functionality for managing configuration options
// for the application using command-line flags, a config file and
// environment variables.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Options holds the configuration values for the application.
type Options struct {
	// Port defines the server's listening address (ip:port).
	Port string `json:"port" yaml:"port"`

	// CacheDir is the root of the filesystem store.
	CacheDir string `json:"cache_dir" yaml:"cache_dir"`

	// DatabaseDSN selects the PostgreSQL store when set.
	DatabaseDSN string `json:"database_dsn" yaml:"database_dsn"`

	// Provider is the carrier backend: signalwire or voipms.
	Provider string `json:"provider" yaml:"provider"`

	LogLevel string `json:"log_level" yaml:"log_level"`

	// BeforeClosingBodyTag is injected into the index page.
	BeforeClosingBodyTag string `json:"before_closing_body_tag" yaml:"before_closing_body_tag"`

	// ProvisionTTL and CacheRetention are read from the file as
	// duration strings through fileOptions.
	ProvisionTTL   time.Duration `json:"-" yaml:"-"`
	ChunkSize      int           `json:"chunk_size" yaml:"chunk_size"`
	CacheRetention time.Duration `json:"-" yaml:"-"`

	TLSCert string `json:"tls_cert" yaml:"tls_cert"`
	TLSKey  string `json:"tls_key" yaml:"tls_key"`

	// Config is the path to the config file.
	Config string `json:"-" yaml:"-"`
}

// fileOptions mirrors Options with durations as strings ("10m", "24h").
type fileOptions struct {
	Options        `yaml:",inline"`
	ProvisionTTL   string `json:"provision_ttl" yaml:"provision_ttl"`
	CacheRetention string `json:"cache_retention" yaml:"cache_retention"`
}

// Parse parses the process flags and environment. Errors are fatal.
func Parse() *Options {
	opts, err := ParseArgs(flag.CommandLine, os.Args[1:], os.Getenv)
	if err != nil {
		log.Fatalf("error while loading config: %v", err)
	}
	return opts
}

// ParseArgs applies, in order: flag defaults and values, the config file,
// and environment variables.
func ParseArgs(fs *flag.FlagSet, args []string, getenv func(string) string) (*Options, error) {
	options := &Options{}

	fs.StringVar(&options.Port, "a", ":5000", "run on ip:port server")
	fs.StringVar(&options.CacheDir, "cache", "cache", "cache directory")
	fs.StringVar(&options.DatabaseDSN, "d", "", "db address")
	fs.StringVar(&options.Provider, "provider", "signalwire", "sms provider (signalwire, voipms)")
	fs.StringVar(&options.LogLevel, "log-level", "info", "log level")
	fs.DurationVar(&options.ProvisionTTL, "provision-ttl", 10*time.Minute, "provisioning descriptor lifetime")
	fs.IntVar(&options.ChunkSize, "chunk", 160, "sms segment length")
	fs.DurationVar(&options.CacheRetention, "cache-retention", 24*time.Hour, "age after which cached messages are swept")
	fs.StringVar(&options.TLSCert, "tls-cert", "", "TLS certificate file")
	fs.StringVar(&options.TLSKey, "tls-key", "", "TLS key file")
	fs.StringVar(&options.Config, "config", "config.json", "path to config file")
	fs.StringVar(&options.Config, "c", "config.json", "path to config file (shorthand)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if configPath := getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}
	if options.Config != "" {
		if _, err := os.Stat(options.Config); err == nil {
			if err := loadFile(options.Config, options); err != nil {
				return nil, err
			}
		}
	}

	if v := getenv("PORT"); v != "" {
		options.Port = ":" + strings.TrimPrefix(v, ":")
	}
	if v := getenv("SERVER_ADDRESS"); v != "" {
		options.Port = v
	}
	if v := getenv("CACHE"); v != "" {
		options.CacheDir = v
	}
	if v := getenv("DATABASE_DSN"); v != "" {
		options.DatabaseDSN = v
	}
	if v := getenv("PROVIDER"); v != "" {
		options.Provider = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		options.LogLevel = v
	}
	if v := getenv("BEFORE_CLOSING_BODY_TAG"); v != "" {
		options.BeforeClosingBodyTag = v
	}
	if v := getenv("PROVISION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("PROVISION_TTL: %w", err)
		}
		options.ProvisionTTL = d
	}

	return options, nil
}

func loadFile(path string, options *Options) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error while reading config file: %w", err)
	}

	file := fileOptions{Options: *options}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &file)
	default:
		err = json.Unmarshal(data, &file)
	}
	if err != nil {
		return fmt.Errorf("error while parsing config file: %w", err)
	}

	if file.ProvisionTTL != "" {
		if file.Options.ProvisionTTL, err = time.ParseDuration(file.ProvisionTTL); err != nil {
			return fmt.Errorf("provision_ttl: %w", err)
		}
	}
	if file.CacheRetention != "" {
		if file.Options.CacheRetention, err = time.ParseDuration(file.CacheRetention); err != nil {
			return fmt.Errorf("cache_retention: %w", err)
		}
	}

	file.Options.Config = options.Config
	*options = file.Options
	return nil
}
