package main

import (
	"fmt"
	"os"
	"path/filepath"

	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "blockwatch.conf"
	defaultDebugLevel     = "info"
	defaultNetwork        = "mainnet"
)

// databaseConfig groups the database.{host,port,username,password,
// database_name} options named in the spec's configuration section.
type databaseConfig struct {
	Host         string `long:"host" description:"Postgres host"`
	Port         uint16 `long:"port" description:"Postgres port" default:"5432"`
	Username     string `long:"username" description:"Postgres username"`
	Password     string `long:"password" description:"Postgres password"`
	DatabaseName string `long:"database_name" description:"Postgres database name"`
}

// mempoolConfig groups the explorer connection options.
type mempoolConfig struct {
	URL     string `long:"url" description:"Base URL of the block explorer"`
	Network string `long:"network" description:"Explorer network segment (omitted for mainnet)" default:"mainnet"`
}

// nostrConfig groups the relay identity and relay-set options. PrivateKey
// is secret and must never be logged.
type nostrConfig struct {
	PrivateKey string   `long:"private_key" description:"Hex-encoded bot identity secret key"`
	Relays     []string `long:"nostr_relays" description:"Relay URLs to connect to"`
}

// daemonConfig is the top-level configuration, parsed first from an
// optional INI file and then overlaid with command-line flags, in that
// order, matching the daemon's historical config-file-then-flags
// precedence.
type daemonConfig struct {
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`

	DebugLevel string `long:"debuglevel" description:"Per-subsystem log level grammar, e.g. INGST=debug,ALRT=info" default:"info"`

	PrometheusListen string `long:"prometheus.listen" description:"Optional listen address for the /metrics endpoint"`

	Database databaseConfig `group:"Database" namespace:"database"`
	Mempool  mempoolConfig  `group:"Mempool" namespace:"mempool"`
	Nostr    nostrConfig    `group:"Nostr" namespace:"nostr"`
}

// defaultConfig returns a daemonConfig populated with every default value.
func defaultConfig() daemonConfig {
	return daemonConfig{
		DebugLevel: defaultDebugLevel,
		Mempool: mempoolConfig{
			Network: defaultNetwork,
		},
	}
}

// loadConfig parses the configuration file (if any) followed by
// command-line flags, the same two-pass precedence the daemon has always
// used so flags can override a stored default.
func loadConfig() (*daemonConfig, error) {
	cfg := defaultConfig()

	preCfg := cfg
	if _, err := flags.NewParser(&preCfg, flags.Default).Parse(); err != nil {
		return nil, err
	}

	configPath := preCfg.ConfigFile
	if configPath == "" {
		configPath = defaultConfigFilename
	}
	if absPath, err := filepath.Abs(configPath); err == nil {
		configPath = absPath
	}

	if _, err := os.Stat(configPath); err == nil {
		parser := flags.NewParser(&cfg, flags.Default)
		if err := flags.NewIniParser(parser).ParseFile(configPath); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", configPath, err)
		}
	}

	if _, err := flags.NewParser(&cfg, flags.Default).Parse(); err != nil {
		return nil, err
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validateConfig enforces the options the daemon cannot run without; it
// deliberately does not validate database/relay reachability, which
// surfaces naturally as a bootstrap error instead.
func validateConfig(cfg *daemonConfig) error {
	if cfg.Mempool.URL == "" {
		return fmt.Errorf("mempool.url is required")
	}
	if cfg.Nostr.PrivateKey == "" {
		return fmt.Errorf("nostr.private_key is required")
	}
	if len(cfg.Nostr.Relays) == 0 {
		return fmt.Errorf("nostr.nostr_relays must list at least one relay")
	}
	if cfg.Database.DatabaseName == "" {
		return fmt.Errorf("database.database_name is required")
	}
	return nil
}
