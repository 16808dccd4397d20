// Package config assembles the runtime settings from defaults, a YAML file,
// a .env file, HOTDOG_* environment variables and command line flags, in
// that order of increasing precedence.
package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const envPrefix = "HOTDOG"

// commands
const (
	CommandServe   = "serve"
	CommandConnect = "connect"
	CommandSetup   = "setup"
)

const (
	DefaultListen     = ":8080"
	DefaultSessionTTL = 10 * time.Minute
	DefaultBridgeWait = 10 * time.Second
	DefaultDogImage   = "https://images.dog.ceo/breeds/pitbull/dog-3981540_1280.jpg"
	DefaultLogLevel   = "info"
	DefaultConfigOut  = "config.gen.yaml"
)

type Config struct {
	Listen string `yaml:"listen" envconfig:"LISTEN"`
	// RPCURL is the JSON-RPC endpoint used by `hotdog connect`.
	RPCURL  string `yaml:"rpc_url,omitempty" envconfig:"RPC_URL"`
	ChainID uint64 `yaml:"chain_id,omitempty" envconfig:"CHAIN_ID"`
	// RequestTimeout bounds every wallet request, 0 waits as long as the wallet does.
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty" envconfig:"REQUEST_TIMEOUT"`
	SessionTTL     time.Duration `yaml:"session_ttl" envconfig:"SESSION_TTL"`
	BridgeWait     time.Duration `yaml:"bridge_wait" envconfig:"BRIDGE_WAIT"`
	JournalDir     string        `yaml:"journal_dir,omitempty" envconfig:"JOURNAL_DIR"`
	DogImage       string        `yaml:"dog_image" envconfig:"DOG_IMAGE"`
	TLSDomains     []string      `yaml:"tls_domains,omitempty" envconfig:"TLS_DOMAINS"`
	CertCache      string        `yaml:"cert_cache,omitempty" envconfig:"CERT_CACHE"`
	LogLevel       string        `yaml:"log_level" envconfig:"LOG_LEVEL"`

	Command    string `yaml:"-" ignored:"true"`
	ConfigPath string `yaml:"-" ignored:"true"`
}

// Default returns the settings used when nothing else is configured.
func Default() Config {
	return Config{
		Listen:     DefaultListen,
		SessionTTL: DefaultSessionTTL,
		BridgeWait: DefaultBridgeWait,
		DogImage:   DefaultDogImage,
		LogLevel:   DefaultLogLevel,
		Command:    CommandServe,
	}
}

// Get reads the configuration for the process arguments.
func Get() (Config, error) {
	return Load(os.Args[1:], os.Stderr)
}

// Load parses args as `[flags] [serve|connect|setup]`.
func Load(args []string, usageOut io.Writer) (Config, error) {
	fs := flag.NewFlagSet("hotdog", flag.ContinueOnError)
	fs.SetOutput(usageOut)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: hotdog [flags] [%s|%s|%s]\n", CommandServe, CommandConnect, CommandSetup)
		fs.PrintDefaults()
	}

	configPath := fs.String("config", "", "path to yaml config")
	envFile := fs.String("env-file", ".env", "dotenv file loaded before reading HOTDOG_* variables")
	listen := fs.String("listen", DefaultListen, "http listen address")
	rpcURL := fs.String("rpc-url", "", "JSON-RPC endpoint for `hotdog connect`")
	chainID := fs.Uint64("chain-id", 0, "expected chain id of --rpc-url, 0 accepts any")
	requestTimeout := fs.Duration("request-timeout", 0, "per wallet request timeout, 0 disables")
	journalDir := fs.String("journal-dir", "", "directory of the connect journal, empty disables it")
	logLevel := fs.String("log-level", DefaultLogLevel, "debug, info, warn or error")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if err := loadEnvFile(*envFile); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if *configPath != "" {
		if err := loadYaml(*configPath, &cfg); err != nil {
			return Config{}, err
		}
		cfg.ConfigPath = *configPath
	}

	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "read environment")
	}

	// only flags given explicitly override file and environment
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Listen = *listen
		case "rpc-url":
			cfg.RPCURL = *rpcURL
		case "chain-id":
			cfg.ChainID = *chainID
		case "request-timeout":
			cfg.RequestTimeout = *requestTimeout
		case "journal-dir":
			cfg.JournalDir = *journalDir
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	switch fs.NArg() {
	case 0:
	case 1:
		cfg.Command = fs.Arg(0)
	default:
		return Config{}, errors.Errorf("unexpected arguments: %s", strings.Join(fs.Args()[1:], " "))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the combination of settings.
func (c Config) Validate() error {
	switch c.Command {
	case CommandServe, CommandConnect, CommandSetup:
	default:
		return errors.Errorf("unknown command %q", c.Command)
	}
	if c.Listen == "" {
		return errors.New("listen address is required")
	}
	if c.RequestTimeout < 0 {
		return errors.Errorf("request_timeout must not be negative, got %s", c.RequestTimeout)
	}
	if c.SessionTTL <= 0 {
		return errors.Errorf("session_ttl must be positive, got %s", c.SessionTTL)
	}
	if c.BridgeWait <= 0 {
		return errors.Errorf("bridge_wait must be positive, got %s", c.BridgeWait)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log_level")
	}
	return nil
}

// WriteYAML stores c at path, the format Load reads with --config.
func (c Config) WriteYAML(path string) error {
	payload, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

func loadYaml(path string, cfg *Config) error {
	f, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read yaml config")
	}
	if err := yaml.Unmarshal(f, cfg); err != nil {
		return errors.Wrapf(err, "incorrect yaml config %s", path)
	}
	return nil
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return errors.Wrapf(err, "load %s", path)
	}
	return nil
}
