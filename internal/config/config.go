package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables read once at startup.
const (
	EnvURL       = "TEST_URL"
	EnvDumpFileA = "TEST_DUMP_FILE_A"
	EnvDumpFileB = "TEST_DUMP_FILE_B"
)

// FlagDefaultSentinel is the TEST_DUMP_FILE_B value meaning "log to the path
// given by --log-net-log".
const FlagDefaultSentinel = "--log-net-log"

// ErrConfigurationMissing is returned when a required setting is absent.
var ErrConfigurationMissing = errors.New("configuration missing")

type DestinationKind int

const (
	DestinationExplicit DestinationKind = iota + 1
	DestinationFlagDefault
)

func (k DestinationKind) String() string {
	switch k {
	case DestinationExplicit:
		return "explicit"
	case DestinationFlagDefault:
		return "flag-default"
	default:
		return "unknown"
	}
}

// Destination is where a logging cycle writes its net log. Path is only set
// for DestinationExplicit.
type Destination struct {
	Kind DestinationKind
	Path string
}

func Explicit(path string) *Destination {
	return &Destination{Kind: DestinationExplicit, Path: path}
}

func FlagDefault() *Destination {
	return &Destination{Kind: DestinationFlagDefault}
}

func (d *Destination) String() string {
	if d == nil {
		return "unset"
	}
	if d.Kind == DestinationExplicit {
		return d.Path
	}
	return d.Kind.String()
}

type Config struct {
	URL               string
	FirstDestination  *Destination
	SecondDestination *Destination

	NetLogPath  string
	CaptureMode string
	MaxFileSize int64
	StepTimeout time.Duration
	LogLevel    string
}

// Flags holds the command-line settings that are merged with the environment.
type Flags struct {
	NetLogPath  string
	CaptureMode string
	MaxFileSize int64
	StepTimeout time.Duration
	LogLevel    string
	EnvFile     string
}

// Load reads the optional env file, then builds a Config from the process
// environment and flags. Variables already set in the environment take
// precedence over the env file.
func Load(flags Flags) (*Config, error) {
	if flags.EnvFile != "" {
		if err := godotenv.Load(flags.EnvFile); err != nil {
			return nil, fmt.Errorf("reading env file %s: %w", flags.EnvFile, err)
		}
	}
	return FromEnv(os.LookupEnv, flags)
}

// FromEnv builds a Config using lookup for environment access.
func FromEnv(lookup func(string) (string, bool), flags Flags) (*Config, error) {
	cfg := &Config{
		NetLogPath:  flags.NetLogPath,
		CaptureMode: flags.CaptureMode,
		MaxFileSize: flags.MaxFileSize,
		StepTimeout: flags.StepTimeout,
		LogLevel:    flags.LogLevel,
	}
	if cfg.CaptureMode == "" {
		cfg.CaptureMode = "Default"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.URL, _ = lookup(EnvURL)
	if v, ok := lookup(EnvDumpFileA); ok && v != "" {
		cfg.FirstDestination = Explicit(v)
	}
	if v, ok := lookup(EnvDumpFileB); ok && v != "" {
		cfg.SecondDestination = ParseDestination(v)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseDestination maps a raw setting to a Destination. The empty string is
// unset and FlagDefaultSentinel selects the flag-default path.
func ParseDestination(v string) *Destination {
	switch v {
	case "":
		return nil
	case FlagDefaultSentinel:
		return FlagDefault()
	default:
		return Explicit(v)
	}
}

func (c *Config) validate() error {
	if c.URL == "" {
		return fmt.Errorf("config: %s: %w", EnvURL, ErrConfigurationMissing)
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("config: %s: %w", EnvURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("config: %s: unsupported scheme %q", EnvURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("config: %s: no host in %q", EnvURL, c.URL)
	}
	if c.FirstDestination == nil && c.NetLogPath == "" {
		return fmt.Errorf("config: either %s or --log-net-log must be provided: %w", EnvDumpFileA, ErrConfigurationMissing)
	}
	if c.SecondDestination != nil && c.SecondDestination.Kind == DestinationFlagDefault && c.NetLogPath == "" {
		return fmt.Errorf("config: %s=%s requires --log-net-log: %w", EnvDumpFileB, FlagDefaultSentinel, ErrConfigurationMissing)
	}
	if c.MaxFileSize < 0 {
		return fmt.Errorf("config: net log max size must not be negative")
	}
	if c.StepTimeout < 0 {
		return fmt.Errorf("config: timeout must not be negative")
	}
	return nil
}
