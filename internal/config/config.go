// Package config reads a process's settings from the environment and its
// search parameters from the command line.
package config

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"

	"github.com/dreamware/crcsearch/internal/checksum"
	"github.com/dreamware/crcsearch/internal/enumerate"
	"github.com/dreamware/crcsearch/internal/group"
	"github.com/dreamware/crcsearch/internal/partition"
	"github.com/dreamware/crcsearch/internal/tracing"
)

// Transports a process group can run on.
const (
	TransportLocal = "local"
	TransportHTTP  = "http"
	TransportNATS  = "nats"
)

// Config holds one process's environment configuration.
type Config struct {
	Rank      int    `env:"CRC_RANK,default=0"`
	Size      int    `env:"CRC_SIZE,default=1"`
	Transport string `env:"CRC_TRANSPORT,default=local"`

	CoordinatorAddr string        `env:"COORDINATOR_ADDR,default=http://127.0.0.1:8080"`
	ListenAddr      string        `env:"LISTEN_ADDR,default=:8080"`
	PublicAddr      string        `env:"PUBLIC_ADDR"`
	HealthInterval  time.Duration `env:"HEALTH_INTERVAL,default=10s"`

	NATSURL string `env:"NATS_URL,default=nats://127.0.0.1:4222"`
	RunID   string `env:"RUN_ID,default=crcsearch"`

	BootstrapTimeout time.Duration `env:"BOOTSTRAP_TIMEOUT,default=2m"`
	Partition        string        `env:"PARTITION,default=round-robin"`
	Alphabet         string        `env:"ALPHABET,default=printable"`
	ChecksumVariant  string        `env:"CHECKSUM_VARIANT"`
	ResultsFile      string        `env:"RESULTS_FILE,default=results.txt"`

	MetricsAddr      string `env:"METRICS_ADDR"`
	TracerServerAddr string `env:"TRACER_SERVER_ADDR"`
	TracerSecret     string `env:"TRACER_SECRET"`
	LogLevel         string `env:"LOG_LEVEL,default=info"`
}

// Load reads the configuration from the process environment.
func Load(ctx context.Context) (*Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith reads the configuration from l and validates it.
func LoadWith(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var c Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &c, Lookuper: l}); err != nil {
		return nil, errors.Wrap(err, "read environment")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the values that cannot be checked by their type alone.
func (c *Config) Validate() error {
	if err := partition.Validate(c.Rank, c.Size); err != nil {
		return errors.Wrap(err, "CRC_RANK/CRC_SIZE")
	}
	switch c.Transport {
	case TransportLocal:
		if c.Size != 1 {
			return errors.Errorf("the %s transport runs a single process, CRC_SIZE is %d", c.Transport, c.Size)
		}
	case TransportHTTP, TransportNATS:
	default:
		return errors.Errorf("unknown CRC_TRANSPORT %q", c.Transport)
	}
	if c.BootstrapTimeout <= 0 {
		return errors.Errorf("BOOTSTRAP_TIMEOUT must be positive, got %v", c.BootstrapTimeout)
	}
	if _, err := partition.ParseStrategy(c.Partition); err != nil {
		return errors.Wrap(err, "PARTITION")
	}
	if _, err := enumerate.Preset(c.Alphabet); err != nil {
		return errors.Wrap(err, "ALPHABET")
	}
	if c.ChecksumVariant != "" {
		if _, err := checksum.ParseVariant(c.ChecksumVariant); err != nil {
			return errors.Wrap(err, "CHECKSUM_VARIANT")
		}
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "LOG_LEVEL")
	}
	return nil
}

// Strategy returns the configured partition strategy.
func (c *Config) Strategy() partition.Strategy {
	s, _ := partition.ParseStrategy(c.Partition)
	return s
}

// DefaultAlphabet returns the alphabet preset used when the coordinator is
// given no alphabet argument.
func (c *Config) DefaultAlphabet() enumerate.Alphabet {
	a, _ := enumerate.Preset(c.Alphabet)
	return a
}

// Oracle returns the configured checksum oracle, or the one the CPU supports
// best when none is forced.
func (c *Config) Oracle() (*checksum.Oracle, error) {
	if c.ChecksumVariant == "" {
		return checksum.NewDetected(), nil
	}
	v, err := checksum.ParseVariant(c.ChecksumVariant)
	if err != nil {
		return nil, err
	}
	return checksum.New(v)
}

// Tracing returns the tracing settings for a process called identity.
func (c *Config) Tracing(identity string) tracing.Config {
	return tracing.Config{
		ServerAddress: c.TracerServerAddr,
		Identity:      identity,
		Secret:        []byte(c.TracerSecret),
	}
}

// ConfigureLogging sets up logrus for this process.
func (c *Config) ConfigureLogging() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stderr)
	if level, err := log.ParseLevel(c.LogLevel); err == nil {
		log.SetLevel(level)
	}
}

// OpenGroup joins the configured process group.
func (c *Config) OpenGroup() (group.Comm, error) {
	switch c.Transport {
	case TransportLocal:
		return group.NewLocal(1)[0], nil
	case TransportHTTP:
		cfg := group.HTTPConfig{
			Rank:            c.Rank,
			Size:            c.Size,
			Listen:          c.ListenAddr,
			CoordinatorAddr: strings.TrimRight(c.CoordinatorAddr, "/"),
			PublicAddr:      strings.TrimRight(c.PublicAddr, "/"),
			HealthInterval:  c.HealthInterval,
		}
		if c.Rank == group.Root {
			return group.NewHTTPRoot(cfg)
		}
		return group.NewHTTPWorker(cfg)
	case TransportNATS:
		return group.NewNATS(group.NATSConfig{
			URL:   c.NATSURL,
			Rank:  c.Rank,
			Size:  c.Size,
			RunID: c.RunID,
		})
	}
	return nil, errors.Errorf("unknown CRC_TRANSPORT %q", c.Transport)
}

// Args are the coordinator's positional arguments.
type Args struct {
	Target   uint32
	Alphabet enumerate.Alphabet
}

// ParseArgs parses `<hash> [alphabet] [alphabet-length]`. The hash is
// hexadecimal, with or without a 0x prefix. def stands in for a missing
// alphabet.
func ParseArgs(args []string, def enumerate.Alphabet) (Args, error) {
	if len(args) < 1 || len(args) > 3 {
		return Args{}, errors.Errorf("expected 1 to 3 arguments, got %d", len(args))
	}
	target, err := ParseTarget(args[0])
	if err != nil {
		return Args{}, err
	}
	var alphabet, length string
	if len(args) > 1 {
		alphabet = args[1]
	}
	if len(args) > 2 {
		length = args[2]
	}
	a, err := enumerate.ParseAlphabet(def, alphabet, length)
	if err != nil {
		return Args{}, err
	}
	return Args{Target: target, Alphabet: a}, nil
}

// ParseTarget parses a 32-bit hexadecimal checksum.
func ParseTarget(s string) (uint32, error) {
	h := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil || h == "" {
		return 0, errors.Errorf("hash %q is not a 32-bit hexadecimal number", s)
	}
	return uint32(v), nil
}
