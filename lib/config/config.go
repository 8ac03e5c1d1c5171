package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/errors"

	derror "github.com/MiSTer-devel/downloader/pkg/errors"
)

// FailPolicy decides what an unrecovered job failure does to the run.
type FailPolicy string

const (
	// FailFast aborts the whole run on the first failure that neither a
	// retry nor a backup job absorbed.
	FailFast = FailPolicy("fail-fast")
	// FailGracefully records the failure and keeps draining unrelated jobs.
	FailGracefully = FailPolicy("fail-gracefully")
)

const (
	defaultThreads      = 20
	defaultMaxCycles    = 3000
	defaultPollInterval = 300 * time.Millisecond
)

// Config is the configuration of the job scheduler.
type Config struct {
	// Threads is the size of the worker pool. 0 and 1 run every job on the
	// goroutine calling Execute, which gives deterministic ordering.
	Threads    int        `toml:"threads" json:"threads"`
	FailPolicy FailPolicy `toml:"fail-policy" json:"fail-policy"`
	// MaxCycles is the number of consecutive retries a job kind may go
	// through before the run is declared a runaway loop.
	MaxCycles int `toml:"max-cycles" json:"max-cycles"`
	// Timeout is the wall-clock budget of a run. Zero disables it.
	Timeout Duration `toml:"timeout" json:"timeout"`
	// PollInterval is the default sleep of WaitForOtherJobs.
	PollInterval Duration `toml:"poll-interval" json:"poll-interval"`

	Log LogConfig `toml:"log" json:"log"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Threads:      defaultThreads,
		FailPolicy:   FailGracefully,
		MaxCycles:    defaultMaxCycles,
		PollInterval: Duration{defaultPollInterval},
		Log:          defaultLogConfig(),
	}
}

// Adjust fills unset or out-of-range fields with their defaults.
func (c Config) Adjust() Config {
	cfg := c
	if cfg.Threads < 0 {
		cfg.Threads = 0
	}
	if cfg.FailPolicy == "" {
		cfg.FailPolicy = FailGracefully
	}
	if cfg.MaxCycles <= 0 {
		cfg.MaxCycles = defaultMaxCycles
	}
	if cfg.Timeout.Duration < 0 {
		cfg.Timeout.Duration = 0
	}
	if cfg.PollInterval.Duration <= 0 {
		cfg.PollInterval.Duration = defaultPollInterval
	}
	cfg.Log = cfg.Log.adjust()
	return cfg
}

// Validate checks the fields Adjust cannot repair.
func (c Config) Validate() error {
	switch c.FailPolicy {
	case FailFast, FailGracefully, "":
	default:
		return errors.Annotatef(derror.ErrInvalidConfig, "unknown fail-policy %q", c.FailPolicy)
	}
	return nil
}

// SingleThreaded tells whether jobs run on the goroutine calling Execute.
func (c Config) SingleThreaded() bool {
	return c.Threads <= 1
}

func (c Config) String() string {
	return fmt.Sprintf("threads=%d fail-policy=%s max-cycles=%d timeout=%s poll-interval=%s",
		c.Threads, c.FailPolicy, c.MaxCycles, c.Timeout, c.PollInterval)
}

// Decode parses a TOML document on top of the defaults. Unknown keys are
// rejected so that typos do not silently fall back to defaults.
func Decode(data string) (Config, error) {
	cfg := DefaultConfig()
	meta, err := toml.Decode(data, &cfg)
	if err != nil {
		return Config{}, errors.Annotate(derror.ErrInvalidConfig, err.Error())
	}
	return finish(cfg, meta)
}

// LoadFile reads the TOML file at path on top of the defaults.
func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, errors.Annotatef(derror.ErrInvalidConfig, "config file %s: %s", path, err)
	}
	return finish(cfg, meta)
}

func finish(cfg Config, meta toml.MetaData) (Config, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, errors.Annotatef(derror.ErrInvalidConfig, "unknown config keys %v", undecoded)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg.Adjust(), nil
}

// Duration is a time.Duration that reads and writes strings like "1m30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Trace(err)
	}
	d.Duration = dur
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}
