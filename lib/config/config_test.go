package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pingcap/errors"
	"github.com/stretchr/testify/require"

	derror "github.com/MiSTer-devel/downloader/pkg/errors"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	require.Equal(t, 20, cfg.Threads)
	require.Equal(t, FailGracefully, cfg.FailPolicy)
	require.Equal(t, 3000, cfg.MaxCycles)
	require.Equal(t, time.Duration(0), cfg.Timeout.Duration)
	require.Equal(t, 300*time.Millisecond, cfg.PollInterval.Duration)
	require.False(t, cfg.SingleThreaded())
	require.Equal(t, cfg, cfg.Adjust())
}

func TestAdjust(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Threads:      -3,
		Timeout:      Duration{-time.Second},
		PollInterval: Duration{0},
	}.Adjust()

	require.Equal(t, 0, cfg.Threads)
	require.True(t, cfg.SingleThreaded())
	require.Equal(t, FailGracefully, cfg.FailPolicy)
	require.Equal(t, defaultMaxCycles, cfg.MaxCycles)
	require.Equal(t, time.Duration(0), cfg.Timeout.Duration)
	require.Equal(t, defaultPollInterval, cfg.PollInterval.Duration)
	require.Equal(t, "info", cfg.Log.Level)
}

func TestDecode(t *testing.T) {
	t.Parallel()

	cfg, err := Decode(`
threads = 1
fail-policy = "fail-fast"
max-cycles = 5
timeout = "15m"
poll-interval = "50ms"

[log]
level = "debug"
`)
	require.NoError(t, err)
	require.Equal(t, 1, cfg.Threads)
	require.Equal(t, FailFast, cfg.FailPolicy)
	require.Equal(t, 5, cfg.MaxCycles)
	require.Equal(t, 15*time.Minute, cfg.Timeout.Duration)
	require.Equal(t, 50*time.Millisecond, cfg.PollInterval.Duration)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "text", cfg.Log.Format)
}

func TestDecodeRejectsBadInput(t *testing.T) {
	t.Parallel()

	cases := []string{
		`fail-policy = "fail-sometimes"`,
		`thread = 3`,
		`timeout = "forever"`,
		`threads = "many"`,
	}
	for _, data := range cases {
		_, err := Decode(data)
		require.Error(t, err, data)
		require.Equal(t, derror.ErrInvalidConfig, errors.Cause(err), data)
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "scheduler.toml")
	err := os.WriteFile(path, []byte("threads = 4\n"), 0o644)
	require.NoError(t, err)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.Threads)
	require.Equal(t, FailGracefully, cfg.FailPolicy)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestDurationText(t *testing.T) {
	t.Parallel()

	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	require.Equal(t, 90*time.Second, d.Duration)

	text, err := d.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "1m30s", string(text))
}
