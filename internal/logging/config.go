package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel     = "CXLCTL_LOG_LEVEL"
	EnvLogTimestamp = "CXLCTL_LOG_TIMESTAMP"
	EnvLogNoColor   = "CXLCTL_LOG_NOCOLOR"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Verbosity bits selected with -V on the command line.
const (
	VerboseGeneral   uint64 = 1 << 0
	VerboseCallstack uint64 = 1 << 1
	VerboseSteps     uint64 = 1 << 2
)

// Config is the resolved logger setup.
type Config struct {
	Level     zerolog.Level
	Timestamp bool
	NoColor   bool
	Out       io.Writer
}

var configureOnce sync.Once

func ConfigureRuntime(verbosity uint64) {
	Configure(ProfileRuntime, verbosity)
}

func ConfigureTests() {
	Configure(ProfileTest, 0)
}

// Configure installs the global logger once per process. Verbosity bits
// raise the level of the runtime profile; environment overrides win.
func Configure(profile Profile, verbosity uint64) {
	configureOnce.Do(func() {
		cfg := defaultConfig(profile)
		if lvl, ok := VerbosityLevel(verbosity); ok && lvl < cfg.Level {
			cfg.Level = lvl
		}
		applyEnvOverrides(&cfg)
		install(cfg)
	})
}

func defaultConfig(profile Profile) Config {
	cfg := Config{Out: colorable.NewColorableStderr()}
	switch profile {
	case ProfileTest:
		cfg.Level = zerolog.DebugLevel
		cfg.Timestamp = false
		cfg.Out = os.Stderr
		cfg.NoColor = true
	default:
		cfg.Level = zerolog.WarnLevel
		cfg.Timestamp = true
		cfg.NoColor = !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd())
	}
	return cfg
}

func install(cfg Config) {
	output := zerolog.ConsoleWriter{
		Out:        cfg.Out,
		NoColor:    cfg.NoColor,
		TimeFormat: time.RFC3339,
	}
	if !cfg.Timestamp {
		output.PartsExclude = []string{zerolog.TimestampFieldName}
	}
	zerolog.SetGlobalLevel(cfg.Level)
	ctx := zerolog.New(output).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	log.Logger = ctx.Logger()
}

// VerbosityLevel maps a verbosity mask to a log level. The highest set bit
// wins; an empty mask reports false.
func VerbosityLevel(mask uint64) (zerolog.Level, bool) {
	switch {
	case mask&VerboseSteps != 0:
		return zerolog.TraceLevel, true
	case mask&VerboseCallstack != 0:
		return zerolog.DebugLevel, true
	case mask&VerboseGeneral != 0:
		return zerolog.InfoLevel, true
	default:
		return zerolog.NoLevel, false
	}
}

// Component returns a sub-logger tagged with name. A non-empty verbosity
// mask sets its own level.
func Component(name string, verbosity uint64) zerolog.Logger {
	l := log.Logger.With().Str("component", name).Logger()
	if lvl, ok := VerbosityLevel(verbosity); ok {
		l = l.Level(lvl)
	}
	return l
}

func applyEnvOverrides(cfg *Config) {
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace", "steps":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
