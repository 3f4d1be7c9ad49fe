// Package config collects the settings of a simulation run from the
// environment. A .env file, when present, fills in variables that the
// environment does not set.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/sarchlab/nnaccel/accel/sched"
)

// EnvPrefix starts the name of every variable read by Load.
const EnvPrefix = "NNACCEL_"

// Data sources for the memories.
const (
	DataRandom = "random"
	DataZero   = "zero"
)

var (
	// ErrInvalidValue is returned when a variable cannot be parsed.
	ErrInvalidValue = errors.New("invalid value")

	// ErrUnknownDataSource is returned for a data source other than
	// DataRandom and DataZero.
	ErrUnknownDataSource = errors.New("unknown data source")
)

// Config holds the settings of one run.
type Config struct {
	Mode sched.Mode
	Dims sched.Dims

	// Data selects how the weight and feature stores are filled.
	Data string
	Seed uint64

	// Feedback routes the feature stream to the result store.
	Feedback bool

	// RequantShift enables layer-1 requantization when non-zero.
	RequantShift uint
	RequantMax   uint32

	// TraceDB is the recorder file to write phase traces to. Empty disables
	// tracing.
	TraceDB string

	// MaxCycles stops a session that runs longer. Zero means no limit.
	MaxCycles uint64

	// UniqueIDs names sessions, tasks, and events with globally unique IDs
	// instead of counting from 1, so traces of several runs can be merged.
	UniqueIDs bool

	Monitor     bool
	MonitorPort int
	OpenBrowser bool

	LogLevel slog.Level
}

// Default returns the full-size convolution run on random data.
func Default() Config {
	return Config{
		Mode:       sched.ModeConvolution,
		Dims:       sched.DefaultDims(),
		Data:       DataRandom,
		Seed:       1,
		RequantMax: 0xff,
		LogLevel:   slog.LevelInfo,
	}
}

// Load reads the given .env files, or ./.env if none is given and it exists,
// and then builds a Config from the environment on top of Default.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		err := godotenv.Load()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	} else {
		err := godotenv.Load(envFiles...)
		if err != nil {
			return Config{}, fmt.Errorf("load %s: %w",
				strings.Join(envFiles, ","), err)
		}
	}

	return FromLookup(os.LookupEnv)
}

// FromEnvMap builds a Config from variables already parsed, for example by
// godotenv.Read.
func FromEnvMap(env map[string]string) (Config, error) {
	return FromLookup(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
}

// FromLookup builds a Config from a variable lookup function.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	c := Default()
	p := parser{lookup: lookup}

	if v, ok := p.get("MODE"); ok {
		m, err := sched.ParseMode(v)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("%sMODE: %w", EnvPrefix, err))
		} else {
			c.Mode = m
		}
	}

	p.intVar("CONV_KERNELS", &c.Dims.ConvKernels)
	p.intVar("CONV_ROW_GROUPS", &c.Dims.ConvRowGroups)
	p.intVar("CONV_CHUNKS", &c.Dims.ConvChunks)
	p.intVar("MATMUL_ROW_GROUPS", &c.Dims.MatmulRowGroups)
	p.intVar("MATMUL_L1_COLS", &c.Dims.MatmulL1Cols)
	p.intVar("MATMUL_L2_COLS", &c.Dims.MatmulL2Cols)

	if v, ok := p.get("DATA"); ok {
		c.Data = strings.ToLower(v)
	}

	p.uintVar("SEED", &c.Seed, 64)
	p.boolVar("FEEDBACK", &c.Feedback)

	var shift, maxWord uint64 = uint64(c.RequantShift), uint64(c.RequantMax)
	p.uintVar("REQUANT_SHIFT", &shift, 5)
	p.uintVar("REQUANT_MAX", &maxWord, 32)
	c.RequantShift = uint(shift)
	c.RequantMax = uint32(maxWord)

	if v, ok := p.get("TRACE_DB"); ok {
		c.TraceDB = v
	}

	p.uintVar("MAX_CYCLES", &c.MaxCycles, 64)
	p.boolVar("UNIQUE_IDS", &c.UniqueIDs)
	p.boolVar("MONITOR", &c.Monitor)
	p.intVar("MONITOR_PORT", &c.MonitorPort)
	p.boolVar("OPEN_BROWSER", &c.OpenBrowser)

	if v, ok := p.get("LOG_LEVEL"); ok {
		err := c.LogLevel.UnmarshalText([]byte(v))
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("%sLOG_LEVEL=%q: %w",
				EnvPrefix, v, ErrInvalidValue))
		}
	}

	if err := errors.Join(p.errs...); err != nil {
		return Config{}, err
	}

	return c, c.Validate()
}

// Validate checks the settings that do not depend on each other's parsing.
func (c Config) Validate() error {
	var errs []error

	if !c.Mode.Valid() {
		errs = append(errs, fmt.Errorf("mode %s: %w", c.Mode,
			sched.ErrUnknownMode))
	}

	if err := c.Dims.Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.Data != DataRandom && c.Data != DataZero {
		errs = append(errs, fmt.Errorf("%q: %w", c.Data, ErrUnknownDataSource))
	}

	if c.MonitorPort < 0 || c.MonitorPort > 65535 {
		errs = append(errs, fmt.Errorf("monitor port %d: %w",
			c.MonitorPort, ErrInvalidValue))
	}

	return errors.Join(errs...)
}

type parser struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (p *parser) get(name string) (string, bool) {
	v, ok := p.lookup(EnvPrefix + name)
	if !ok {
		return "", false
	}

	v = strings.TrimSpace(v)

	return v, v != ""
}

func (p *parser) fail(name, v string) {
	p.errs = append(p.errs,
		fmt.Errorf("%s%s=%q: %w", EnvPrefix, name, v, ErrInvalidValue))
}

func (p *parser) intVar(name string, dst *int) {
	v, ok := p.get(name)
	if !ok {
		return
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(name, v)
		return
	}

	*dst = n
}

func (p *parser) uintVar(name string, dst *uint64, bits int) {
	v, ok := p.get(name)
	if !ok {
		return
	}

	n, err := strconv.ParseUint(v, 0, bits)
	if err != nil {
		p.fail(name, v)
		return
	}

	*dst = n
}

func (p *parser) boolVar(name string, dst *bool) {
	v, ok := p.get(name)
	if !ok {
		return
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(name, v)
		return
	}

	*dst = b
}
