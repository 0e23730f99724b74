// Package config holds the process wide knobs that change how ephemeral resources
// behave in a given environment (a developer laptop vs CI), read once from the environment.
package config

import (
	"sync"
	"time"

	"github.com/circleci/ephemeral/config/env"
)

type Environment struct {
	// PreserveDirs keeps self owned working directories after teardown for post-mortem.
	PreserveDirs bool
	// RequireServers makes a missing server binary fail tests instead of skipping them.
	RequireServers bool
	// TimeoutScale multiplies every boot and kill timeout, for slow CI machines.
	TimeoutScale float64
	// LogColour turns on ansi colour in the text log output.
	LogColour bool
	// TempRoot is where self owned working directories are created, the
	// system temporary directory when empty.
	TempRoot string
	// ProbeInterval is the default pause between readiness probes.
	ProbeInterval time.Duration
}

var (
	once   sync.Once
	loaded Environment
	vars   env.Vars
	err    error
)

// Load reads the environment on first use. Later calls return the same values.
func Load() (Environment, error) {
	once.Do(func() {
		loaded, vars, err = load()
	})
	return loaded, err
}

// Get is Load ignoring any parse errors; bad values leave the defaults in place.
func Get() Environment {
	e, _ := Load()
	return e
}

// Vars lists the environment variables that are consulted, with their defaults.
func Vars() env.Vars {
	_, _ = Load()
	return vars
}

func load() (Environment, env.Vars, error) {
	e := Environment{
		TimeoutScale:  1,
		ProbeInterval: 100 * time.Millisecond,
	}
	l := env.NewLoader()
	l.Bool(&e.PreserveDirs, "EPHEMERAL_PRESERVE_DIR")
	l.Bool(&e.RequireServers, "EPHEMERAL_REQUIRE_SERVERS")
	l.Float(&e.TimeoutScale, "EPHEMERAL_TIMEOUT_SCALE")
	l.Bool(&e.LogColour, "EPHEMERAL_LOG_COLOUR")
	l.String(&e.TempRoot, "EPHEMERAL_TMPDIR")
	l.Duration(&e.ProbeInterval, "EPHEMERAL_PROBE_INTERVAL")
	if e.TimeoutScale <= 0 {
		e.TimeoutScale = 1
	}
	if e.ProbeInterval <= 0 {
		e.ProbeInterval = 100 * time.Millisecond
	}
	return e, l.VarsUsed(), l.Err()
}

// Scale applies the TimeoutScale to d.
func (e Environment) Scale(d time.Duration) time.Duration {
	if e.TimeoutScale == 0 || e.TimeoutScale == 1 {
		return d
	}
	return time.Duration(float64(d) * e.TimeoutScale)
}
