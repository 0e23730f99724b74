package resource

import (
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"time"

	"github.com/circleci/ephemeral/config"
)

const (
	DefaultHost          = "127.0.0.1"
	DefaultBootTimeout   = 10 * time.Second
	DefaultKillTimeout   = 10 * time.Second
	DefaultProbeInterval = 100 * time.Millisecond
)

// Settings configure one controller. They are copied on construction, later
// changes by the caller have no effect.
type Settings struct {
	// BaseDir is the working directory. When empty a fresh temporary directory
	// is created and removed again on Stop. A caller supplied directory is
	// never removed.
	BaseDir string
	// Host the server listens on.
	Host string
	// Port pins the server port, 0 picks a free one.
	Port int

	// BootTimeout bounds the time between spawn and readiness.
	BootTimeout time.Duration
	// KillTimeout bounds the time between the terminate signal and a kill.
	KillTimeout time.Duration
	// ProbeInterval is the pause between readiness probes.
	ProbeInterval time.Duration

	// CopyDataFrom seeds the data directory before initialisation. It is a
	// directory, or a snapshot archive written by Factory.Snapshot.
	CopyDataFrom string

	// Env is added to the server's environment.
	Env []string
	// Options are kind specific, merged over Kind.DefaultOptions.
	Options map[string]string

	// OnReady runs once when the server is running. An error stops the
	// server and fails the start.
	OnReady Hook
	// Warn receives problems that cannot be returned, such as a failed
	// directory removal during Stop.
	Warn func(error)
}

// Option returns a kind specific option, or the empty string.
func (s Settings) Option(name string) string {
	return s.Options[name]
}

func (s Settings) resolve(k Kind) (Settings, error) {
	out := s
	out.Env = slices.Clone(s.Env)
	out.Options = maps.Clone(k.DefaultOptions)
	if out.Options == nil {
		out.Options = map[string]string{}
	}
	maps.Copy(out.Options, s.Options)

	if out.Host == "" {
		out.Host = DefaultHost
	}
	if out.Port < 0 || out.Port > 65535 {
		return Settings{}, fmt.Errorf("invalid port %d", out.Port)
	}

	env := config.Get()
	out.BootTimeout = env.Scale(orDefault(out.BootTimeout, DefaultBootTimeout))
	out.KillTimeout = env.Scale(orDefault(out.KillTimeout, DefaultKillTimeout))
	out.ProbeInterval = orDefault(out.ProbeInterval, orDefault(env.ProbeInterval, DefaultProbeInterval))

	if out.BaseDir != "" {
		abs, err := filepath.Abs(out.BaseDir)
		if err != nil {
			return Settings{}, fmt.Errorf("invalid base dir: %w", err)
		}
		out.BaseDir = abs
	}
	return out, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
