package resource

import (
	"context"
	"os"
	"path/filepath"

	"github.com/circleci/ephemeral/process"
)

// ProbeFunc reports whether the server behind d accepts requests. A nil error
// means ready. It is called repeatedly until it succeeds or the boot timeout is hit.
type ProbeFunc func(ctx context.Context, s Settings, d Descriptor) error

// Hook runs at a fixed point of the lifecycle with the controller being driven.
type Hook func(ctx context.Context, c *Controller) error

// Kind is what makes a controller a postgres, a redis, a minio... Only Name and
// Command are required, every other field has a sensible default.
type Kind struct {
	Name string

	// DataDirectory returns where persistent state lives inside the working
	// directory. Defaults to <dir>/data.
	DataDirectory func(dir string) string

	// Initialized reports whether the data directory already holds an initialised
	// store. Defaults to the data directory existing and not being empty.
	Initialized func(dataDir string) bool

	// InitializeData bootstraps a fresh store. It is not run when Initialized
	// reports true. Output of a failed *process.ExitError is kept in the InitError.
	InitializeData func(ctx context.Context, s Settings, dir string) error

	// Command builds the server invocation from the settings, working directory
	// and port.
	Command func(s Settings, dir string, port int) (process.Command, error)

	// PreStart runs before the server is spawned, an error fails the start.
	PreStart Hook

	// PostStart runs after the server is spawned, before probing. Errors are
	// reported as warnings only.
	PostStart Hook

	// ProbeReady defaults to a TCP connect to the descriptor address.
	ProbeReady ProbeFunc

	// Describe adds kind specific connection parameters to the descriptor.
	Describe func(s Settings, d *Descriptor)

	// Subdirectories are created inside the working directory before data
	// initialisation.
	Subdirectories []string

	// TerminateSignal asks the server to shut down. Defaults to SIGTERM.
	TerminateSignal os.Signal

	// DefaultOptions are merged under Settings.Options.
	DefaultOptions map[string]string
}

func (k Kind) dataDirectory(dir string) string {
	if k.DataDirectory != nil {
		return k.DataDirectory(dir)
	}
	return filepath.Join(dir, "data")
}

func (k Kind) initialized(dataDir string) bool {
	if k.Initialized != nil {
		return k.Initialized(dataDir)
	}
	entries, err := os.ReadDir(dataDir)
	return err == nil && len(entries) > 0
}

func (k Kind) terminateSignal() os.Signal {
	if k.TerminateSignal != nil {
		return k.TerminateSignal
	}
	return process.TerminateSignal
}

func (k Kind) probe() ProbeFunc {
	if k.ProbeReady != nil {
		return k.ProbeReady
	}
	return dialProbe
}
