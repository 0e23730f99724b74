package compiler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/circleci/ephemeral/process"
)

type Compiler struct {
	dir string

	mu    sync.Mutex
	built map[string]string
}

func New() *Compiler {
	tempDir, err := os.MkdirTemp("", "acceptance-tests")
	if err != nil {
		panic(err)
	}

	return &Compiler{
		dir:   tempDir,
		built: map[string]string{},
	}
}

func (c *Compiler) Dir() string {
	return c.dir
}

func (c *Compiler) Cleanup() {
	_ = os.RemoveAll(c.dir)
}

type Work struct {
	// Name of the resulting binary.
	Name string
	// Target is the directory the build runs in, usually the module root.
	Target string
	// Source is the main package, relative to Target.
	Source string
	// Environment is added to the build environment.
	Environment []string
}

// Compile a binary for testing.
func (c *Compiler) Compile(ctx context.Context, work Work) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if path, ok := c.built[work.Name]; ok {
		return path, nil
	}

	cwd, err := filepath.Abs(work.Target)
	if err != nil {
		return "", err
	}

	path := binaryPath(work.Name, c.dir)
	_, err = process.Run(ctx, process.Command{
		Path: goPath(),
		Args: []string{"build", "-o", path, work.Source},
		Dir:  cwd,
		Env:  append([]string{"CGO_ENABLED=0"}, work.Environment...),
	})
	if err != nil {
		return "", fmt.Errorf("compile %s: %w", work.Name, err)
	}
	c.built[work.Name] = path
	return path, nil
}

func goPath() string {
	goroot := os.Getenv("GOROOT")
	if goroot == "" {
		return "go"
	}
	return filepath.Join(goroot, "bin", "go")
}

func binaryPath(name, tempDir string) string {
	path := filepath.Join(tempDir, name)
	if runtime.GOOS == "windows" {
		return path + ".exe"
	}
	return path
}
