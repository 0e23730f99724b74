package resource

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/circleci/ephemeral/closer"
	"github.com/circleci/ephemeral/config"
	"github.com/circleci/ephemeral/o11y"
)

var ErrNoTemplate = errors.New("factory has no cached template")

type FactoryOptions struct {
	// CacheInitialized initialises the data once into a template, every
	// controller then starts from a private copy of it.
	CacheInitialized bool
	// OnInitialized runs once against a started template server, straight after
	// its data was initialised, e.g. to apply a schema. The template server is
	// stopped again afterwards.
	OnInitialized Hook
}

// Factory builds controllers sharing one kind and one set of settings.
type Factory struct {
	kind     Kind
	settings Settings
	opts     FactoryOptions

	mu sync.Mutex
	// template is the private working directory of the cached template, it is
	// only ever copied from.
	template     string
	templateData string
}

// NewFactory returns a factory. With CacheInitialized the template is built
// straight away, so any initialisation error surfaces here.
func NewFactory(ctx context.Context, kind Kind, s Settings, opts FactoryOptions) (*Factory, error) {
	f := &Factory{
		kind:     kind,
		settings: s,
		opts:     opts,
	}
	if opts.CacheInitialized {
		if err := f.buildTemplate(ctx); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (f *Factory) buildTemplate(ctx context.Context) (err error) {
	ctx, span := o11y.StartSpan(ctx, "resource: build template")
	defer o11y.End(span, &err)
	span.AddField("kind", f.kind.Name)

	dir, err := os.MkdirTemp(config.Get().TempRoot, "ephemeral-template-"+fileName(f.kind.Name)+"-")
	if err != nil {
		return &InitError{Kind: f.kind.Name, Err: err}
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(dir)
		}
	}()
	span.AddField("dir", dir)

	s := f.settings
	s.BaseDir = dir
	s.OnReady = nil

	var c *Controller
	if f.opts.OnInitialized != nil {
		s.OnReady = f.opts.OnInitialized
		c, err = New(ctx, f.kind, s)
	} else {
		c, err = Prepare(ctx, f.kind, s)
	}
	if err != nil {
		return err
	}
	// the template directory is caller owned as far as the controller is
	// concerned, stopping it keeps the data
	c.Stop(ctx)
	if err := os.MkdirAll(c.DataDir(), 0o700); err != nil {
		return &InitError{Kind: f.kind.Name, Err: err}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.template = dir
	f.templateData = c.DataDir()
	return nil
}

// New returns a running controller. With a cached template its data directory
// starts as a copy of the template's.
func (f *Factory) New(ctx context.Context) (*Controller, error) {
	s := f.settings
	f.mu.Lock()
	if f.templateData != "" {
		s.CopyDataFrom = f.templateData
	}
	f.mu.Unlock()
	return New(ctx, f.kind, s)
}

// Snapshot writes the template data to path as a compressed archive, usable
// as Settings.CopyDataFrom by later test runs. The path must end in ArchiveExt.
func (f *Factory) Snapshot(path string) (err error) {
	if !strings.HasSuffix(path, ArchiveExt) {
		return fmt.Errorf("snapshot %s: name must end in %s", path, ArchiveExt)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.templateData == "" {
		return ErrNoTemplate
	}

	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer closer.ErrorHandler(out, &err)
	return writeArchive(out, f.templateData)
}

// Close removes the cached template. Controllers already handed out are not
// affected. Close can be called more than once.
func (f *Factory) Close(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.template == "" {
		return
	}
	if err := os.RemoveAll(f.template); err != nil {
		o11y.LogError(ctx, "resource: warning", o11y.Warnf("failed to remove template: %w", err),
			o11y.Field("kind", f.kind.Name))
		if f.settings.Warn != nil {
			f.settings.Warn(err)
		}
	}
	f.template = ""
	f.templateData = ""
}
