// Package o11y wires up the o11y provider used by the ephemeral tooling.
package o11y

import (
	"context"
	"io"

	"go.opentelemetry.io/otel/attribute"

	"github.com/circleci/ephemeral/o11y"
	"github.com/circleci/ephemeral/o11y/otel"
)

type Config struct {
	Service string
	Version string

	// Writer receives the log lines, stdout when nil.
	Writer io.Writer
	Colour bool
}

// Setup is the primary entrypoint to initialise the o11y system. The returned
// func flushes and closes the provider.
func Setup(ctx context.Context, c Config) (context.Context, func(context.Context), error) {
	p, err := otel.New(otel.Config{
		Writer: c.Writer,
		Colour: c.Colour,
		ResourceAttributes: []attribute.KeyValue{
			attribute.String("service.name", c.Service),
			attribute.String("service.version", c.Version),
		},
	})
	if err != nil {
		return ctx, nil, err
	}

	p.AddGlobalField("service", c.Service)
	if c.Version != "" {
		p.AddGlobalField("version", c.Version)
	}

	return o11y.WithProvider(ctx, p), p.Close, nil
}
