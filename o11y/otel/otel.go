// Package otel contains an o11y.Provider backed by the OpenTelemetry SDK.
// Spans are exported synchronously to the texttrace console format, so lifecycle
// logs of a resource are interleaved in order with the output of the test using it.
package otel

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/circleci/ephemeral/o11y"
	"github.com/circleci/ephemeral/o11y/otel/texttrace"
)

type Config struct {
	// Writer receives the text output, it defaults to stdout.
	Writer io.Writer
	// Colour enables ansi colour in the text output.
	Colour bool

	ResourceAttributes []attribute.KeyValue
}

type Provider struct {
	tracer trace.Tracer
	tp     *sdktrace.TracerProvider
	global *annotator
}

func New(conf Config) (*Provider, error) {
	w := conf.Writer
	if w == nil {
		w = os.Stdout
	}
	exporter := texttrace.New(w, texttrace.WithColour(conf.Colour))

	global := &annotator{}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		// N.B. must pass in the pointer since we need to see later mutations
		sdktrace.WithSpanProcessor(global),
		sdktrace.WithResource(resource.NewSchemaless(conf.ResourceAttributes...)),
	)

	return &Provider{
		tracer: tp.Tracer("github.com/circleci/ephemeral"),
		tp:     tp,
		global: global,
	}, nil
}

type spanCtxKey struct{}

func (o *Provider) AddGlobalField(key string, val interface{}) {
	mustValidateKey(key)
	o.global.addField(key, val)
}

func (o *Provider) StartSpan(ctx context.Context, name string) (context.Context, o11y.Span) {
	ctx, sp := o.tracer.Start(ctx, name)
	s := &span{span: sp}
	return context.WithValue(ctx, spanCtxKey{}, s), s
}

// GetSpan returns the active span in the given context. It will return nil if there is no span available.
func (o *Provider) GetSpan(ctx context.Context) o11y.Span {
	if s, ok := ctx.Value(spanCtxKey{}).(*span); ok {
		return s
	}
	return nil
}

func (o *Provider) AddField(ctx context.Context, key string, val interface{}) {
	trace.SpanFromContext(ctx).SetAttributes(attr("app."+key, val))
}

// Log emits a zero duration span carrying the fields.
func (o *Provider) Log(ctx context.Context, name string, fields ...o11y.Pair) {
	_, s := o.StartSpan(ctx, name)
	for _, f := range fields {
		s.AddField(f.Key, f.Value)
	}
	s.End()
}

func (o *Provider) Close(ctx context.Context) {
	_ = o.tp.Shutdown(ctx)
}

type span struct {
	span trace.Span
}

func (s *span) AddField(key string, val interface{}) {
	s.AddRawField("app."+key, val)
}

func (s *span) AddRawField(key string, val interface{}) {
	mustValidateKey(key)
	if err, ok := val.(error); ok {
		val = err.Error()
	}
	s.span.SetAttributes(attr(key, val))
}

func (s *span) End() {
	s.span.End()
}

func mustValidateKey(key string) {
	if strings.Contains(key, "-") {
		panic(fmt.Errorf("key %q cannot contain '-'", key))
	}
}
