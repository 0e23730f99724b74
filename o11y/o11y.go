// Package o11y provides observability for ephemeral resources in the form of
// trace-style structured logging. Every lifecycle phase of a resource is a span.
package o11y

import (
	"context"
	"errors"
)

// Provider is carried in the context; without one every call is a no-op.
type Provider interface {
	// AddGlobalField adds a field to every span the provider creates, e.g. version.
	AddGlobalField(key string, val any)

	// StartSpan begins a unit of work. Names are short, with the component
	// as a prefix:
	//
	//	ctx, span := o11y.StartSpan(ctx, "resource: start")
	//	defer o11y.End(span, &err)
	StartSpan(ctx context.Context, name string) (context.Context, Span)

	// GetSpan returns the active span in ctx, or nil.
	GetSpan(ctx context.Context) Span

	// AddField adds a field, prefixed "app.", to the active span in ctx.
	AddField(ctx context.Context, key string, val any)

	// Log emits a zero duration span.
	Log(ctx context.Context, name string, fields ...Pair)

	Close(ctx context.Context)
}

type Span interface {
	// AddField adds a field prefixed with "app.".
	AddField(key string, val any)

	// AddRawField adds a field as is. It is for plumbing fields such as
	// result, error and warning.
	AddRawField(key string, val any)

	// End records the duration and exports the span; it must not be used afterwards.
	End()
}

type providerKey struct{}

// WithProvider returns a child context carrying p.
func WithProvider(ctx context.Context, p Provider) context.Context {
	return context.WithValue(ctx, providerKey{}, p)
}

// FromContext returns the provider in ctx, or a no-op provider.
func FromContext(ctx context.Context) Provider {
	if p, ok := ctx.Value(providerKey{}).(Provider); ok {
		return p
	}
	return defaultProvider
}

// Log emits a zero duration event.
func Log(ctx context.Context, name string, fields ...Pair) {
	FromContext(ctx).Log(ctx, name, fields...)
}

// LogError emits a zero duration event with err recorded as its result.
func LogError(ctx context.Context, name string, err error, fields ...Pair) {
	_, span := StartSpan(ctx, name)
	for _, f := range fields {
		span.AddField(f.Key, f.Value)
	}
	AddResultToSpan(span, err)
	span.End()
}

func StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return FromContext(ctx).StartSpan(ctx, name)
}

// AddField adds a field to the active span in ctx.
func AddField(ctx context.Context, key string, val any) {
	FromContext(ctx).AddField(ctx, key, val)
}

// End records the result and ends span. Pass the address of a named error
// return so the value at return time is the one recorded:
//
//	defer o11y.End(span, &err)
func End(span Span, err *error) {
	var actual error
	if err != nil {
		actual = *err
	}
	AddResultToSpan(span, actual)
	span.End()
}

// AddResultToSpan sets the result field to success, warning, canceled or
// error, with the message in a field of the same name.
func AddResultToSpan(span Span, err error) {
	switch {
	case err == nil:
		span.AddRawField("result", "success")
	case IsWarning(err):
		span.AddRawField("result", "warning")
		span.AddRawField("warning", err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		span.AddRawField("result", "canceled")
		span.AddRawField("warning", err.Error())
	default:
		span.AddRawField("result", "error")
		span.AddRawField("error", err.Error())
	}
}

// Pair is a field for Log and LogError.
type Pair struct {
	Key   string
	Value any
}

func Field(key string, value any) Pair {
	return Pair{Key: key, Value: value}
}

var defaultProvider Provider = noopProvider{}

type noopProvider struct{}

func (noopProvider) AddGlobalField(string, any) {}

func (noopProvider) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, noopSpan{}
}

func (noopProvider) GetSpan(context.Context) Span { return noopSpan{} }

func (noopProvider) AddField(context.Context, string, any) {}

func (noopProvider) Log(context.Context, string, ...Pair) {}

func (noopProvider) Close(context.Context) {}

type noopSpan struct{}

func (noopSpan) AddField(string, any)    {}
func (noopSpan) AddRawField(string, any) {}
func (noopSpan) End()                    {}
