package otel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func attr(key string, val any) attribute.KeyValue {
	switch v := val.(type) {
	case string:
		return attribute.Key(key).String(v)
	case bool:
		return attribute.Key(key).Bool(v)
	case int:
		return attribute.Key(key).Int(v)
	case int32:
		return attribute.Key(key).Int64(int64(v))
	case int64:
		return attribute.Key(key).Int64(v)
	case float64:
		return attribute.Key(key).Float64(v)
	case time.Duration:
		return attribute.Key(key).String(v.String())
	case []string:
		return attribute.Key(key).StringSlice(v)
	default:
		if s, ok := val.(fmt.Stringer); ok {
			return attribute.Key(key).String(s.String())
		}
		return attribute.Key(key).String(fmt.Sprintf("%v", v))
	}
}

var _ sdktrace.SpanProcessor = &annotator{}

// annotator is a SpanProcessor that adds the global fields to all started spans.
type annotator struct {
	mu    sync.RWMutex
	attrs []attribute.KeyValue
}

func (a *annotator) addField(key string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attrs = append(a.attrs, attr(key, value))
}

func (a *annotator) OnStart(_ context.Context, s sdktrace.ReadWriteSpan) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s.SetAttributes(a.attrs...)
}

func (a *annotator) Shutdown(context.Context) error   { return nil }
func (a *annotator) ForceFlush(context.Context) error { return nil }
func (a *annotator) OnEnd(sdktrace.ReadOnlySpan)      {}
