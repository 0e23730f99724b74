// Package texttrace is a span exporter for otel that writes one line of text per span.
package texttrace

import (
	"bytes"
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/sdk/trace"
)

var _ trace.SpanExporter = &Exporter{}

type Option func(*Exporter)

// WithColour turns ansi colouring of trace ids, span names and errors on or off.
func WithColour(colour bool) Option {
	return func(e *Exporter) {
		e.colour = colour
	}
}

// WithoutTimestamps drops the leading wall clock time, which is useful for golden output.
func WithoutTimestamps() Option {
	return func(e *Exporter) {
		e.timestamps = false
	}
}

// New creates an Exporter writing to w.
func New(w io.Writer, opts ...Option) *Exporter {
	e := &Exporter{
		w:          w,
		timestamps: true,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Exporter is an implementation of trace.SpanExporter that writes spans as text.
type Exporter struct {
	timestamps bool
	colour     bool

	mu      sync.Mutex
	w       io.Writer
	stopped bool
}

// ExportSpans writes each span as a single line.
func (e *Exporter) ExportSpans(_ context.Context, spans []trace.ReadOnlySpan) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return nil
	}

	for _, s := range spans {
		_, _ = e.w.Write(e.format(s))
	}
	return nil
}

// Shutdown stops any further output.
func (e *Exporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()

	return ctx.Err()
}

func (e *Exporter) format(s trace.ReadOnlySpan) []byte {
	buf := new(bytes.Buffer)
	if e.timestamps {
		buf.WriteString(s.EndTime().Format("15:04:05.000 "))
	}
	_, _ = fmt.Fprintf(buf, "%s %.3fms %s",
		e.applyColour(shortTraceID(s.SpanContext().TraceID().String())),
		float64(s.EndTime().Sub(s.StartTime()).Microseconds())/1000,
		e.applyColour(s.Name()),
	)

	data := map[string]string{}
	keys := make([]string, 0, len(s.Attributes()))
	for _, a := range s.Attributes() {
		k := string(a.Key)
		if exclude(k) {
			continue
		}
		if _, seen := data[k]; !seen {
			keys = append(keys, k)
		}
		data[k] = a.Value.Emit()
	}
	sort.Strings(keys)

	for _, k := range keys {
		label := k
		if k == "error" && e.colour {
			label = errorHighlight(k)
		}
		_, _ = fmt.Fprintf(buf, " %s=%s", label, data[k])
	}
	buf.WriteString("\n")
	return buf.Bytes()
}

func exclude(k string) bool {
	switch k {
	case "service", "version":
		return true
	}
	return strings.HasPrefix(k, "meta.")
}

func (e *Exporter) applyColour(value string) string {
	if !e.colour {
		return value
	}

	i := crc32.ChecksumIEEE([]byte(value)) % uint32(len(colours))
	return fmt.Sprintf("\033[1;38;5;%dm%s\033[0m", colours[i], value)
}

func errorHighlight(s string) string {
	return fmt.Sprintf("\033[1;37;41m%s\033[0m", s)
}

// colours are ansi 256 colour codes that read well on a dark terminal
var colours = []uint8{
	10, 11, 12, 13, 14, 33, 39, 45, 51, 69, 75, 81, 87, 99, 105, 111, 117, 123,
	141, 147, 153, 159, 171, 177, 183, 189, 207, 213, 219, 220, 221, 226, 227,
}

func shortTraceID(raw string) string {
	if len(raw) < 5 {
		return raw
	}
	return raw[len(raw)-5:]
}
