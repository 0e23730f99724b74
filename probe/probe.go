/*
Package probe has readiness probes for common servers, for use as
resource.Kind.ProbeReady.

Each probe makes one short lived connection per call and performs the lightest
request the protocol offers that proves the server accepts work: a TCP connect,
an HTTP GET, a postgres or redis or mongo ping, an S3 bucket listing, or the
opening of an AMQP channel.
*/
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/circleci/ephemeral/resource"
)

// Timeout bounds a single probe attempt when the context has no earlier deadline.
const Timeout = 2 * time.Second

// TCP is ready once the server accepts a connection.
func TCP() resource.ProbeFunc {
	return func(ctx context.Context, _ resource.Settings, d resource.Descriptor) error {
		dialer := net.Dialer{Timeout: Timeout}
		conn, err := dialer.DialContext(ctx, "tcp", d.Addr())
		if err != nil {
			return err
		}
		return conn.Close()
	}
}

// HTTP is ready once a GET of path answers with a 2xx status.
func HTTP(path string) resource.ProbeFunc {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	client := &http.Client{Timeout: Timeout}
	return func(ctx context.Context, _ resource.Settings, d resource.Descriptor) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+d.Addr()+path, nil)
		if err != nil {
			return err
		}
		res, err := client.Do(req)
		if err != nil {
			return err
		}
		_ = res.Body.Close()
		if res.StatusCode < 200 || res.StatusCode > 299 {
			return &StatusError{Code: res.StatusCode}
		}
		return nil
	}
}

type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("not ready: %d %s", e.Code, http.StatusText(e.Code))
}

// Parse maps a probe name, as taken by the command line, to a probe. An http
// probe takes its path after a colon: "http:/healthz".
func Parse(name string) (resource.ProbeFunc, error) {
	kind, arg, _ := strings.Cut(name, ":")
	switch kind {
	case "", "tcp":
		return TCP(), nil
	case "http":
		return HTTP(arg), nil
	case "postgres":
		return Postgres(), nil
	case "redis":
		return Redis(), nil
	case "mongo":
		return Mongo(), nil
	case "s3":
		return S3(), nil
	case "minio":
		return MinIO(), nil
	case "amqp":
		return AMQP(), nil
	}
	return nil, fmt.Errorf("unknown probe %q: %w", name, ErrUnknown)
}

var ErrUnknown = errors.New("unknown probe")

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < Timeout {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, Timeout)
}
