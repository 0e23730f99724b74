package resource

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/circleci/ephemeral/config/secret"
)

// Descriptor holds what a client needs to connect to a running server.
type Descriptor struct {
	Host     string        `json:"host"`
	Port     int           `json:"port"`
	Dir      string        `json:"dir"`
	DataDir  string        `json:"data_dir"`
	User     string        `json:"user,omitempty"`
	Password secret.String `json:"password,omitempty"`
	Database string        `json:"database,omitempty"`
	// URL is a kind specific connection string, when the kind has one.
	URL    secret.String     `json:"url,omitempty"`
	Params map[string]string `json:"params,omitempty"`
}

// Addr is the host:port of the server.
func (d Descriptor) Addr() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

func (d Descriptor) Param(name string) string {
	return d.Params[name]
}

// dialProbe is the readiness probe of kinds that do not bring their own.
func dialProbe(ctx context.Context, _ Settings, d Descriptor) error {
	dialer := net.Dialer{Timeout: time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", d.Addr())
	if err != nil {
		return fmt.Errorf("not accepting connections: %w", err)
	}
	return conn.Close()
}
