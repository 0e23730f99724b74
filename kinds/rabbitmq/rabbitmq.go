/*
Package rabbitmq runs a private RabbitMQ node.

The node gets its own name, database and log directories and distribution port,
so it does not clash with a system installation. Nodes are slow to boot: allow
a BootTimeout of tens of seconds.
*/
package rabbitmq

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/circleci/ephemeral/binpath"
	"github.com/circleci/ephemeral/config/secret"
	"github.com/circleci/ephemeral/freeport"
	"github.com/circleci/ephemeral/probe"
	"github.com/circleci/ephemeral/process"
	"github.com/circleci/ephemeral/resource"
	"github.com/circleci/ephemeral/testing/skipgate"
)

var Resolver = binpath.Resolver{
	Env: "EPHEMERAL_RABBITMQ",
	Roots: []string{
		"/usr/lib/rabbitmq/bin",
		"/usr/local/opt/rabbitmq/sbin",
		"/opt/homebrew/opt/rabbitmq/sbin",
		binpath.SearchPath,
	},
}

var Gate = skipgate.ForBinary("rabbitmq-server", Resolver)

func Kind() resource.Kind {
	return resource.Kind{
		Name:           "rabbitmq",
		Subdirectories: []string{"data", "log"},
		Command: func(s resource.Settings, dir string, port int) (process.Command, error) {
			bin, err := Resolver.Find("rabbitmq-server")
			if err != nil {
				return process.Command{}, err
			}
			dist, err := freeport.Get()
			if err != nil {
				return process.Command{}, err
			}
			return process.Command{
				Path: bin,
				Env: []string{
					"RABBITMQ_NODENAME=ephemeral-" + strconv.Itoa(port) + "@localhost",
					"RABBITMQ_NODE_IP_ADDRESS=" + s.Host,
					"RABBITMQ_NODE_PORT=" + strconv.Itoa(port),
					"RABBITMQ_DIST_PORT=" + strconv.Itoa(dist),
					"RABBITMQ_MNESIA_BASE=" + filepath.Join(dir, "data"),
					"RABBITMQ_LOG_BASE=" + filepath.Join(dir, "log"),
					"RABBITMQ_ENABLED_PLUGINS_FILE=" + filepath.Join(dir, "enabled_plugins"),
				},
			}, nil
		},
		ProbeReady: probe.AMQP(),
		Describe: func(_ resource.Settings, d *resource.Descriptor) {
			d.User = "guest"
			d.Password = "guest"
			d.URL = secret.String(URL(*d))
		},
	}
}

// URL is the AMQP URL of a rabbitmq descriptor, on the default vhost.
func URL(d resource.Descriptor) string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(d.User, d.Password.Raw()),
		Host:   d.Addr(),
		Path:   "/",
	}
	return u.String()
}

// Dial connects to the server of c.
func Dial(c *resource.Controller) (*amqp.Connection, error) {
	conn, err := amqp.DialConfig(URL(c.Descriptor()), amqp.Config{
		Dial: amqp.DefaultDial(probe.Timeout),
		Properties: amqp.Table{
			"connection_name": "ephemeral",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: %w", err)
	}
	return conn, nil
}
