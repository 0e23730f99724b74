// Package testcontext provides a context for tests that logs through o11y.
package testcontext

import (
	"context"
	"os"

	"github.com/circleci/ephemeral/config"
	"github.com/circleci/ephemeral/config/o11y"
)

// ctx is a global singleton, initialised at package time to avoid racy initialisation
var ctx = newContext()

// Background returns a context for use in tests which contains a working o11y, so you get logs.
func Background() context.Context {
	return ctx
}

func newContext() context.Context {
	cx, _, err := o11y.Setup(context.Background(), o11y.Config{
		Service: "test-service",
		Writer:  os.Stdout,
		Colour:  config.Get().LogColour,
	})
	if err != nil {
		panic(err)
	}
	return cx
}
