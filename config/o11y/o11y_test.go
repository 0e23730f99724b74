package o11y

import (
	"bytes"
	"context"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/circleci/ephemeral/o11y"
)

func TestSetup(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx, cleanup, err := Setup(context.Background(), Config{
		Service: "ephemeral",
		Version: "dev",
		Writer:  buf,
	})
	assert.Assert(t, err)

	o11y.Log(ctx, "hello", o11y.Field("who", "world"))
	cleanup(ctx)

	assert.Check(t, cmp.Contains(buf.String(), "hello app.who=world"))
}
