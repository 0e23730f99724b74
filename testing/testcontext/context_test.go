package testcontext

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/circleci/ephemeral/o11y"
)

func TestBackground_HasProvider(t *testing.T) {
	ctx := Background()
	ctx, span := o11y.StartSpan(ctx, "testcontext: span")
	defer span.End()

	assert.Check(t, o11y.FromContext(ctx).GetSpan(ctx) != nil)
}
