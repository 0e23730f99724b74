package mongo_test

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/circleci/ephemeral/kinds/mongo"
	"github.com/circleci/ephemeral/resource"
	"github.com/circleci/ephemeral/testing/resourcetest"
	"github.com/circleci/ephemeral/testing/testcontext"
	"github.com/circleci/ephemeral/testing/testrand"
)

func TestMain(m *testing.M) {
	resourcetest.Main(m)
}

func TestMongo(t *testing.T) {
	mongo.Gate.Skip(t)
	ctx := testcontext.Background()

	c := resourcetest.New(t, mongo.Kind(), resource.Settings{})
	assert.Check(t, cmp.Contains(c.Descriptor().URL.Raw(), "directConnection=true"))

	db, disconnect, err := mongo.Database(ctx, c, testrand.Name("books"))
	assert.Assert(t, err)
	defer func() { assert.Check(t, disconnect(ctx)) }()

	_, err = db.Collection("titles").InsertOne(ctx, bson.M{"title": "Ulysses"})
	assert.Assert(t, err)

	n, err := db.Collection("titles").CountDocuments(ctx, bson.M{})
	assert.Assert(t, err)
	assert.Check(t, cmp.Equal(n, int64(1)))
}
