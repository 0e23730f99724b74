package probe

import (
	"context"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5"
	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/circleci/ephemeral/resource"
)

// Postgres is ready once a connection can be made and pinged. The descriptor
// URL is used when set, otherwise one is built from its user, password and
// database.
func Postgres() resource.ProbeFunc {
	return func(ctx context.Context, _ resource.Settings, d resource.Descriptor) error {
		ctx, cancel := withTimeout(ctx)
		defer cancel()

		conn, err := pgx.Connect(ctx, PostgresURL(d))
		if err != nil {
			return err
		}
		defer func() { _ = conn.Close(context.WithoutCancel(ctx)) }()
		return conn.Ping(ctx)
	}
}

// PostgresURL is the connection string of a postgres descriptor.
func PostgresURL(d resource.Descriptor) string {
	if d.URL != "" {
		return d.URL.Raw()
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   d.Addr(),
		Path:   "/" + orDefault(d.Database, "postgres"),
	}
	if d.Password != "" {
		u.User = url.UserPassword(orDefault(d.User, "postgres"), d.Password.Raw())
	} else {
		u.User = url.User(orDefault(d.User, "postgres"))
	}
	q := url.Values{}
	q.Set("sslmode", orDefault(d.Param("sslmode"), "disable"))
	q.Set("connect_timeout", "2")
	u.RawQuery = q.Encode()
	return u.String()
}

// Redis is ready once it answers a PING.
func Redis() resource.ProbeFunc {
	return func(ctx context.Context, _ resource.Settings, d resource.Descriptor) error {
		ctx, cancel := withTimeout(ctx)
		defer cancel()

		client := redis.NewClient(&redis.Options{
			Addr:        d.Addr(),
			Password:    d.Password.Raw(),
			DialTimeout: Timeout,
			MaxRetries:  -1,
		})
		defer client.Close()
		return client.Ping(ctx).Err()
	}
}

// Mongo is ready once the server answers a ping as primary.
func Mongo() resource.ProbeFunc {
	return func(ctx context.Context, _ resource.Settings, d resource.Descriptor) error {
		ctx, cancel := withTimeout(ctx)
		defer cancel()

		uri := d.URL.Raw()
		if uri == "" {
			uri = "mongodb://" + d.Addr() + "/?directConnection=true"
		}
		opts := options.Client().
			ApplyURI(uri).
			SetAppName("ephemeral-probe").
			SetServerSelectionTimeout(Timeout)
		client, err := mongo.Connect(ctx, opts)
		if err != nil {
			return err
		}
		defer func() { _ = client.Disconnect(context.WithoutCancel(ctx)) }()
		return client.Ping(ctx, readpref.Primary())
	}
}

// S3 is ready once the bucket listing of an S3 compatible server succeeds. The
// descriptor user and password are the access key and secret, the region is
// the "region" param.
func S3() resource.ProbeFunc {
	return func(ctx context.Context, _ resource.Settings, d resource.Descriptor) error {
		ctx, cancel := withTimeout(ctx)
		defer cancel()

		client := s3.New(s3.Options{
			Region:       orDefault(d.Param("region"), "us-east-1"),
			Credentials:  credentials.NewStaticCredentialsProvider(d.User, d.Password.Raw(), ""),
			BaseEndpoint: aws.String("http://" + d.Addr()),
			UsePathStyle: true,
		})
		_, err := client.ListBuckets(ctx, &s3.ListBucketsInput{})
		return err
	}
}

// MinIO is S3 over the minio client.
func MinIO() resource.ProbeFunc {
	return func(ctx context.Context, _ resource.Settings, d resource.Descriptor) error {
		ctx, cancel := withTimeout(ctx)
		defer cancel()

		client, err := minio.New(d.Addr(), &minio.Options{
			Creds:  miniocreds.NewStaticV4(d.User, d.Password.Raw(), ""),
			Secure: false,
			Region: d.Param("region"),
		})
		if err != nil {
			return err
		}
		_, err = client.ListBuckets(ctx)
		return err
	}
}

// AMQP is ready once a connection is made and a channel opened. The "vhost"
// param selects the virtual host, the credentials default to guest.
func AMQP() resource.ProbeFunc {
	return func(_ context.Context, _ resource.Settings, d resource.Descriptor) error {
		u := url.URL{
			Scheme: "amqp",
			User:   url.UserPassword(orDefault(d.User, "guest"), orDefault(d.Password.Raw(), "guest")),
			Host:   d.Addr(),
			Path:   "/" + d.Param("vhost"),
		}
		conn, err := amqp.DialConfig(u.String(), amqp.Config{
			Dial: amqp.DefaultDial(Timeout),
		})
		if err != nil {
			return err
		}
		defer conn.Close()

		ch, err := conn.Channel()
		if err != nil {
			return fmt.Errorf("failed to open channel: %w", err)
		}
		return ch.Close()
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
