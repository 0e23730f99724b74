// Package minio runs a private MinIO server and talks to it over the S3 API.
package minio

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/circleci/ephemeral/binpath"
	"github.com/circleci/ephemeral/config/secret"
	"github.com/circleci/ephemeral/freeport"
	"github.com/circleci/ephemeral/o11y"
	"github.com/circleci/ephemeral/probe"
	"github.com/circleci/ephemeral/process"
	"github.com/circleci/ephemeral/resource"
	"github.com/circleci/ephemeral/testing/skipgate"
)

// Options understood by the kind.
const (
	OptUser     = "root-user"
	OptPassword = "root-password"
	OptRegion   = "region"
)

var Resolver = binpath.Resolver{
	Env:   "EPHEMERAL_MINIO",
	Roots: []string{"/usr/local/opt/minio/bin", "/opt/homebrew/opt/minio/bin", binpath.SearchPath},
}

var Gate = skipgate.ForBinary("minio", Resolver)

func Kind() resource.Kind {
	return resource.Kind{
		Name:           "minio",
		Subdirectories: []string{"data"},
		Command: func(s resource.Settings, dir string, port int) (process.Command, error) {
			bin, err := Resolver.Find("minio")
			if err != nil {
				return process.Command{}, err
			}
			console, err := freeport.Get()
			if err != nil {
				return process.Command{}, err
			}
			return process.Command{
				Path: bin,
				Args: []string{"server", filepath.Join(dir, "data"),
					"--address", net.JoinHostPort(s.Host, strconv.Itoa(port)),
					"--console-address", net.JoinHostPort(s.Host, strconv.Itoa(console)),
					"--quiet",
				},
				Env: []string{
					"MINIO_ROOT_USER=" + s.Option(OptUser),
					"MINIO_ROOT_PASSWORD=" + s.Option(OptPassword),
					"MINIO_REGION=" + s.Option(OptRegion),
					"MINIO_BROWSER=off",
				},
			}, nil
		},
		ProbeReady: probe.MinIO(),
		Describe: func(s resource.Settings, d *resource.Descriptor) {
			d.User = s.Option(OptUser)
			d.Password = secret.String(s.Option(OptPassword))
			d.Params["region"] = s.Option(OptRegion)
			d.URL = secret.String("http://" + d.Addr())
		},
		DefaultOptions: map[string]string{
			OptUser:     "minio",
			OptPassword: "minio123",
			OptRegion:   "us-east-1",
		},
	}
}

// Client returns an S3 client for the server of c.
func Client(c *resource.Controller) *s3.Client {
	d := c.Descriptor()
	return s3.New(s3.Options{
		Region:       d.Param("region"),
		Credentials:  credentials.NewStaticCredentialsProvider(d.User, d.Password.Raw(), ""),
		BaseEndpoint: aws.String(d.URL.Raw()),
		UsePathStyle: true,
	})
}

// CreateBucket creates a bucket on the server of c, versioned when versioned is set.
func CreateBucket(ctx context.Context, c *resource.Controller, name string, versioned bool) (err error) {
	ctx, span := o11y.StartSpan(ctx, "minio: create bucket")
	defer o11y.End(span, &err)
	span.AddField("bucket", name)

	client := Client(c)
	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(name),
	})
	if err != nil {
		return fmt.Errorf("create bucket failed: %w", err)
	}
	if !versioned {
		return nil
	}
	_, err = client.PutBucketVersioning(ctx, &s3.PutBucketVersioningInput{
		Bucket: aws.String(name),
		VersioningConfiguration: &types.VersioningConfiguration{
			Status: types.BucketVersioningStatusEnabled,
		},
	})
	if err != nil {
		return fmt.Errorf("bucket versioning failed: %w", err)
	}
	return nil
}
