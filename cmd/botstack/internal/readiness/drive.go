// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package readiness

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/AleutianAI/botstack/cmd/botstack/internal/resilience"
)

// Drive defaults.
const (
	DefaultDriveEndpoint = "https://localhost:9000"
	DefaultBucket        = "default.gbai"
	DefaultRegion        = "us-east-1"
	DefaultAttempts      = 30
	DefaultInterval      = time.Second
)

// BucketAPI is the subset of *s3.Client the drive probe and the template
// upload use.
type BucketAPI interface {
	ListBuckets(ctx context.Context, in *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var _ BucketAPI = (*s3.Client)(nil)

// DriveOptions configures the S3 client for the object store.
type DriveOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string

	// TLS, if set, is used for the HTTPS transport (internal CA).
	TLS *tls.Config
}

// NewDriveClient builds a path-style S3 client with static credentials
// against the object store endpoint.
func NewDriveClient(ctx context.Context, opts DriveOptions) (*s3.Client, error) {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultDriveEndpoint
	}
	if opts.Region == "" {
		opts.Region = DefaultRegion
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")),
	}
	if opts.TLS != nil {
		loadOpts = append(loadOpts, awsconfig.WithHTTPClient(&http.Client{
			Timeout:   30 * time.Second,
			Transport: &http.Transport{TLSClientConfig: opts.TLS},
		}))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load object store config: %w", err)
	}
	endpoint := opts.Endpoint
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	}), nil
}

// DriveProbe waits until the object store lists buckets, then makes sure
// the default bucket exists.
type DriveProbe struct {
	Client BucketAPI
	Bucket string

	Attempts int
	Interval time.Duration
	Sleep    resilience.SleepFunc
	Logger   *slog.Logger
}

// Wait runs the probe.
//
// # Outputs
//
//   - bool: true when the bucket was created by this call.
//   - error: *ProbeError when the store never answered, or the create error.
func (p *DriveProbe) Wait(ctx context.Context) (bool, error) {
	bucket := p.Bucket
	if bucket == "" {
		bucket = DefaultBucket
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var listed *s3.ListBucketsOutput
	attempts := attemptsOr(p.Attempts)
	err := resilience.Retry(ctx, resilience.RetryConfig{
		Attempts: attempts,
		Interval: intervalOr(p.Interval),
		Sleep:    p.Sleep,
	}, func(ctx context.Context, attempt int) error {
		out, err := p.Client.ListBuckets(ctx, &s3.ListBucketsInput{})
		if err != nil {
			logger.Debug("Object store not ready", "attempt", attempt, "error", err)
			return err
		}
		listed = out
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, &ProbeError{Service: "drive", Attempts: attempts, Err: unwrapExhausted(err)}
	}

	for _, b := range listed.Buckets {
		if aws.ToString(b.Name) == bucket {
			return false, nil
		}
	}

	created, err := createBucket(ctx, p.Client, bucket)
	if created {
		logger.Info("Created default bucket", "bucket", bucket)
	}
	return created, err
}

// createBucket creates bucket. A bucket this account already owns is not
// an error and reports false.
func createBucket(ctx context.Context, client BucketAPI, bucket string) (bool, error) {
	_, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return false, nil
		}
		return false, fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	return true, nil
}

func attemptsOr(n int) int {
	if n <= 0 {
		return DefaultAttempts
	}
	return n
}

func intervalOr(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultInterval
	}
	return d
}

func unwrapExhausted(err error) error {
	var ex *resilience.ExhaustedError
	if errors.As(err, &ex) {
		return ex.Last
	}
	return err
}
