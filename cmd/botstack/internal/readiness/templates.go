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
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// TemplateSuffix marks a bot template directory. The directory name is
// also the bucket name.
const TemplateSuffix = ".gbai"

// TemplateUpload is the outcome of UploadTemplates.
type TemplateUpload struct {
	// Buckets lists the template buckets, sorted.
	Buckets []string

	// Objects counts uploaded files.
	Objects int
}

// UploadTemplates copies every <name>.gbai directory under dir into the
// object store.
//
// # Description
//
// Each template directory maps to a bucket of the same name, created when
// missing. Files are stored under their slash-separated path relative to
// the template directory, overwriting existing objects. A missing dir is
// not an error. Entries that are not *.gbai directories are ignored.
//
// # Outputs
//
//   - TemplateUpload: what was uploaded before any failure
//   - error: the first bucket or object failure
func UploadTemplates(ctx context.Context, client BucketAPI, dir string, logger *slog.Logger) (TemplateUpload, error) {
	var out TemplateUpload
	if logger == nil {
		logger = slog.Default()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return out, err
	}

	var templates []string
	for _, e := range entries {
		if e.IsDir() && strings.HasSuffix(e.Name(), TemplateSuffix) {
			templates = append(templates, e.Name())
		}
	}
	sort.Strings(templates)

	for _, bucket := range templates {
		if _, err := createBucket(ctx, client, bucket); err != nil {
			return out, err
		}
		out.Buckets = append(out.Buckets, bucket)

		root := filepath.Join(dir, bucket)
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			key := filepath.ToSlash(rel)
			if err := putFile(ctx, client, bucket, key, path); err != nil {
				return err
			}
			out.Objects++
			logger.Debug("Uploaded template file", "bucket", bucket, "key", key)
			return nil
		})
		if err != nil {
			return out, err
		}
		logger.Info("Uploaded template", "bucket", bucket)
	}
	return out, nil
}

func putFile(ctx context.Context, client BucketAPI, bucket, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", bucket, key, err)
	}
	return nil
}
