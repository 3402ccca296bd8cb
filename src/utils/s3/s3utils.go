/*
Copyright (c) The DynamoDBtoCSV Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package s3

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	log "github.com/sirupsen/logrus"
	"gocloud.dev/blob"
	"gocloud.dev/blob/s3blob"
)

func ValidateObjectURL(objectURL string) error {
	_, _, err := splitObjectPath(objectURL)
	return err
}

func splitObjectPath(objectPath string) (string, string, error) {
	u, err := url.Parse(objectPath)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("expected an s3:// url, got %v", objectPath)
	}
	bucket := u.Host
	if bucket == "" {
		return "", "", fmt.Errorf("missing bucket in s3 url %v", objectPath)
	}
	if len(u.Path) <= 1 {
		return "", "", fmt.Errorf("missing key in s3 url %v", objectPath)
	}
	key := u.Path[1:] //remove initial "/", unable to find object with it
	return bucket, key, nil
}

// UploadFile copies a finished local file to objectURL (s3://bucket/key).
func UploadFile(ctx context.Context, cfg aws.Config, localPath string, objectURL string) (int64, error) {
	bucketName, key, err := splitObjectPath(objectURL)
	if err != nil {
		return 0, err
	}
	file, err := os.Open(localPath)
	if err != nil {
		return 0, fmt.Errorf("open %q: %w", localPath, err)
	}
	defer file.Close()

	client := s3.NewFromConfig(cfg)
	bucket, err := s3blob.OpenBucketV2(ctx, client, bucketName, nil)
	if err != nil {
		return 0, fmt.Errorf("open bucket %q: %w", bucketName, err)
	}
	defer bucket.Close()

	n, err := writeObject(ctx, bucket, key, file)
	if err != nil {
		return n, fmt.Errorf("upload %q to %s: %w", localPath, objectURL, err)
	}
	log.Infof("uploaded %d bytes from %q to %s", n, localPath, objectURL)
	return n, nil
}

// writeObject copies r to key. If r fails, the write is aborted by cancelling
// the writer's context so no partial object is committed.
func writeObject(ctx context.Context, bucket *blob.Bucket, key string, r io.Reader) (int64, error) {
	writeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := bucket.NewWriter(writeCtx, key, nil)
	if err != nil {
		return 0, fmt.Errorf("create writer: %w", err)
	}
	n, err := io.Copy(w, r)
	if err != nil {
		cancel()
		_ = w.Close()
		return n, err
	}
	if err := w.Close(); err != nil {
		return n, fmt.Errorf("finish upload: %w", err)
	}
	return n, nil
}
