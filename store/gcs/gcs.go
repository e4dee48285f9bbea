// Copyright 2021 Airbus Defence and Space
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package gcs stores objects in a Google Cloud Storage bucket
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/airbusgeo/rastercache/store"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Store maps keys to objects of a bucket, under an optional prefix
type Store struct {
	client           *storage.Client
	bucket           string
	prefix           string
	billingProjectID string
	clientOptions    []option.ClientOption
}

var _ store.Store = (*Store)(nil)

//Option is an option that can be passed to New
type Option func(o *Store)

// Client sets the cloud.google.com/go/storage.Client that will be used
// by the store
func Client(cl *storage.Client) Option {
	return func(o *Store) {
		o.client = cl
	}
}

// ClientOptions are passed to storage.NewClient when no Client was given,
// e.g. option.WithoutAuthentication() for public buckets
func ClientOptions(opts ...option.ClientOption) Option {
	return func(o *Store) {
		o.clientOptions = append(o.clientOptions, opts...)
	}
}

// BillingProject sets the project name which should be billed for the requests.
// This is mandatory if the bucket is in requester-pays mode.
func BillingProject(projectID string) Option {
	return func(o *Store) {
		o.billingProjectID = projectID
	}
}

// New creates a store on gs://bucket/prefix
func New(ctx context.Context, bucket, prefix string, opts ...Option) (*Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("empty bucket name")
	}
	s := &Store{
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
	for _, o := range opts {
		o(s)
	}
	if s.client == nil {
		cl, err := storage.NewClient(ctx, s.clientOptions...)
		if err != nil {
			return nil, fmt.Errorf("storage.newclient: %w", err)
		}
		s.client = cl
	}
	return s, nil
}

// Parse splits a "gs://bucket/object" or "bucket/object" uri
func Parse(gsUri string) (bucket, object string) {
	gsUri = strings.TrimPrefix(gsUri, "gs://")
	if len(gsUri) > 0 && gsUri[0] == '/' {
		gsUri = gsUri[1:]
	}
	firstSlash := strings.Index(gsUri, "/")
	if firstSlash == -1 {
		bucket = gsUri
		object = ""
	} else {
		bucket = gsUri[0:firstSlash]
		object = gsUri[firstSlash+1:]
	}
	return
}

func (s *Store) object(key string) *storage.ObjectHandle {
	gbucket := s.client.Bucket(s.bucket)
	if s.billingProjectID != "" {
		gbucket = gbucket.UserProject(s.billingProjectID)
	}
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}
	return gbucket.Object(key)
}

func notFound(err error) bool {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return true
	}
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := s.object(key).NewReader(ctx)
	if err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("gs://%s/%s: %w", s.bucket, key, store.ErrNotExist)
		}
		return nil, fmt.Errorf("new reader for gs://%s/%s: %w", s.bucket, key, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read gs://%s/%s: %w", s.bucket, key, err)
	}
	return data, nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	w := s.object(key).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	w.ChunkSize = 0 //single request upload, blocks are small
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write gs://%s/%s: %w", s.bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close gs://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.object(key).Delete(ctx)
	if err != nil && !notFound(err) {
		return fmt.Errorf("delete gs://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}
