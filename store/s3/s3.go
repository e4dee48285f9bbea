// Package s3 stores objects in an Amazon S3 bucket
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/airbusgeo/rastercache/store"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// Store maps keys to objects of a bucket, under an optional prefix
type Store struct {
	client       s3iface.S3API
	bucket       string
	prefix       string
	requestPayer bool
	configs      []*aws.Config
}

var _ store.Store = (*Store)(nil)

// Option is an option that can be passed to New
type Option func(o *Store)

// Client sets the S3 client, e.g. s3.New(session) or a test double
func Client(cl s3iface.S3API) Option {
	return func(o *Store) {
		o.client = cl
	}
}

// Config adds aws configurations used to create the session when no Client
// was given (region, endpoint, path style addressing...)
func Config(cfg *aws.Config) Option {
	return func(o *Store) {
		o.configs = append(o.configs, cfg)
	}
}

// RequesterPays must be set for buckets in requester-pays mode
func RequesterPays() Option {
	return func(o *Store) {
		o.requestPayer = true
	}
}

// New creates a store on s3://bucket/prefix
func New(bucket, prefix string, opts ...Option) (*Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("empty bucket name")
	}
	s := &Store{bucket: bucket, prefix: strings.Trim(prefix, "/")}
	for _, o := range opts {
		o(s)
	}
	if s.client == nil {
		cfg := aws.NewConfig()
		cfg.MergeIn(s.configs...)
		sess, err := session.NewSessionWithOptions(session.Options{
			Config:            *cfg,
			SharedConfigState: session.SharedConfigEnable,
		})
		if err != nil {
			return nil, fmt.Errorf("session.newsession: %w", err)
		}
		s.client = s3.New(sess)
	}
	return s, nil
}

func (s *Store) key(key string) *string {
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}
	return aws.String(key)
}

func (s *Store) payer() *string {
	if s.requestPayer {
		return aws.String(s3.RequestPayerRequester)
	}
	return nil
}

func notFound(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	switch aerr.Code() {
	case s3.ErrCodeNoSuchKey, "NotFound":
		return true
	}
	var rerr awserr.RequestFailure
	return errors.As(err, &rerr) && rerr.StatusCode() == http.StatusNotFound
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          s.key(key),
		RequestPayer: s.payer(),
	})
	if err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("s3://%s/%s: %w", s.bucket, key, store.ErrNotExist)
		}
		return nil, fmt.Errorf("get s3://%s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", s.bucket, key, err)
	}
	return data, nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          s.key(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String("application/octet-stream"),
		RequestPayer: s.payer(),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          s.key(key),
		RequestPayer: s.payer(),
	})
	if err != nil && !notFound(err) {
		return fmt.Errorf("delete s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}
