// Package s3 keeps inventory records as JSON objects in an S3-compatible
// bucket, one object per record. The object ETag is the record revision and
// writes use conditional requests (If-Match / If-None-Match).
package s3

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pantry/pkg/inventory"
)

const listConcurrency = 8

// Config holds construction parameters. Credentials fall back to the default
// AWS chain when AccessKeyID is empty.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string // optional, e.g. MinIO
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	PathStyle       bool
	// Prefix is prepended to every object key. Defaults to the collection
	// name followed by "/".
	Prefix string

	HTTPClient aws.HTTPClient // tests
}

// Store is an S3-backed inventory.Store.
type Store struct {
	client *s3.Client
	bucket string
	prefix string
}

var _ inventory.Store = (*Store)(nil)

// document is the stored object body. Nonce changes on every write so equal
// quantities still produce a new ETag.
type document struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Nonce    string `json:"nonce"`
}

// New creates a Store from cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: s3 bucket required", inventory.ErrValidation)
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.HTTPClient != nil {
			o.HTTPClient = cfg.HTTPClient
		}
		// plain bodies; many S3-compatible servers reject aws-chunked uploads
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = inventory.DefaultCollection + "/"
	}
	return &Store{client: client, bucket: cfg.Bucket, prefix: prefix}, nil
}

// List reads every record under the prefix. Objects are fetched concurrently.
func (s *Store) List(ctx context.Context) ([]inventory.Record, error) {
	var keys []string
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{Bucket: &s.bucket, Prefix: &s.prefix})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}

	var (
		mu  sync.Mutex
		out = make([]inventory.Record, 0, len(keys))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listConcurrency)
	for _, key := range keys {
		g.Go(func() error {
			r, err := s.get(gctx, key)
			if errors.Is(err, inventory.ErrNotFound) {
				return nil // deleted since listing
			}
			if err != nil {
				return err
			}
			mu.Lock()
			out = append(out, r)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Get retrieves a record by name.
func (s *Store) Get(ctx context.Context, name string) (inventory.Record, error) {
	return s.get(ctx, s.key(name))
}

// Create writes a new object, failing when one already exists.
func (s *Store) Create(ctx context.Context, r inventory.Record) (inventory.Record, error) {
	rec, err := s.put(ctx, r, func(in *s3.PutObjectInput) { in.IfNoneMatch = aws.String("*") })
	if isCode(err, "PreconditionFailed", "ConditionalRequestConflict") {
		return inventory.Record{}, inventory.ErrExists
	}
	return rec, err
}

// Update overwrites an existing object. Without a revision the current ETag
// is read first and the write is still conditional on it.
func (s *Store) Update(ctx context.Context, r inventory.Record) (inventory.Record, error) {
	if r.Revision == "" {
		cur, err := s.Get(ctx, r.Name)
		if err != nil {
			return inventory.Record{}, err
		}
		r.Revision = cur.Revision
	}
	rec, err := s.put(ctx, r, func(in *s3.PutObjectInput) { in.IfMatch = aws.String(r.Revision) })
	switch {
	case isCode(err, "NoSuchKey", "NotFound"):
		return inventory.Record{}, inventory.ErrNotFound
	case isCode(err, "PreconditionFailed", "ConditionalRequestConflict"):
		return inventory.Record{}, inventory.ErrConflict
	}
	return rec, err
}

// Delete removes an object. Missing objects are not an error.
func (s *Store) Delete(ctx context.Context, name, revision string) error {
	in := &s3.DeleteObjectInput{Bucket: &s.bucket, Key: aws.String(s.key(name))}
	if revision != "" {
		in.IfMatch = aws.String(revision)
	}
	_, err := s.client.DeleteObject(ctx, in)
	switch {
	case err == nil, isCode(err, "NoSuchKey", "NotFound"):
		return nil
	case isCode(err, "PreconditionFailed", "ConditionalRequestConflict"):
		return inventory.ErrConflict
	}
	return fmt.Errorf("delete %q: %w", name, err)
}

func (s *Store) get(ctx context.Context, key string) (inventory.Record, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if isCode(err, "NoSuchKey", "NotFound") {
		return inventory.Record{}, inventory.ErrNotFound
	}
	if err != nil {
		return inventory.Record{}, fmt.Errorf("get %s: %w", key, err)
	}
	defer func() { _ = out.Body.Close() }()
	var doc document
	if err := json.NewDecoder(out.Body).Decode(&doc); err != nil {
		return inventory.Record{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return inventory.Record{Name: doc.Name, Quantity: doc.Quantity, Revision: aws.ToString(out.ETag)}, nil
}

func (s *Store) put(ctx context.Context, r inventory.Record, cond func(*s3.PutObjectInput)) (inventory.Record, error) {
	body, err := json.Marshal(document{Name: r.Name, Quantity: r.Quantity, Nonce: uuid.NewString()})
	if err != nil {
		return inventory.Record{}, err
	}
	in := &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         aws.String(s.key(r.Name)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	}
	cond(in)
	out, err := s.client.PutObject(ctx, in)
	if err != nil {
		if isCode(err, "NoSuchKey", "NotFound", "PreconditionFailed", "ConditionalRequestConflict") {
			return inventory.Record{}, err
		}
		return inventory.Record{}, fmt.Errorf("put %q: %w", r.Name, err)
	}
	return inventory.Record{Name: r.Name, Quantity: r.Quantity, Revision: aws.ToString(out.ETag)}, nil
}

// key hex-encodes the name so any string maps to a safe object key.
func (s *Store) key(name string) string {
	return s.prefix + hex.EncodeToString([]byte(name)) + ".json"
}

func isCode(err error, codes ...string) bool {
	if err == nil {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		for _, c := range codes {
			if apiErr.ErrorCode() == c {
				return true
			}
		}
	}
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) {
		for _, c := range codes {
			switch {
			case respErr.HTTPStatusCode() == http.StatusNotFound && (c == "NotFound" || c == "NoSuchKey"):
				return true
			case respErr.HTTPStatusCode() == http.StatusPreconditionFailed && strings.HasPrefix(c, "Precondition"):
				return true
			}
		}
	}
	return false
}
