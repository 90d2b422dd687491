package s3

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pantry/pkg/inventory"
	"pantry/pkg/inventory/storetest"
)

// fakeS3 is an in-memory subset of S3 with conditional writes: enough for
// the store without network access.
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	pageSize int
	denied   bool
}

func newFake() *fakeS3 { return &fakeS3{objects: make(map[string][]byte), pageSize: 2} }

func etag(b []byte) string {
	sum := md5.Sum(b)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

func respond(status int, body string, hdr http.Header) *http.Response {
	if hdr == nil {
		hdr = http.Header{}
	}
	if body != "" {
		hdr.Set("Content-Type", "application/xml")
	}
	hdr.Set("Content-Length", strconv.Itoa(len(body)))
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body)), Header: hdr, ContentLength: int64(len(body))}
}

func s3Error(status int, code string) *http.Response {
	return respond(status, fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>%s</Code><Message>%s</Message></Error>`, code, code), nil)
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) { //nolint:cyclop
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.denied {
		return s3Error(http.StatusForbidden, "AccessDenied"), nil
	}

	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	q := req.URL.Query()

	if req.Method == http.MethodGet && q.Get("list-type") == "2" {
		return f.list(q.Get("prefix"), q.Get("continuation-token")), nil
	}

	cur, exists := f.objects[key]
	switch req.Method {
	case http.MethodPut:
		if req.Header.Get("If-None-Match") == "*" && exists {
			return s3Error(http.StatusPreconditionFailed, "PreconditionFailed"), nil
		}
		if m := req.Header.Get("If-Match"); m != "" {
			if !exists {
				return s3Error(http.StatusNotFound, "NoSuchKey"), nil
			}
			if m != etag(cur) {
				return s3Error(http.StatusPreconditionFailed, "PreconditionFailed"), nil
			}
		}
		body, _ := io.ReadAll(req.Body)
		if dec, ok := decodeChunked(body); ok {
			body = dec
		}
		f.objects[key] = body
		return respond(http.StatusOK, "", http.Header{"Etag": {etag(body)}}), nil
	case http.MethodGet:
		if !exists {
			return s3Error(http.StatusNotFound, "NoSuchKey"), nil
		}
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(cur)), ContentLength: int64(len(cur)), Header: http.Header{
			"Content-Length": {strconv.Itoa(len(cur))},
			"Content-Type":   {"application/json"},
			"Etag":           {etag(cur)},
		}}, nil
	case http.MethodDelete:
		if m := req.Header.Get("If-Match"); m != "" {
			if !exists {
				return s3Error(http.StatusNotFound, "NoSuchKey"), nil
			}
			if m != etag(cur) {
				return s3Error(http.StatusPreconditionFailed, "PreconditionFailed"), nil
			}
		}
		delete(f.objects, key)
		return respond(http.StatusNoContent, "", nil), nil
	}
	return s3Error(http.StatusNotImplemented, "NotImplemented"), nil
}

func (f *fakeS3) list(prefix, token string) *http.Response {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	start, _ := strconv.Atoi(token)
	end := min(start+f.pageSize, len(keys))

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult>`)
	fmt.Fprintf(&b, "<KeyCount>%d</KeyCount>", end-start)
	if end < len(keys) {
		fmt.Fprintf(&b, "<IsTruncated>true</IsTruncated><NextContinuationToken>%d</NextContinuationToken>", end)
	} else {
		b.WriteString("<IsTruncated>false</IsTruncated>")
	}
	for _, k := range keys[start:end] {
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size></Contents>", k, len(f.objects[k]))
	}
	b.WriteString("</ListBucketResult>")
	return respond(http.StatusOK, b.String(), nil)
}

// decodeChunked unwraps a single-chunk aws-chunked body.
func decodeChunked(b []byte) ([]byte, bool) {
	parts := strings.Split(string(b), "\r\n")
	if len(parts) < 3 {
		return nil, false
	}
	size, err := strconv.ParseInt(strings.SplitN(parts[0], ";", 2)[0], 16, 64)
	if err != nil || int64(len(parts[1])) != size || !strings.HasPrefix(parts[2], "0") {
		return nil, false
	}
	return []byte(parts[1]), true
}

func newStore(t *testing.T, fake *fakeS3) *Store {
	t.Helper()
	s, err := New(context.Background(), Config{
		Bucket:          "pantry",
		Region:          "us-east-1",
		Endpoint:        "https://fake.s3.local",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		PathStyle:       true,
		HTTPClient:      &http.Client{Transport: fake},
	})
	require.NoError(t, err)
	return s
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) inventory.Store {
		return newStore(t, newFake())
	})
}

func TestListPagesAndIgnoresOtherPrefixes(t *testing.T) {
	ctx := context.Background()
	fake := newFake()
	s := newStore(t, fake)
	for i := range 5 {
		_, err := s.Create(ctx, inventory.Record{Name: fmt.Sprintf("Item %d", i), Quantity: i + 1})
		require.NoError(t, err)
	}
	fake.mu.Lock()
	fake.objects["other/ignored.json"] = []byte(`{"name":"Ghost","quantity":1}`)
	fake.mu.Unlock()

	recs, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 5)
}

func TestObjectKeysAreHexEncoded(t *testing.T) {
	fake := newFake()
	s := newStore(t, fake)
	_, err := s.Create(context.Background(), inventory.Record{Name: "a/b", Quantity: 1})
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	_, ok := fake.objects["inventory/"+hex.EncodeToString([]byte("a/b"))+".json"]
	assert.True(t, ok)
}

func TestAccessDenied(t *testing.T) {
	fake := newFake()
	fake.denied = true
	s := newStore(t, fake)
	_, err := s.List(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, inventory.ErrNotFound)
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.ErrorIs(t, err, inventory.ErrValidation)
}
