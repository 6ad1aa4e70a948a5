// Package cas implements the content-addressed store client: put, get,
// exists, and bulk variants over the HTTP wire surface. Grounded on the
// upload/progress pattern in pkg/oci/pusher.go (content-addressed image
// layer push over HTTP with a progress channel) and the TAR bulk format
// described for CAS bulk transfer.
package cas

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strings"

	"github.com/attunehq/hurry"
	"github.com/attunehq/hurry/tarfs"
	"github.com/klauspost/compress/zstd"
)

// Client speaks the remote CAS wire surface over HTTP. Stateless beyond
// its connection pool; safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a Client targeting baseURL (e.g. "https://cas.hurry.build").
// A nil httpClient uses http.DefaultClient.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Exists reports whether key is already present in the store.
func (c *Client) Exists(ctx context.Context, key hurry.ObjectKey) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.url("/cas/%s", key), nil)
	if err != nil {
		return false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, &hurry.NetworkTransientError{Op: "cas.exists", Err: err}
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, &hurry.NetworkTransientError{Op: "cas.exists", Err: statusError(resp)}
	}
}

// Get fetches the blob for key. Returns ok=false if the key is absent.
func (c *Client) Get(ctx context.Context, key hurry.ObjectKey) (content []byte, ok bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/cas/%s", key), nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, &hurry.NetworkTransientError{Op: "cas.get", Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound:
		return nil, false, nil
	case http.StatusOK:
		body, err := decodeBody(resp)
		if err != nil {
			return nil, false, err
		}
		return body, true, nil
	default:
		return nil, false, &hurry.NetworkTransientError{Op: "cas.get", Err: statusError(resp)}
	}
}

// WriteResult reports whether a Put actually wrote new content or found
// it already present.
type WriteResult int

const (
	Written WriteResult = iota
	Skipped
)

// Put uploads content under key. The server independently verifies that
// content hashes to key; a mismatch surfaces as HashMismatchError. The
// body is transparently zstd-compressed at the fastest level: the key is
// always computed over the uncompressed bytes, so compression never
// changes content addressing.
func (c *Client) Put(ctx context.Context, key hurry.ObjectKey, content []byte) (WriteResult, error) {
	compressed, err := compress(content)
	if err != nil {
		return Skipped, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.url("/cas/%s", key), bytes.NewReader(compressed))
	if err != nil {
		return Skipped, err
	}
	req.ContentLength = int64(len(compressed))
	req.Header.Set("Content-Encoding", "zstd")
	resp, err := c.http.Do(req)
	if err != nil {
		return Skipped, &hurry.NetworkTransientError{Op: "cas.put", Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		return Written, nil
	case http.StatusOK:
		return Skipped, nil
	case http.StatusBadRequest:
		return Skipped, &hurry.HashMismatchError{Key: string(key)}
	default:
		return Skipped, &hurry.NetworkTransientError{Op: "cas.put", Err: statusError(resp)}
	}
}

// BulkWriteError is one failed entry from a bulk put, as reported in the
// server's partial-success response.
type BulkWriteError struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// BulkWriteResult is the parsed response of POST /cas/bulk/write.
type BulkWriteResult struct {
	Written []string         `json:"written"`
	Skipped []string         `json:"skipped"`
	Errors  []BulkWriteError `json:"errors"`
}

// PutBulk uploads a batch of objects in one uncompressed TAR stream, each
// entry's filename being the hex key of its contents. Partial success is
// normal: individual failures are reported in Errors without aborting the
// rest of the batch.
func (c *Client) PutBulk(ctx context.Context, objects map[hurry.ObjectKey][]byte) (BulkWriteResult, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for key, content := range objects {
		hdr := &tar.Header{Name: string(key), Size: int64(len(content)), Mode: 0o644}
		if err := tw.WriteHeader(hdr); err != nil {
			return BulkWriteResult{}, fmt.Errorf("write tar header for %s: %w", key, err)
		}
		if _, err := tw.Write(content); err != nil {
			return BulkWriteResult{}, fmt.Errorf("write tar body for %s: %w", key, err)
		}
	}
	if err := tw.Close(); err != nil {
		return BulkWriteResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/cas/bulk/write"), &buf)
	if err != nil {
		return BulkWriteResult{}, err
	}
	req.Header.Set("Content-Type", "application/x-tar")
	resp, err := c.http.Do(req)
	if err != nil {
		return BulkWriteResult{}, &hurry.NetworkTransientError{Op: "cas.put_bulk", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return BulkWriteResult{}, &hurry.NetworkTransientError{Op: "cas.put_bulk", Err: statusError(resp)}
	}

	var result BulkWriteResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return BulkWriteResult{}, fmt.Errorf("decode bulk write response: %w", err)
	}
	return result, nil
}

// GetBulk fetches a batch of objects by key in one TAR response, decoding
// eagerly into a map keyed by hex object key. Keys absent from the
// response are simply omitted, matching the server's "missing keys
// silently omitted" contract.
func (c *Client) GetBulk(ctx context.Context, keys []hurry.ObjectKey) (map[hurry.ObjectKey][]byte, error) {
	reqBody, err := json.Marshal(struct {
		Keys []hurry.ObjectKey `json:"keys"`
	}{Keys: keys})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/cas/bulk/read"), bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-tar")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &hurry.NetworkTransientError{Op: "cas.get_bulk", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &hurry.NetworkTransientError{Op: "cas.get_bulk", Err: statusError(resp)}
	}

	fsys, err := tarfs.New(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode bulk read tar: %w", err)
	}

	out := make(map[hurry.ObjectKey][]byte, len(keys))
	for _, key := range keys {
		content, err := fs.ReadFile(fsys, string(key))
		if err != nil {
			continue
		}
		out[key] = content
	}
	return out, nil
}

func (c *Client) url(format string, args ...interface{}) string {
	return c.baseURL + fmt.Sprintf(format, args...)
}

func decodeBody(resp *http.Response) ([]byte, error) {
	if resp.Header.Get("Content-Type") == "application/zstd" {
		dec, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return io.ReadAll(dec)
	}
	return io.ReadAll(resp.Body)
}

func statusError(resp *http.Response) error {
	return fmt.Errorf("unexpected status %s", resp.Status)
}

func compress(content []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(content, nil), nil
}
