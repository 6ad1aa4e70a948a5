// Package unitindex implements the unit index client: save_units and
// restore_units over the JSON HTTP wire surface, with libc-version
// filtering on restore. Grounded on the same HTTP-client idiom as
// package cas; the two clients share no code because their payload
// shapes (streamed blobs vs. small JSON records) differ enough that a
// shared base would just be indirection.
package unitindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/attunehq/hurry"
)

// Client speaks the unit index's JSON HTTP wire surface.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a Client targeting baseURL.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// SaveRecord is one entry of a save_units batch.
type SaveRecord struct {
	UnitHash       hurry.UnitHash  `json:"unit_hash"`
	SavedUnit      hurry.SavedUnit `json:"saved_unit"`
	ResolvedTarget string          `json:"resolved_target"`
	LibcVersion    string          `json:"libc_version,omitempty"`
}

// SaveUnits persists a batch of unit records in one HTTP call. A network
// failure is fatal to the whole batch's save attempt but never fatal to
// the invocation; callers should treat an error here as "these units
// aren't cached for next time" and proceed.
func (c *Client) SaveUnits(ctx context.Context, records []SaveRecord) error {
	body, err := json.Marshal(records)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/cache/unit/save", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &hurry.NetworkTransientError{Op: "unitindex.save_units", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return &hurry.NetworkTransientError{Op: "unitindex.save_units", Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	return nil
}

// RestoreUnits looks up a batch of unit hashes, returning only those that
// exist and whose stored libc_version (if any) is <= hostLibcVersion.
// Missing units are simply absent from the result map, never an error; a
// reachability failure is returned as an error and the caller should
// treat every requested hash as a cache miss.
func (c *Client) RestoreUnits(ctx context.Context, hashes []hurry.UnitHash, hostLibcVersion string) (map[hurry.UnitHash]hurry.SavedUnit, error) {
	reqBody, err := json.Marshal(struct {
		UnitHashes      []hurry.UnitHash `json:"unit_hashes"`
		HostLibcVersion string           `json:"host_libc_version,omitempty"`
	}{UnitHashes: hashes, HostLibcVersion: hostLibcVersion})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/cache/unit/restore", bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &hurry.NetworkFatalError{Op: "unitindex.restore_units", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, &hurry.NetworkFatalError{Op: "unitindex.restore_units", Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	var result map[hurry.UnitHash]hurry.SavedUnit
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode restore_units response: %w", err)
	}
	return result, nil
}
