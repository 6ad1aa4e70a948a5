package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/attunehq/hurry"
)

// Client talks to a running Daemon over its UNIX socket. The request URL
// host is ignored by the custom dialer; only the socket path matters.
type Client struct {
	http *http.Client
}

// NewClient returns a Client dialing the daemon's UNIX socket at
// socketPath, overriding the transport's dialer so ordinary http.Request
// URLs (host "unix") resolve to the socket regardless of hostname.
func NewClient(socketPath string) *Client {
	return &Client{http: &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		},
	}}
}

// UploadSave posts a save request and returns once the daemon has
// accepted it; the save itself runs in the daemon's background.
func (c *Client) UploadSave(ctx context.Context, req UploadSaveRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://unix/upload", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return &hurry.DaemonUnavailableError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return &hurry.DaemonUnavailableError{Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	return nil
}

// GetStatus polls the daemon for one invocation's save progress.
func (c *Client) GetStatus(ctx context.Context, invocationID string) (Status, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://unix/status?invocation_id="+url.QueryEscape(invocationID), nil)
	if err != nil {
		return Status{}, err
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Status{}, &hurry.DaemonUnavailableError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Status{}, &hurry.DaemonUnavailableError{Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return Status{}, err
	}
	return status, nil
}
