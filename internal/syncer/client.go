// Package syncer keeps the availability backend's busy record consistent
// with the user-authored events of one calendar session, coalescing bursts
// of edits behind a trailing debounce timer.
package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"schedcal/internal/busy"
)

const busyPath = "/api/availability/busy"

// Client talks to the availability busy endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client for the given base URL
// (e.g. "http://127.0.0.1:8080").
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// PushBusy POSTs the busy payload and returns the normalized snapshot the
// backend confirmed.
func (c *Client) PushBusy(ctx context.Context, payload busy.Payload) (busy.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return busy.Response{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+busyPath, bytes.NewReader(body))
	if err != nil {
		return busy.Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return busy.Response{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return busy.Response{}, fmt.Errorf("busy push: unexpected status %s", resp.Status)
	}

	var out busy.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return busy.Response{}, err
	}
	return out, nil
}

// FetchBusy GETs the current busy snapshot. found=false means the backend
// has no stored state (HTTP 404), which is not an error.
func (c *Client) FetchBusy(ctx context.Context) (busy.Response, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+busyPath, nil)
	if err != nil {
		return busy.Response{}, false, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return busy.Response{}, false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var out busy.Response
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return busy.Response{}, false, err
		}
		return out, true, nil
	case http.StatusNotFound:
		return busy.Response{}, false, nil
	default:
		return busy.Response{}, false, errors.New(resp.Status)
	}
}

// ClearBusy deletes any stored busy state. Only success/failure is consumed.
func (c *Client) ClearBusy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+busyPath, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return errors.New(resp.Status)
	}
	return nil
}
