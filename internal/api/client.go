package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Failure is the only error type returned by Client. Status is zero when the
// request never produced an HTTP response.
type Failure struct {
	Op     string
	Status int
	Reason string
	Err    error
}

func (f *Failure) Error() string {
	if f.Status != 0 {
		return fmt.Sprintf("api %s: status %d: %s", f.Op, f.Status, f.Reason)
	}
	return fmt.Sprintf("api %s: %s", f.Op, f.Reason)
}

func (f *Failure) Unwrap() error { return f.Err }

// NotFound reports whether the service answered 404.
func (f *Failure) NotFound() bool { return f.Status == http.StatusNotFound }

// IsNotFound reports whether err is a Failure carrying a 404.
func IsNotFound(err error) bool {
	var f *Failure
	return errors.As(err, &f) && f.NotFound()
}

// Client is a thin request/response client for the remote directory and
// CRUD service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return NewClientWithHTTP(baseURL, &http.Client{Timeout: timeout})
}

func NewClientWithHTTP(baseURL string, hc *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: hc,
	}
}

// do performs one request. A 2xx answer is decoded into out when out is not
// nil; anything else becomes a *Failure.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return &Failure{Op: op, Reason: "encode request", Err: err}
		}
		rdr = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return &Failure{Op: op, Reason: "build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Failure{Op: op, Reason: "transport error", Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &Failure{Op: op, Status: resp.StatusCode, Reason: "read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Failure{Op: op, Status: resp.StatusCode, Reason: reasonFrom(payload, resp.Status)}
	}

	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return &Failure{Op: op, Status: resp.StatusCode, Reason: "decode response", Err: err}
	}
	return nil
}

// reasonFrom extracts {"detail": ...} or {"error": ...} from an error body.
func reasonFrom(payload []byte, status string) string {
	var body struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err == nil {
		if body.Detail != "" {
			return body.Detail
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return status
}
