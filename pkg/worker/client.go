package worker

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

// GeneratePath is the batch endpoint on the worker service.
const GeneratePath = "/generate-pdf"

// ErrTransportUnavailable means the worker service could not be reached or
// answered with something that is not a batch response. Distinct from every
// batch-level failure: the user's images are untouched and a retry is safe.
var ErrTransportUnavailable = errors.New("worker service unreachable")

// Client invokes a remote worker service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// the per-call context carries the real deadline; this is a backstop
		http: &http.Client{Timeout: 10 * time.Minute},
	}
}

func (c *Client) Invoke(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+GeneratePath, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")

	hresp, err := c.http.Do(hreq)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	defer hresp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(hresp.Body, 1<<20))
	if err != nil {
		return Response{}, fmt.Errorf("%w: read response: %v", ErrTransportUnavailable, err)
	}

	// Failure statuses still carry a Response body; only an unparsable
	// reply (a proxy error page, say) counts as transport trouble.
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Response{}, fmt.Errorf("%w: status %d with non-contract body", ErrTransportUnavailable, hresp.StatusCode)
	}
	return resp, nil
}

// Health probes the worker's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	hresp, err := c.http.Do(hreq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	defer hresp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(hresp.Body, 4<<10))
	if hresp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health status %d", ErrTransportUnavailable, hresp.StatusCode)
	}
	return nil
}
