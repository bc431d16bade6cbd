package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// defaultHTTPClient is shared by backends that do not need an
// authenticating transport. Per-call deadlines come from the context.
var defaultHTTPClient = &http.Client{Timeout: 10 * time.Minute}

// doJSON sends body as JSON (when non-nil) and decodes the JSON response
// into dest.
func doJSON(ctx context.Context, client *http.Client, backend, method, url string, headers map[string]string, body, dest any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", backend, err)
		}
		reader = bytes.NewReader(b)
	}
	if headers == nil {
		headers = map[string]string{}
	}
	if body != nil {
		headers["Content-Type"] = "application/json"
	}
	return doRaw(ctx, client, backend, method, url, headers, reader, dest)
}

// doRaw sends a request with a raw body and decodes the JSON response into
// dest. Non-2xx responses become *StatusError.
func doRaw(ctx context.Context, client *http.Client, backend, method, url string, headers map[string]string, body io.Reader, dest any) error {
	if client == nil {
		client = defaultHTTPClient
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", backend, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: do request: %w", backend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Backend: backend, StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if dest != nil {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return fmt.Errorf("%s: decode response: %w", backend, err)
		}
	}
	return nil
}
