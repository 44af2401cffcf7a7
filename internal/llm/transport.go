package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultHTTPTimeout = 5 * time.Minute

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultHTTPTimeout}
}

// post sends a JSON body and returns the response if the status is 200. Any other
// status is returned as a *StatusError with the body drained.
func post(ctx context.Context, c *http.Client, provider, url string, headers map[string]string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", provider, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Provider: provider, StatusCode: resp.StatusCode, Body: string(b)}
	}
	return resp, nil
}

// get is used by Ping implementations.
func get(ctx context.Context, c *http.Client, provider, url string, headers map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.Do(req)
	if err != nil {
		return fmt.Errorf("cannot connect to %s: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%s: invalid API key", provider)
	}
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Provider: provider, StatusCode: resp.StatusCode}
	}
	return nil
}

// sseData yields the payload of every "data: " line until fn returns false.
func sseData(r io.Reader, fn func(data string) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		if !fn(strings.TrimSpace(data)) {
			return nil
		}
	}
	return scanner.Err()
}

// send delivers ev unless the consumer went away.
func send(ctx context.Context, events chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
