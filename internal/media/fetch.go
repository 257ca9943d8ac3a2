package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	// browserUserAgent is sent to sites that serve HTML pages.
	browserUserAgent = "Mozilla/5.0 (compatible; PersonalOS/1.0)"
	// apiUserAgent is sent to JSON APIs.
	apiUserAgent = "Personal-OS/1.0"

	maxBodyBytes = 2 << 20
)

// statusError reports an unexpected HTTP status from a source.
type statusError struct {
	URL    string
	Status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Status)
}

func newRequest(ctx context.Context, method, url, userAgent string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

// isImage sends a HEAD request and reports whether url serves an image.
func isImage(ctx context.Context, client *http.Client, url string) (bool, error) {
	req, err := newRequest(ctx, http.MethodHead, url, apiUserAgent)
	if err != nil {
		return false, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, nil
	}
	return strings.Contains(resp.Header.Get("Content-Type"), "image"), nil
}

// getJSON decodes a 2xx JSON response into out.
func getJSON(ctx context.Context, client *http.Client, url, userAgent string, out any) error {
	req, err := newRequest(ctx, http.MethodGet, url, userAgent)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &statusError{URL: url, Status: resp.StatusCode}
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// getHTML returns the body of a 2xx HTML page.
func getHTML(ctx context.Context, client *http.Client, url string) (string, error) {
	req, err := newRequest(ctx, http.MethodGet, url, browserUserAgent)
	if err != nil {
		return "", err
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &statusError{URL: url, Status: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", url, err)
	}
	return string(body), nil
}
