package dash

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"xstreamdl/internal/logger"
)

// Client fetches manifests from the origin server. Redirects are followed
// manually so the final URL is known; segment URLs resolve against it, not
// against the address the user supplied.
type Client struct {
	httpClient *http.Client
	logger     logger.Logger
}

// NewClient creates a new manifest client.
func NewClient(log logger.Logger) *Client {
	transport := &http.Transport{
		ResponseHeaderTimeout: 10 * time.Second,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: log,
	}
}

// Fetch downloads a manifest and returns its body together with the final
// URL after any redirect.
func (c *Client) Fetch(initialURL, userAgent string) ([]byte, string, error) {
	c.logger.Debugf("Fetching manifest from URL: %s", initialURL)

	finalURL := initialURL
	var resp *http.Response
	for attempt := 0; attempt < 5; attempt++ {
		req, err := http.NewRequest("GET", finalURL, nil)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create request for manifest: %w", err)
		}
		if userAgent != "" {
			req.Header.Set("User-Agent", userAgent)
		}

		resp, err = c.httpClient.Do(req)
		if err != nil {
			return nil, "", fmt.Errorf("failed to fetch manifest from %s: %w", finalURL, err)
		}

		if resp.StatusCode == http.StatusFound || resp.StatusCode == http.StatusMovedPermanently ||
			resp.StatusCode == http.StatusSeeOther || resp.StatusCode == http.StatusTemporaryRedirect ||
			resp.StatusCode == http.StatusPermanentRedirect {
			location, err := resp.Location()
			resp.Body.Close()
			if err != nil {
				return nil, "", fmt.Errorf("redirect location error: %w", err)
			}
			finalURL = location.String()
			c.logger.Debugf("Redirected to: %s", finalURL)
			continue
		}
		break
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to fetch manifest: received status code %d from %s", resp.StatusCode, finalURL)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read manifest response body: %w", err)
	}

	c.logger.Debugf("Fetched %d bytes of manifest from %s", len(data), finalURL)
	return data, finalURL, nil
}

// HttpClient returns the underlying http.Client instance so the download
// stage can reuse its transport.
func (c *Client) HttpClient() *http.Client {
	return c.httpClient
}
