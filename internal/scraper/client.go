package scraper

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/alejandrocano/ctscrape/internal/config"
	"github.com/alejandrocano/ctscrape/internal/models"
)

// Client is the shared HTTP client for the retailer's JSON APIs. It injects
// the credential headers on every request and handles compressed bodies.
type Client struct {
	http   *http.Client
	cfg    *config.Config
	logger *slog.Logger
}

// NewClient creates a Client configured for the retailer endpoints.
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableCompression:  true, // we handle decompression ourselves (including brotli)
	}

	return &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.API.Timeout,
		},
		cfg:    cfg,
		logger: logger.With("component", "api_client"),
	}
}

// GetJSON issues a GET request and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, rawURL string, params url.Values, out any) error {
	return c.doJSON(ctx, http.MethodGet, rawURL, params, nil, out)
}

// PostJSON issues a POST request with a JSON body and decodes the response
// into out.
func (c *Client) PostJSON(ctx context.Context, rawURL string, params url.Values, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}
	return c.doJSON(ctx, http.MethodPost, rawURL, params, payload, out)
}

func (c *Client) doJSON(ctx context.Context, method, rawURL string, params url.Values, body []byte, out any) error {
	reqURL := rawURL
	if len(params) > 0 {
		reqURL = rawURL + "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return &models.APIError{URL: rawURL, Err: err}
	}

	c.setHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &models.APIError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return &models.APIError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(snippet)),
		}
	}

	reader, err := decompressReader(resp, resp.Body)
	if err != nil {
		return &models.APIError{URL: rawURL, Err: err}
	}

	if err := json.NewDecoder(reader).Decode(out); err != nil {
		return &models.APIError{URL: rawURL, Err: fmt.Errorf("decode response: %w", err)}
	}

	c.logger.Debug("api call complete",
		"method", method,
		"url", rawURL,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)
	return nil
}

// setHeaders applies the headers every retailer endpoint expects, including
// both credential values.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("User-Agent", c.cfg.API.UserAgent)
	req.Header.Set("Origin", c.cfg.API.SiteURL)
	req.Header.Set("Referer", c.cfg.API.SiteURL+"/")
	req.Header.Set("bv-bfd-token", c.cfg.Credentials.BVToken)
	req.Header.Set("ocp-apim-subscription-key", c.cfg.Credentials.SubscriptionKey)
}

// decompressReader wraps a reader with the appropriate decompressor.
// Handles gzip, deflate, and brotli (br) encodings.
func decompressReader(resp *http.Response, reader io.Reader) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(reader)
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return brotli.NewReader(reader), nil
	default:
		return reader, nil
	}
}
