package opsmanager

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/mongodb-forks/digest"
	"github.com/rs/zerolog"

	"github.com/cuemby/opsmgr/pkg/config"
	"github.com/cuemby/opsmgr/pkg/log"
	"github.com/cuemby/opsmgr/pkg/metrics"
	"github.com/cuemby/opsmgr/pkg/types"
)

// APIPrefix is the path prefix of the Ops Manager public API
const APIPrefix = "/api/public/v1.0"

// maxErrorBody caps how much of an error response is kept
const maxErrorBody = 4096

// Client talks to the Ops Manager public API over one persistent
// digest-authenticated HTTP client
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// New creates a client for cfg.BaseURL authenticated with cfg.User and
// cfg.APIKey
func New(cfg config.Config) (*Client, error) {
	tlsConfig, err := tlsConfigFor(cfg.TLS)
	if err != nil {
		return nil, err
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	base.TLSClientConfig = tlsConfig

	transport := digest.NewTransport(cfg.User, cfg.APIKey)
	transport.Transport = base

	httpClient, err := transport.Client()
	if err != nil {
		return nil, fmt.Errorf("failed to create digest client: %w", err)
	}
	httpClient.Timeout = cfg.Timeout

	return NewWithHTTPClient(cfg.BaseURL, httpClient), nil
}

// NewWithHTTPClient creates a client using an already configured
// *http.Client
func NewWithHTTPClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     log.WithComponent("opsmanager"),
	}
}

// BaseURL returns the Ops Manager root URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

func tlsConfigFor(mode config.TLSMode) (*tls.Config, error) {
	if !mode.Verify {
		return &tls.Config{InsecureSkipVerify: true}, nil //nolint:gosec // requested with --no-verify
	}
	if mode.CAFile == "" {
		return &tls.Config{}, nil
	}

	pem, err := os.ReadFile(mode.CAFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", mode.CAFile)
	}
	return &tls.Config{RootCAs: pool}, nil
}

// Get decodes the JSON document at path into out
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

// Put replaces the document at path with body
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPut, path, nil, body, out)
}

// Post creates a resource under path
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

// Delete removes the resource at path
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil || method == http.MethodDelete {
		req.Header.Set("Content-Type", "application/json")
	}

	timer := metrics.NewTimer()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveRequest(method, 0, timer)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	metrics.ObserveRequest(method, resp.StatusCode, timer)

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", timer.Duration()).
		Msg("API request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &types.TransportError{
			Method:     method,
			Endpoint:   path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(msg)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}
