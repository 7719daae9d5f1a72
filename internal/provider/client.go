// Mitra - Personality-Aware Media Recommendation Engine
// Copyright 2026 Anik R. (anikrm)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/anikrm/mitra

// Package provider supplies the engine's external collaborators: the
// catalog HTTP client that fetches raw candidates, and the store-backed
// profile and history sources.
package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/anikrm/mitra/internal/recommend"
)

// Config holds the catalog upstream settings.
type Config struct {
	// BaseURL is the catalog service root, e.g. http://localhost:8700.
	BaseURL string `koanf:"base_url" validate:"required,url"`

	// APIKey is sent as a bearer token when set.
	APIKey string `koanf:"api_key"`

	// Timeout bounds each catalog request. Default 10s.
	Timeout time.Duration `koanf:"timeout"`
}

// Client talks to the catalog REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ recommend.Provider = (*Client)(nil)

// NewClient creates a catalog client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// tracksResponse is the catalog list payload shared by all four
// endpoints.
type tracksResponse struct {
	Tracks []recommend.Candidate `json:"tracks"`
}

// FetchSimilar returns tracks similar to the seed IDs.
func (c *Client) FetchSimilar(ctx context.Context, seedIDs []string, max int) ([]recommend.Candidate, error) {
	query := url.Values{}
	query.Set("seeds", strings.Join(seedIDs, ","))
	query.Set("limit", strconv.Itoa(max))
	return c.fetchTracks(ctx, "/v1/tracks/similar", query)
}

// SearchGenre returns tracks tagged with the given genre.
func (c *Client) SearchGenre(ctx context.Context, genre string, max int) ([]recommend.Candidate, error) {
	query := url.Values{}
	query.Set("genre", genre)
	query.Set("limit", strconv.Itoa(max))
	return c.fetchTracks(ctx, "/v1/tracks/search", query)
}

// NewReleases returns the newest catalog additions.
func (c *Client) NewReleases(ctx context.Context, max int) ([]recommend.Candidate, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(max))
	return c.fetchTracks(ctx, "/v1/tracks/new-releases", query)
}

// Popular returns the globally most popular tracks.
func (c *Client) Popular(ctx context.Context, max int) ([]recommend.Candidate, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(max))
	return c.fetchTracks(ctx, "/v1/tracks/popular", query)
}

func (c *Client) fetchTracks(ctx context.Context, endpoint string, query url.Values) ([]recommend.Candidate, error) {
	fullURL := c.baseURL + endpoint + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if readErr != nil {
			return nil, fmt.Errorf("catalog %s returned status %d (failed to read body)", endpoint, resp.StatusCode)
		}
		return nil, fmt.Errorf("catalog %s returned status %d: %s", endpoint, resp.StatusCode, string(body))
	}

	var out tracksResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode catalog response: %w", err)
	}
	return out.Tracks, nil
}

// Ping tests connectivity to the catalog service.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/ping", http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("catalog ping failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog ping returned status %d", resp.StatusCode)
	}
	return nil
}
