// Package client provides the admin API client for memmesh-cli.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yndnr/memmesh-go/internal/federation/domain"
)

// Client talks to a node's admin HTTP surface.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates an admin client for the given server address.
func New(server string) *Client {
	baseURL := server
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}

	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// BaseURL returns the base URL of the client.
func (c *Client) BaseURL() string { return c.baseURL }

// Status mirrors the node's /v1/admin/status response.
type Status struct {
	NodeID            string `json:"node_id"`
	Addr              string `json:"addr"`
	Role              string `json:"role"`
	Term              uint64 `json:"term"`
	LeaderID          string `json:"leader_id"`
	CommitIndex       uint64 `json:"commit_index"`
	Degraded          bool   `json:"degraded"`
	Replication       string `json:"replication"`
	MembersTotal      int    `json:"members_total"`
	MembersSelectable int    `json:"members_selectable"`
	Records           int    `json:"records"`
	Quarantined       int    `json:"quarantined"`
}

// Status fetches the node status.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.get(ctx, "/v1/admin/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Members fetches the membership table.
func (c *Client) Members(ctx context.Context) ([]domain.NodeDescriptor, error) {
	var members []domain.NodeDescriptor
	if err := c.get(ctx, "/v1/admin/members", &members); err != nil {
		return nil, err
	}
	return members, nil
}

// Select asks the node to pick a member with the given algorithm.
func (c *Client) Select(ctx context.Context, algorithm string) (*domain.NodeDescriptor, error) {
	var desc domain.NodeDescriptor
	path := "/v1/admin/select?algorithm=" + url.QueryEscape(algorithm)
	if err := c.get(ctx, path, &desc); err != nil {
		return nil, err
	}
	return &desc, nil
}

type kvValue struct {
	Value []byte `json:"value"`
}

// Get reads a replicated key.
func (c *Client) Get(ctx context.Context, key string, strong bool) ([]byte, error) {
	var out kvValue
	if err := c.get(ctx, kvPath(key, strong), &out); err != nil {
		return nil, err
	}
	return out.Value, nil
}

// Put writes a replicated key.
func (c *Client) Put(ctx context.Context, key string, value []byte, strong bool) error {
	body, err := json.Marshal(kvValue{Value: value})
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}
	return c.do(ctx, http.MethodPut, kvPath(key, strong), body, nil)
}

// Delete removes a replicated key.
func (c *Client) Delete(ctx context.Context, key string, strong bool) error {
	return c.do(ctx, http.MethodDelete, kvPath(key, strong), nil, nil)
}

func kvPath(key string, strong bool) string {
	path := "/v1/admin/kv/" + url.PathEscape(key)
	if strong {
		path += "?consistency=strong"
	}
	return path
}

func (c *Client) get(ctx context.Context, path string, target any) error {
	return c.do(ctx, http.MethodGet, path, nil, target)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, target any) error {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "memmesh-cli/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Message != "" {
			return fmt.Errorf("[%s] %s", errResp.Code, errResp.Message)
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	if target != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}
