package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	preferencePath = "/v1/preferences/conversation-sync"
	syncPath       = "/v1/conversations/sync"
)

// Client is the HTTP client for the sync gateway. Both endpoints are
// relative to the configured base URL and require a bearer token; absence
// of either is a precondition the caller (the sync engine) enforces before
// any call is made.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient creates a gateway client. A nil httpClient gets a default with
// a generous timeout; large bootstrap uploads can take a while.
func NewClient(httpClient *http.Client, baseURL, token string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
	}
}

// FetchPreference retrieves the authoritative sync preference.
func (c *Client) FetchPreference(ctx context.Context) (*SyncPreferenceDTO, error) {
	var out SyncPreferenceDTO
	if err := c.do(ctx, http.MethodGet, preferencePath, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdatePreference pushes a preference change. The server echoes back the
// authoritative preference, including a possibly different lastDeviceId.
func (c *Client) UpdatePreference(ctx context.Context, update PreferenceUpdate) (*SyncPreferenceDTO, error) {
	var out SyncPreferenceDTO
	if err := c.do(ctx, http.MethodPut, preferencePath, update, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Sync performs one page of the sync exchange.
func (c *Client) Sync(ctx context.Context, req SyncRequest) (*SyncResponse, error) {
	var out SyncResponse
	if err := c.do(ctx, http.MethodPost, syncPath, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// errorBody is the gateway's error envelope. Either field may carry the
// human-readable message depending on the handler.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		r = bytes.NewReader(b)
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		token := c.token
		if !strings.HasPrefix(strings.ToLower(token), "bearer ") {
			token = "Bearer " + token
		}
		req.Header.Set("Authorization", token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}

	var eb errorBody
	_ = json.NewDecoder(resp.Body).Decode(&eb)
	msg := strings.TrimSpace(eb.Error)
	if msg == "" {
		msg = strings.TrimSpace(eb.Message)
	}
	if msg != "" {
		return fmt.Errorf("sync gateway %d: %s", resp.StatusCode, msg)
	}
	return fmt.Errorf("sync gateway status %d", resp.StatusCode)
}
