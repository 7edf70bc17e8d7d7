// Package api is the HTTP client for the agent server's REST surface, plus
// the message pagination shared with the fake server.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"

	"github.com/tabchat/tabchat/pkg/httpclient"
)

// Client is an HTTP client for the agent server API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// ClientOption is a function for configuring the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// NewClient creates a new HTTP client for the agent server.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	client := &Client{
		baseURL:    parsedURL,
		httpClient: httpclient.New(),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// ErrorResponse represents an error response from the API.
type ErrorResponse struct {
	Error string `json:"error"`
}

// doRequest performs an HTTP request and handles common response patterns.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, query url.Values, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	u := *c.baseURL
	u.Path = path.Join(u.Path, endpoint)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != "" {
			return fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshaling response: %w", err)
		}
	}

	return nil
}

// GetSessions retrieves all sessions.
func (c *Client) GetSessions(ctx context.Context) ([]SessionSummary, error) {
	var sessions []SessionSummary
	err := c.doRequest(ctx, "GET", "/api/sessions", nil, nil, &sessions)
	return sessions, err
}

// GetSession retrieves a session by ID, including its message history.
func (c *Client) GetSession(ctx context.Context, id string, params PaginationParams) (*SessionResponse, error) {
	query := url.Values{}
	if params.Limit > 0 {
		query.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Before != "" {
		query.Set("before", params.Before)
	}

	var sess SessionResponse
	err := c.doRequest(ctx, "GET", "/api/sessions/"+id, query, nil, &sess)
	return &sess, err
}

// DeleteSession deletes a session by ID.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.doRequest(ctx, "DELETE", "/api/sessions/"+id, nil, nil, nil)
}

// UpdateSessionTitle renames a session.
func (c *Client) UpdateSessionTitle(ctx context.Context, id, title string) error {
	req := UpdateSessionTitleRequest{Title: title}
	return c.doRequest(ctx, "PUT", "/api/sessions/"+id+"/title", nil, req, nil)
}

// RewindSession truncates a session's transcript to the first numMessages
// entries. The caller is expected to re-hydrate any tab bound to the session
// afterwards, since the local transcript is now ahead of the server's.
func (c *Client) RewindSession(ctx context.Context, id string, numMessages int) error {
	req := RewindSessionRequest{NumMessages: numMessages}
	return c.doRequest(ctx, "POST", "/api/sessions/"+id+"/rewind", nil, req, nil)
}

// GetProfiles retrieves the agent profiles the server offers.
func (c *Client) GetProfiles(ctx context.Context) ([]Profile, error) {
	var profiles []Profile
	err := c.doRequest(ctx, "GET", "/api/profiles", nil, nil, &profiles)
	return profiles, err
}

// GetProjects retrieves the projects the server can bind sessions to.
func (c *Client) GetProjects(ctx context.Context) ([]Project, error) {
	var projects []Project
	err := c.doRequest(ctx, "GET", "/api/projects", nil, nil, &projects)
	return projects, err
}
