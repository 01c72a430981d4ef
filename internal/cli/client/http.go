package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const (
	headerAPIKey     = "x-api-key"
	headerCustomerID = "customer_id"
	headerProjectID  = "project_id"
)

type APIClient struct {
	settings   Settings
	httpClient *http.Client
}

// NewAPIClientWithCmd resolves settings from cmd's flags and the environment.
func NewAPIClientWithCmd(cmd *cobra.Command) (*APIClient, error) {
	settings, err := ResolveSettings(cmd)
	if err != nil {
		return nil, err
	}
	return NewAPIClientWithSettings(settings), nil
}

// NewAPIClientWithSettings creates an APIClient with explicit settings.
func NewAPIClientWithSettings(settings Settings) *APIClient {
	settings.APIURL = strings.TrimRight(settings.APIURL, "/")
	return &APIClient{
		settings: settings,
		httpClient: &http.Client{
			// Answers wait on a chat completion.
			Timeout: 2 * time.Minute,
		},
	}
}

// APIError represents an error from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

type IngestResponse struct {
	OK     bool   `json:"ok"`
	Chunks int    `json:"chunks"`
	Key    string `json:"key"`
}

type AskRequest struct {
	Question  string `json:"question"`
	TopK      *int   `json:"top_k,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

type Source struct {
	Source     string `json:"source"`
	CustomerID string `json:"customer_id"`
	ProjectID  string `json:"project_id"`
}

type AskResponse struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
	K       int      `json:"k"`
}

type SessionTurn struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	AskedAt  time.Time `json:"asked_at"`
}

type SessionResponse struct {
	SessionID string        `json:"session_id"`
	Turns     []SessionTurn `json:"turns"`
}

// Ingest uploads content as the multipart "file" field.
func (c *APIClient) Ingest(ctx context.Context, filename, contentType string, content io.Reader) (*IngestResponse, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(filename)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	hdr.Set("Content-Type", contentType)

	part, err := mw.CreatePart(hdr)
	if err != nil {
		return nil, fmt.Errorf("failed to create form part: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish form: %w", err)
	}

	var resp IngestResponse
	if err := c.do(ctx, http.MethodPost, "/ingest", mw.FormDataContentType(), body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *APIClient) Ask(ctx context.Context, req AskRequest) (*AskResponse, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	var resp AskResponse
	if err := c.do(ctx, http.MethodPost, "/ask", "application/json", bytes.NewReader(data), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// History returns the recorded turns of sessionID in the client's namespace.
func (c *APIClient) History(ctx context.Context, sessionID string) (*SessionResponse, error) {
	var resp SessionResponse
	if err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(sessionID), "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *APIClient) do(ctx context.Context, method, path, contentType string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.settings.APIURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.settings.APIKey != "" {
		req.Header.Set(headerAPIKey, c.settings.APIKey)
	}
	if c.settings.CustomerID != "" {
		req.Header.Set(headerCustomerID, c.settings.CustomerID)
	}
	if c.settings.ProjectID != "" {
		req.Header.Set(headerProjectID, c.settings.ProjectID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
