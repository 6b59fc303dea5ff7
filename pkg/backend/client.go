// Jarvisctl - Terminal client for the Jarvis assistant backend
// License: MIT
//
// Copyright (c) 2026 Jarvisctl contributors

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const defaultBaseURL = "http://localhost:8000"

// Client talks to the Jarvis assistant backend over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	// streamClient has no overall timeout; stream lifetime is bounded by
	// the request context.
	streamClient *http.Client
}

func NewClient(baseURL, proxy string, timeout time.Duration) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	streamClient := &http.Client{}

	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err == nil {
			transport := &http.Transport{Proxy: http.ProxyURL(proxyURL)}
			client.Transport = transport
			streamClient.Transport = transport
		}
	}

	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   client,
		streamClient: streamClient,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIError is a non-200 answer from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend request failed: status %d: %s", e.StatusCode, e.Message)
}

// extractAPIError pulls the FastAPI detail field out of an error body,
// falling back to the raw body.
func extractAPIError(statusCode int, body []byte) error {
	var payload struct {
		Detail string `json:"detail"`
	}
	message := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != "" {
		message = payload.Detail
	}
	if message == "" {
		message = http.StatusText(statusCode)
	}
	return &APIError{StatusCode: statusCode, Message: message}
}

// ChatRequest is the body for POST /chat/stream.
type ChatRequest struct {
	Message             string   `json:"message"`
	ConversationID      string   `json:"conversation_id,omitempty"`
	Mode                string   `json:"mode"`
	Model               string   `json:"model"`
	SessionDocIDs       []string `json:"session_doc_ids"`
	MemoryMode          string   `json:"memory_mode"`
	ConversationContext string   `json:"conversation_context"`
	CitationEnforcement bool     `json:"citation_enforcement"`
}

type UploadResult struct {
	Message string `json:"message"`
	DocID   string `json:"doc_id"`
	Chunks  int    `json:"chunks"`
}

type ModelInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type ModelList struct {
	Current   string               `json:"current"`
	Available map[string]ModelInfo `json:"available"`
}

type KnowledgeStats struct {
	TotalDocuments int `json:"total_documents"`
}

type KnowledgeContents struct {
	TotalCount int                 `json:"total_count"`
	Documents  []string            `json:"documents"`
	Metadatas  []map[string]string `json:"metadatas"`
	IDs        []string            `json:"ids"`
}

type HealthStatus struct {
	Status          string `json:"status"`
	ChromaDocuments int    `json:"chroma_documents"`
	EmbeddingModel  string `json:"embedding_model"`
	Error           string `json:"error"`
}

func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var out HealthStatus
	if err := c.getJSON(ctx, "/health", &out); err != nil {
		return HealthStatus{}, err
	}
	return out, nil
}

func (c *Client) Models(ctx context.Context) (ModelList, error) {
	var out ModelList
	if err := c.getJSON(ctx, "/models", &out); err != nil {
		return ModelList{}, err
	}
	return out, nil
}

func (c *Client) SwitchModel(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("model name is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/models/"+url.PathEscape(name), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.doDiscard(req)
}

func (c *Client) KnowledgeStats(ctx context.Context) (KnowledgeStats, error) {
	var out KnowledgeStats
	if err := c.getJSON(ctx, "/knowledge-base/stats", &out); err != nil {
		return KnowledgeStats{}, err
	}
	return out, nil
}

func (c *Client) KnowledgeInspect(ctx context.Context) (KnowledgeContents, error) {
	var out KnowledgeContents
	if err := c.getJSON(ctx, "/knowledge-base/inspect", &out); err != nil {
		return KnowledgeContents{}, err
	}
	return out, nil
}

func (c *Client) DeleteDocument(ctx context.Context, docID string) error {
	docID = strings.TrimSpace(docID)
	if docID == "" {
		return fmt.Errorf("document id is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/knowledge-base/document/"+url.PathEscape(docID), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.doDiscard(req)
}

// Upload sends a local file to the knowledge base. The returned doc id
// scopes retrieval to this conversation's session documents.
func (c *Client) Upload(ctx context.Context, path, conversationID string) (UploadResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return UploadResult{}, fmt.Errorf("open upload file: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return UploadResult{}, fmt.Errorf("build multipart form: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return UploadResult{}, fmt.Errorf("read upload file: %w", err)
	}
	if conversationID != "" {
		if err := writer.WriteField("conversation_id", conversationID); err != nil {
			return UploadResult{}, fmt.Errorf("build multipart form: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return UploadResult{}, fmt.Errorf("build multipart form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload-document", &buf)
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return UploadResult{}, extractAPIError(resp.StatusCode, body)
	}

	var out UploadResult
	if err := json.Unmarshal(body, &out); err != nil {
		return UploadResult{}, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return extractAPIError(resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func (c *Client) doDiscard(req *http.Request) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return extractAPIError(resp.StatusCode, body)
	}
	return nil
}
