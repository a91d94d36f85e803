package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Backend endpoints. The upload and chat shapes are fixed by the server
// contract; /api/documents is part of the contract but only surfaced on the
// about page.
const (
	healthPath    = "/api/health"
	uploadPath    = "/api/upload"
	chatPath      = "/api/chat"
	documentPath  = "/api/document"
	documentsPath = "/api/documents"
)

// RequestTimeout bounds every backend call, including uploads.
const RequestTimeout = 30 * time.Second

// APIError is the single error kind returned by Client. Any transport
// failure, non-2xx status, or undecodable success body collapses into one of
// these; callers never see a partial result alongside an error.
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// DocumentInfo is the backend's description of an uploaded PDF.
type DocumentInfo struct {
	DocumentID string `json:"documentId"`
	Filename   string `json:"filename"`
	NumPages   int    `json:"numPages"`
	FileURL    string `json:"fileUrl"`
}

// Citation points an assistant answer at a specific page of the document.
type Citation struct {
	ID   int    `json:"id"`
	Page int    `json:"page"`
	Text string `json:"text"`
}

// ChatResponse is the backend's answer to a chat message.
type ChatResponse struct {
	Response  string     `json:"response"`
	Citations []Citation `json:"citations"`
}

// Client talks to the PDF question-answering backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *logrus.Logger
}

func New(baseURL string, log *logrus.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: RequestTimeout},
		log:        log,
	}
}

// BaseURL returns the backend base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// FileURL resolves a backend-relative file path (DocumentInfo.FileURL) to an
// absolute URL the browser can load.
func (c *Client) FileURL(fileURL string) string {
	return c.baseURL + fileURL
}

// UploadPDF sends the file as multipart form field "pdf" and returns the
// stored document's metadata.
func (c *Client) UploadPDF(ctx context.Context, filename string, file io.Reader) (*DocumentInfo, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("pdf", filename)
	if err != nil {
		return nil, c.fail(uploadPath, fmt.Sprintf("building upload form: %v", err))
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, c.fail(uploadPath, fmt.Sprintf("reading upload: %v", err))
	}
	if err := mw.Close(); err != nil {
		return nil, c.fail(uploadPath, fmt.Sprintf("building upload form: %v", err))
	}

	var doc DocumentInfo
	if err := c.do(ctx, http.MethodPost, uploadPath, &buf, mw.FormDataContentType(), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// SendChatMessage asks a question about the given document.
func (c *Client) SendChatMessage(ctx context.Context, message, documentID string) (*ChatResponse, error) {
	body, err := json.Marshal(map[string]string{
		"message":    message,
		"documentId": documentID,
	})
	if err != nil {
		return nil, c.fail(chatPath, fmt.Sprintf("encoding chat request: %v", err))
	}

	var resp ChatResponse
	if err := c.do(ctx, http.MethodPost, chatPath, bytes.NewReader(body), "application/json", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DocumentInfo fetches metadata for a previously uploaded document.
func (c *Client) DocumentInfo(ctx context.Context, documentID string) (*DocumentInfo, error) {
	var doc DocumentInfo
	if err := c.do(ctx, http.MethodGet, documentPath+"/"+documentID, nil, "", &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Health returns the backend's health payload. The shape is opaque to the
// client; it is rendered as-is on the about page.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var payload map[string]any
	if err := c.do(ctx, http.MethodGet, healthPath, nil, "", &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// Documents lists all documents the backend holds.
func (c *Client) Documents(ctx context.Context) ([]DocumentInfo, error) {
	var docs []DocumentInfo
	if err := c.do(ctx, http.MethodGet, documentsPath, nil, "", &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// do issues one request and decodes the JSON response into out. A JSON
// content type is only set for explicit JSON bodies; multipart uploads carry
// the writer's boundary content type instead.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return c.fail(path, fmt.Sprintf("building request: %v", err))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.fail(path, fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.fail(path, errorMessage(resp))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return c.fail(path, fmt.Sprintf("decoding response: %v", err))
		}
	}
	return nil
}

// errorMessage extracts the server's {error} body, falling back to the
// status line when the body is absent or not JSON.
func errorMessage(resp *http.Response) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return body.Error
	}
	return fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}

func (c *Client) fail(path, msg string) error {
	c.log.WithField("endpoint", path).Error(msg)
	return &APIError{Message: msg}
}
