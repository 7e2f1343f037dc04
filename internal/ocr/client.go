package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/pagelift/pagelift/internal/config"
	"github.com/pagelift/pagelift/pkg/logging"
)

// Client talks to the Mistral OCR API: file upload, signed retrieval
// URL, recognition. It performs no disk writes; retry policy lives in
// retry.go.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string

	maxRetries int
	demoMode   bool
	sleep      func(time.Duration)
	log        zerolog.Logger
}

// NewClient builds a client from the service configuration.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    cfg.MistralBaseURL,
		apiKey:     cfg.MistralAPIKey,
		model:      cfg.OCRModel,
		maxRetries: cfg.MaxRetries,
		demoMode:   cfg.UseDemoOCR,
		sleep:      time.Sleep,
		log:        logging.GetLogger("ocr-client"),
	}
}

// Process runs one full submit-and-recognize sequence: upload the
// document, obtain a signed URL, request recognition against it.
func (c *Client) Process(ctx context.Context, content []byte, filename string, includeImages bool) (*Response, error) {
	fileID, err := c.uploadFile(ctx, filename, content)
	if err != nil {
		return nil, err
	}

	signedURL, err := c.signedURL(ctx, fileID)
	if err != nil {
		return nil, err
	}

	resp, err := c.recognize(ctx, signedURL, includeImages)
	if err != nil {
		return nil, err
	}
	resp.DocumentURL = signedURL
	return resp, nil
}

// ProcessURL requests recognition directly against a caller-supplied
// document URL, skipping the upload step.
func (c *Client) ProcessURL(ctx context.Context, documentURL string, includeImages bool) (*Response, error) {
	resp, err := c.recognize(ctx, documentURL, includeImages)
	if err != nil {
		return nil, err
	}
	resp.DocumentURL = documentURL
	return resp, nil
}

// CheckAccess probes the vendor API with a cheap authenticated call.
func (c *Client) CheckAccess(ctx context.Context) error {
	if c.apiKey == "" {
		return &APIError{Class: ClassAuth, Message: "MISTRAL_API_KEY is not set"}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return &APIError{Class: ClassPermanent, Message: "build models request", Err: err}
	}
	body, err := c.do(req)
	if err != nil {
		return err
	}
	_ = body
	return nil
}

func (c *Client) uploadFile(ctx context.Context, filename string, content []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("purpose", "ocr"); err != nil {
		return "", &APIError{Class: ClassPermanent, Message: "build upload form", Err: err}
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", &APIError{Class: ClassPermanent, Message: "build upload form", Err: err}
	}
	if _, err := part.Write(content); err != nil {
		return "", &APIError{Class: ClassPermanent, Message: "build upload form", Err: err}
	}
	if err := mw.Close(); err != nil {
		return "", &APIError{Class: ClassPermanent, Message: "build upload form", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/files", &buf)
	if err != nil {
		return "", &APIError{Class: ClassPermanent, Message: "build upload request", Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	body, err := c.do(req)
	if err != nil {
		return "", err
	}

	var upload UploadResponse
	if err := json.Unmarshal(body, &upload); err != nil {
		return "", &APIError{Class: ClassPermanent, Message: "decode upload response", Err: err}
	}
	if upload.ID == "" {
		return "", &APIError{Class: ClassPermanent, Message: "upload response carries no file id"}
	}
	return upload.ID, nil
}

func (c *Client) signedURL(ctx context.Context, fileID string) (string, error) {
	url := fmt.Sprintf("%s/v1/files/%s/url?expiry=24", c.baseURL, fileID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &APIError{Class: ClassPermanent, Message: "build signed url request", Err: err}
	}

	body, err := c.do(req)
	if err != nil {
		return "", err
	}

	var signed SignedURLResponse
	if err := json.Unmarshal(body, &signed); err != nil {
		return "", &APIError{Class: ClassPermanent, Message: "decode signed url response", Err: err}
	}
	if signed.URL == "" {
		return "", &APIError{Class: ClassPermanent, Message: "signed url response carries no url"}
	}
	return signed.URL, nil
}

func (c *Client) recognize(ctx context.Context, documentURL string, includeImages bool) (*Response, error) {
	payload := map[string]any{
		"model": c.model,
		"document": map[string]any{
			"type":         "document_url",
			"document_url": documentURL,
		},
		"include_image_base64": includeImages,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, &APIError{Class: ClassPermanent, Message: "encode ocr request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/ocr", bytes.NewReader(raw))
	if err != nil {
		return nil, &APIError{Class: ClassPermanent, Message: "build ocr request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &APIError{Class: ClassPermanent, Message: "decode ocr response", Err: err}
	}
	return &resp, nil
}

// do executes a request with auth headers and maps failures onto the
// error taxonomy. A timeout counts as a transport error, not its own
// class.
func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Class: ClassTransient, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Class: ClassTransient, Message: "read response body", Err: err}
	}

	if resp.StatusCode >= 400 {
		msg := string(body)
		if len(msg) > 512 {
			msg = msg[:512]
		}
		return nil, &APIError{
			Status:  resp.StatusCode,
			Class:   classify(resp.StatusCode),
			Message: msg,
		}
	}
	return body, nil
}
