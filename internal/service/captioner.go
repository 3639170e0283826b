package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/timmy/vidqa/internal/logger"
)

// CaptionerService produces natural-language captions for video segment
// files through a Gemini-style file API. Each call uploads the segment,
// waits for the remote file to become ready, asks the model for a caption
// and then deletes the uploaded artifact regardless of outcome.
type CaptionerService struct {
	client       *resty.Client
	model        string
	pollInterval time.Duration
	pollTimeout  time.Duration
	logger       *logger.Logger
}

// CaptionerConfig holds configuration for the captioner service
type CaptionerConfig struct {
	BaseURL      string
	APIKey       string
	Model        string
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// NewCaptionerService creates a new captioner service
func NewCaptionerService(cfg *CaptionerConfig, log *logger.Logger) *CaptionerService {
	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetHeader("x-goog-api-key", cfg.APIKey)

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 300 * time.Second
	}

	return &CaptionerService{
		client:       client,
		model:        cfg.Model,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
		logger:       log,
	}
}

// retryableError marks a failure worth retrying: rate limits, server
// errors, transport failures and empty model output.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func retryable(err error) error {
	return &retryableError{err: err}
}

// IsRetryable reports whether the captioning failure is transient.
func IsRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

type remoteFile struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	State    string `json:"state"`
}

type uploadResponse struct {
	File remoteFile `json:"file"`
}

type generateRequest struct {
	Contents []generateContent `json:"contents"`
}

type generateContent struct {
	Parts []generatePart `json:"parts"`
}

type generatePart struct {
	Text     string    `json:"text,omitempty"`
	FileData *fileData `json:"file_data,omitempty"`
}

type fileData struct {
	FileURI  string `json:"file_uri"`
	MimeType string `json:"mime_type"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// Caption runs the full lifecycle for one segment file and returns the
// caption text. The uploaded artifact is deleted in all paths, including
// failures, so a retried attempt starts clean.
func (s *CaptionerService) Caption(ctx context.Context, localPath, prompt string) (string, error) {
	file, err := s.upload(ctx, localPath)
	if err != nil {
		return "", err
	}
	defer s.delete(ctx, file.Name)

	ready, err := s.waitUntilActive(ctx, file)
	if err != nil {
		return "", err
	}

	caption, err := s.generate(ctx, ready, prompt)
	if err != nil {
		return "", err
	}
	if caption == "" {
		return "", retryable(fmt.Errorf("model returned an empty caption for %s", filepath.Base(localPath)))
	}
	return caption, nil
}

func (s *CaptionerService) upload(ctx context.Context, localPath string) (*remoteFile, error) {
	var resp uploadResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetFile("file", localPath).
		SetResult(&resp).
		Post("/upload/v1beta/files")

	if err != nil {
		return nil, retryable(fmt.Errorf("failed to upload %s: %w", filepath.Base(localPath), err))
	}
	if err := classifyStatus(httpResp, "upload"); err != nil {
		return nil, err
	}
	if resp.File.Name == "" {
		return nil, fmt.Errorf("upload response missing file name, body: %s", httpResp.String())
	}
	return &resp.File, nil
}

// waitUntilActive polls the remote file state until it leaves PROCESSING.
func (s *CaptionerService) waitUntilActive(ctx context.Context, file *remoteFile) (*remoteFile, error) {
	deadline := time.Now().Add(s.pollTimeout)
	current := *file

	for current.State == "PROCESSING" || current.State == "" {
		if time.Now().After(deadline) {
			return nil, retryable(fmt.Errorf("file %s still processing after %s", file.Name, s.pollTimeout))
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.pollInterval):
		}

		var resp remoteFile
		httpResp, err := s.client.R().
			SetContext(ctx).
			SetResult(&resp).
			Get("/v1beta/" + current.Name)
		if err != nil {
			return nil, retryable(fmt.Errorf("failed to poll file %s: %w", current.Name, err))
		}
		if err := classifyStatus(httpResp, "poll"); err != nil {
			return nil, err
		}
		current = resp
	}

	if current.State != "ACTIVE" {
		return nil, fmt.Errorf("file %s entered state %s", current.Name, current.State)
	}
	return &current, nil
}

func (s *CaptionerService) generate(ctx context.Context, file *remoteFile, prompt string) (string, error) {
	mimeType := file.MimeType
	if mimeType == "" {
		mimeType = "video/mp4"
	}

	req := generateRequest{
		Contents: []generateContent{{
			Parts: []generatePart{
				{FileData: &fileData{FileURI: file.URI, MimeType: mimeType}},
				{Text: prompt},
			},
		}},
	}

	var resp generateResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&resp).
		Post("/v1beta/models/" + s.model + ":generateContent")

	if err != nil {
		return "", retryable(fmt.Errorf("failed to call caption model: %w", err))
	}
	if httpResp.StatusCode() != 200 {
		if resp.Error != nil {
			apiErr := fmt.Errorf("caption model error: %s (%s)", resp.Error.Message, resp.Error.Status)
			if httpResp.StatusCode() == 429 || httpResp.StatusCode() >= 500 {
				return "", retryable(apiErr)
			}
			return "", apiErr
		}
		return "", classifyStatus(httpResp, "generate")
	}

	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				return part.Text, nil
			}
		}
	}
	return "", nil
}

// delete removes the uploaded artifact. Failures are logged, not returned,
// since the caption result is already decided by this point.
func (s *CaptionerService) delete(ctx context.Context, name string) {
	httpResp, err := s.client.R().
		SetContext(ctx).
		Delete("/v1beta/" + name)
	if err != nil {
		s.logger.WithError(err).WithFields(logger.Fields{"file": name}).Warn("Failed to delete uploaded caption artifact")
		return
	}
	if httpResp.StatusCode() >= 300 && httpResp.StatusCode() != 404 {
		s.logger.WithFields(logger.Fields{
			"file":   name,
			"status": httpResp.StatusCode(),
		}).Warn("Unexpected status deleting uploaded caption artifact")
	}
}

func classifyStatus(resp *resty.Response, op string) error {
	code := resp.StatusCode()
	if code == 200 {
		return nil
	}
	err := fmt.Errorf("caption %s failed: status %d, body: %s", op, code, resp.String())
	if code == 429 || code >= 500 {
		return retryable(err)
	}
	return err
}
