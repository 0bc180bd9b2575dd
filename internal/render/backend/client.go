package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/render-studio/internal/render/domain"
)

// Config holds render backend connection configuration
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	Headers        map[string]string
}

// Client talks to the render engine over HTTP
type Client struct {
	config     *Config
	origin     *url.URL
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// NewClient creates a new render backend client
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	origin, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid render backend url: %w", err)
	}
	if origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("render backend url must be absolute: %q", config.BaseURL)
	}

	return &Client{
		config:     config,
		origin:     origin,
		httpClient: &http.Client{Timeout: config.RequestTimeout},
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Origin returns the base URL relative result paths are resolved against
func (c *Client) Origin() string {
	return c.origin.String()
}

// Submit sends a render request as a multipart form
func (c *Client) Submit(ctx context.Context, req domain.JobRequest) (*SubmitResult, error) {
	body, contentType, err := encodeSubmission(req.WithDefaults())
	if err != nil {
		return nil, fmt.Errorf("failed to encode submission: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(SubmitPath), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build submit request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, domain.ErrSessionExpired
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case isRejectionStatus(resp.StatusCode):
		var payload submitResponse
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, domain.NewRejectedError("")
		}
		return nil, domain.NewRejectedError(payload.reason())
	default:
		return nil, fmt.Errorf("%w: submit returned HTTP %d", domain.ErrTransport, resp.StatusCode)
	}

	var payload submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}

	if payload.Status != domain.BackendStatusQueued && payload.Status != domain.BackendStatusProcessing {
		return nil, domain.NewRejectedError(payload.reason())
	}
	if payload.JobID == "" {
		return nil, fmt.Errorf("%w: accepted without job_id", domain.ErrMalformedResponse)
	}

	c.logger.Info("Render job accepted",
		slog.String("job_id", payload.JobID),
		slog.String("status", payload.Status),
		slog.String("shop", req.ShopIdentifier),
	)

	return &SubmitResult{Status: payload.Status, JobID: payload.JobID}, nil
}

// Poll fetches the current status of a job
func (c *Client) Poll(ctx context.Context, jobID string) (*StatusReport, error) {
	endpoint := c.endpoint(fmt.Sprintf(StatusPathTpl, url.PathEscape(jobID)))
	// cache buster, some proxies in front of the engine cache GETs
	endpoint += "?t=" + strconv.FormatInt(c.now().UnixMilli(), 10)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build status request: %w", err)
	}

	resp, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, domain.ErrSessionExpired
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status returned HTTP %d", domain.ErrTransport, resp.StatusCode)
	}

	var payload statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}

	return &StatusReport{
		Status:   payload.Status,
		Progress: payload.Progress,
		URL:      payload.URL,
		Error:    payload.Error,
	}, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Render backend request failed",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.Duration("latency", time.Since(start)),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}

	c.logger.Debug("Render backend request",
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("latency", time.Since(start)),
	)

	return resp, nil
}

func (c *Client) endpoint(path string) string {
	return c.origin.String() + path
}

func isRejectionStatus(code int) bool {
	return code == http.StatusBadRequest ||
		code == http.StatusConflict ||
		code == http.StatusUnprocessableEntity
}

func encodeSubmission(req domain.JobRequest) (io.Reader, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	images, err := json.Marshal(req.Images)
	if err != nil {
		return nil, "", err
	}

	fields := []struct {
		name, value string
	}{
		{FieldImageURLs, string(images)},
		{FieldProductTitle, req.ProductTitle},
		{FieldProductDesc, req.ProductDescription},
		{FieldDuration, strconv.Itoa(req.DurationSeconds)},
		{FieldVoiceGender, req.VoiceGender},
		{FieldScriptTone, req.ScriptTone},
		{FieldVideoTheme, req.VideoTheme},
		{FieldShopName, req.ShopIdentifier},
	}
	if req.CustomScript != "" {
		fields = append(fields, struct{ name, value string }{FieldCustomScript, req.CustomScript})
	}

	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", err
		}
	}

	if err := writeAttachment(w, FieldMusicFile, req.BackgroundMusic); err != nil {
		return nil, "", err
	}
	if err := writeAttachment(w, FieldUserVoiceFile, req.UserVoiceAudio); err != nil {
		return nil, "", err
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}

	return buf, w.FormDataContentType(), nil
}

func writeAttachment(w *multipart.Writer, field string, a *domain.Attachment) error {
	if a == nil {
		return nil
	}

	filename := a.Filename
	if filename == "" {
		filename = field
	}
	contentType := a.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write(a.Data)
	return err
}
