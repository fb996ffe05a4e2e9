package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/caresim-lab/caseflow/pkg/domain/interfaces"
	"github.com/caresim-lab/caseflow/pkg/domain/model"
	"github.com/caresim-lab/caseflow/pkg/utils/safe"
	"github.com/m-mizutani/goerr/v2"
)

const defaultBaseURL = "https://api-inference.huggingface.co/models/"

// DefaultModel is the chest X-ray pneumonia classifier the pipeline was
// built around
const DefaultModel = "lxyuan/vit-xray-pneumonia-classification"

// client implements interfaces.VisionClassifier against the HuggingFace
// Inference API image-classification pipeline
type client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	modelID    string
}

// Option is a functional option for client configuration
type Option func(*client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithBaseURL overrides the inference endpoint (used by tests)
func WithBaseURL(url string) Option {
	return func(c *client) {
		c.baseURL = url
	}
}

// WithModel sets the classification model ID
func WithModel(modelID string) Option {
	return func(c *client) {
		c.modelID = modelID
	}
}

// New creates a new vision classifier client
func New(token string, opts ...Option) (interfaces.VisionClassifier, error) {
	c := &client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    defaultBaseURL,
		token:      token,
		modelID:    DefaultModel,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.modelID == "" {
		return nil, goerr.New("vision model ID is required")
	}

	return c, nil
}

// scoredLabel is the response item shape of the image-classification
// pipeline
type scoredLabel struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Classify submits the image bytes and returns the best-scoring label from
// the expected set. A top label outside the set is a malformed response,
// not a silent fallback.
func (c *client) Classify(ctx context.Context, image []byte, labels []string) (*interfaces.Classification, error) {
	if len(image) == 0 {
		return nil, goerr.Wrap(model.ErrUnsupportedFormat, "empty image payload")
	}
	if !sniffImageFormat(image) {
		return nil, goerr.Wrap(model.ErrUnsupportedFormat, "image is not PNG or JPEG")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.modelID, bytes.NewReader(image))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build classification request")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	res, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, goerr.Wrap(model.ErrTimeout, err.Error())
		}
		return nil, goerr.Wrap(model.ErrUnavailable, err.Error())
	}
	defer safe.Close(ctx, res.Body)

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(res.Body)
		return nil, classifyHTTPError(res.StatusCode, string(body))
	}

	var scored []scoredLabel
	if err := json.NewDecoder(res.Body).Decode(&scored); err != nil {
		return nil, goerr.Wrap(model.ErrMalformedOutput, "failed to decode classification response")
	}
	if len(scored) == 0 {
		return nil, goerr.Wrap(model.ErrMalformedOutput, "empty classification response")
	}

	expected := make(map[string]bool, len(labels))
	for _, l := range labels {
		expected[strings.ToUpper(l)] = true
	}

	best := scored[0]
	for _, s := range scored[1:] {
		if s.Score > best.Score {
			best = s
		}
	}

	label := strings.ToUpper(best.Label)
	if len(expected) > 0 && !expected[label] {
		return nil, goerr.Wrap(model.ErrMalformedOutput, "classifier label outside expected set",
			goerr.V("label", best.Label), goerr.V("expected", labels))
	}
	if best.Score < 0 || best.Score > 1 {
		return nil, goerr.Wrap(model.ErrMalformedOutput, "classifier confidence out of range",
			goerr.V("score", best.Score))
	}

	return &interfaces.Classification{
		Label:      label,
		Confidence: best.Score,
	}, nil
}

func classifyHTTPError(status int, body string) error {
	switch {
	case status == http.StatusTooManyRequests:
		return goerr.Wrap(model.ErrRateLimited, "classifier rate limited", goerr.V("body", body))
	case status == http.StatusUnsupportedMediaType || status == http.StatusBadRequest:
		return goerr.Wrap(model.ErrUnsupportedFormat, "classifier rejected image", goerr.V("body", body))
	case status >= 500:
		return goerr.Wrap(model.ErrUnavailable, "classifier unavailable",
			goerr.V("status", status), goerr.V("body", body))
	default:
		return goerr.New("unexpected classifier response",
			goerr.V("status", status), goerr.V("body", body))
	}
}

// sniffImageFormat checks PNG and JPEG magic bytes
func sniffImageFormat(image []byte) bool {
	if len(image) >= 8 && bytes.HasPrefix(image, []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}) {
		return true
	}
	if len(image) >= 3 && bytes.HasPrefix(image, []byte{0xFF, 0xD8, 0xFF}) {
		return true
	}
	return false
}
