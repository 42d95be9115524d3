package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"time"

	"github.com/timnirmal/realtimecam-sampling-service/internal/domain/entity"
	"go.uber.org/zap"
)

// Endpoint describes one backend route: where to POST, how to tag the file
// part, and which response keys may carry the label.
type Endpoint struct {
	Path        string
	FileField   string
	ContentType string
	LabelKeys   []string
}

// Classifier POSTs samples to the classification backend as multipart form
// uploads and extracts the predicted label from the JSON response. It owns
// the sample's backing file and removes it after every upload attempt.
type Classifier struct {
	baseURL string
	image   Endpoint
	audio   Endpoint
	client  *http.Client
	logger  *zap.Logger
}

func NewClassifier(baseURL string, image Endpoint, audio Endpoint, timeout time.Duration, logger *zap.Logger) *Classifier {
	return &Classifier{
		baseURL: baseURL,
		image:   image,
		audio:   audio,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (c *Classifier) Classify(ctx context.Context, sample *entity.Sample) (string, error) {
	defer c.removeSampleFile(sample.FilePath)

	ep := c.image
	if sample.Modality() == entity.ModalityAudio {
		ep = c.audio
	}

	body, contentType, err := buildForm(ep, sample.FilePath)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ep.Path, body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("post %s: %w", ep.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("backend returned %s for %s: %s", resp.Status, ep.Path, string(detail))
	}

	label, err := decodeLabel(resp.Body, ep.LabelKeys)
	if err != nil {
		return "", fmt.Errorf("decode %s response: %w", ep.Path, err)
	}

	c.logger.Debug("sample classified",
		zap.String("endpoint", ep.Path),
		zap.String("label", label),
	)
	return label, nil
}

func buildForm(ep Endpoint, filePath string) (*bytes.Buffer, string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, "", fmt.Errorf("open sample: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=%q; filename=%q`, ep.FileField, filepath.Base(filePath)))
	header.Set("Content-Type", ep.ContentType)

	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create form part: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("copy sample into form: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// decodeLabel tries the configured keys in order against the response object
// and returns the first non-empty string value.
func decodeLabel(r io.Reader, keys []string) (string, error) {
	var payload map[string]any
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return "", err
	}
	for _, key := range keys {
		if v, ok := payload[key]; ok {
			if label, ok := v.(string); ok && label != "" {
				return label, nil
			}
		}
	}
	return "", fmt.Errorf("no label under keys %v", keys)
}

func (c *Classifier) removeSampleFile(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		c.logger.Warn("failed to remove sample file",
			zap.String("path", path),
			zap.Error(err),
		)
	}
}
