// internal/captcha/ocr.go
package captcha

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	json "github.com/json-iterator/go"
	"github.com/xkilldash9x/quickeval/internal/config"
	"github.com/xkilldash9x/quickeval/internal/network"
	"go.uber.org/zap"
)

// OCRSolver posts the image to a recognition service. The service takes a
// form with type=0 and base64img set to a data URL, and answers with JSON
// carrying the text under "captcha".
type OCRSolver struct {
	endpoint    string
	imageFormat string
	maxRetries  uint64
	httpClient  *http.Client
	logger      *zap.Logger
}

type ocrResponse struct {
	Captcha string `json:"captcha"`
}

// NewOCRSolver creates a solver for the service at cfg.URL.
func NewOCRSolver(cfg config.OCRConfig, logger *zap.Logger) *OCRSolver {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	clientCfg := network.NewDefaultClientConfig()
	clientCfg.RequestTimeout = timeout
	clientCfg.Logger = logger

	format := cfg.ImageFormat
	if format == "" {
		format = "png"
	}
	return &OCRSolver{
		endpoint:    cfg.URL,
		imageFormat: format,
		maxRetries:  cfg.MaxRetries,
		httpClient:  network.NewClient(clientCfg),
		logger:      logger.Named("captcha.ocr"),
	}
}

func (s *OCRSolver) Solve(ctx context.Context, image []byte) (string, error) {
	form := url.Values{
		"type":      {"0"},
		"base64img": {"data:image/" + s.imageFormat + ";base64," + base64.StdEncoding.EncodeToString(image)},
	}
	body := form.Encode()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = time.Minute

	var answer string
	attempt := 0
	operation := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create OCR request: %w", err))
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			s.logger.Warn("OCR request failed, retrying...", zap.Int("attempt", attempt), zap.Error(err))
			return fmt.Errorf("failed to execute OCR request: %w", err)
		}
		raw, err := network.ReadBody(resp)
		if err != nil {
			return fmt.Errorf("failed to read OCR response: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			s.logger.Warn("OCR service returned a transient error, retrying...",
				zap.Int("status", resp.StatusCode), zap.Int("attempt", attempt))
			return fmt.Errorf("OCR service error: status %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("OCR service error: status %d, body: %s", resp.StatusCode, string(raw)))
		}

		var decoded ocrResponse
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode OCR response: %w", err))
		}
		answer = Normalize(decoded.Captcha)
		if answer == "" {
			return backoff.Permanent(ErrUnreadable)
		}
		return nil
	}

	var policy backoff.BackOff = b
	if s.maxRetries > 0 {
		policy = backoff.WithMaxRetries(b, s.maxRetries)
	}
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return "", err
	}
	s.logger.Debug("OCR recognised captcha.", zap.Int("attempts", attempt), zap.Int("length", len(answer)))
	return answer, nil
}
