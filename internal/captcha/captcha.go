// internal/captcha/captcha.go
package captcha

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"unicode"

	"github.com/xkilldash9x/quickeval/internal/config"
	"github.com/xkilldash9x/quickeval/internal/observability"
	"go.uber.org/zap"
)

// Solver turns a CAPTCHA image into the characters it shows.
type Solver interface {
	Solve(ctx context.Context, image []byte) (string, error)
}

// ErrUnreadable is returned when a solver produced no usable characters.
var ErrUnreadable = errors.New("captcha could not be read")

// visionPrompt is sent along with the image to the LLM-backed solvers.
const visionPrompt = "This image is a login CAPTCHA made of 4 to 6 letters and digits. " +
	"Reply with exactly those characters and nothing else."

// New builds the solver selected by cfg.Solver.
func New(ctx context.Context, cfg config.CaptchaConfig, logger *zap.Logger) (Solver, error) {
	if logger == nil {
		logger = observability.GetLogger()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid captcha configuration: %w", err)
	}

	switch cfg.Solver {
	case "manual":
		return NewManualSolver(cfg.ImageDir, os.Stdin, os.Stderr, logger), nil
	case "ocr":
		return NewOCRSolver(cfg.OCR, logger), nil
	case "gemini":
		return NewGeminiSolver(ctx, cfg.Gemini, logger)
	case "openai":
		return NewOpenAISolver(cfg.OpenAI, logger)
	default:
		return nil, fmt.Errorf("unsupported captcha solver: %s", cfg.Solver)
	}
}

// Normalize keeps only letters and digits from a solver's answer. Models
// tend to wrap the answer in quotes or add a trailing period.
func Normalize(answer string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(answer) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// mimeType sniffs the image type, defaulting to JPEG which is what the
// portal serves.
func mimeType(image []byte) string {
	ct := http.DetectContentType(image)
	if strings.HasPrefix(ct, "image/") {
		return ct
	}
	return "image/jpeg"
}
