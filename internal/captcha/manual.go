// internal/captcha/manual.go
package captcha

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
)

// ManualSolver writes the image to a transient file, asks the user to type
// what it shows and removes the file again.
type ManualSolver struct {
	// ImageLabel precedes the image path; AnswerLabel asks for the answer.
	ImageLabel  string
	AnswerLabel string

	dir    string
	in     *bufio.Reader
	out    io.Writer
	logger *zap.Logger
}

// NewManualSolver creates a solver reading answers from in. An empty dir
// uses the system temp directory.
func NewManualSolver(dir string, in io.Reader, out io.Writer, logger *zap.Logger) *ManualSolver {
	return &ManualSolver{
		ImageLabel:  "CAPTCHA image: ",
		AnswerLabel: "Enter the characters shown: ",
		dir:         dir,
		in:          bufio.NewReader(in),
		out:         out,
		logger:      logger.Named("captcha.manual"),
	}
}

func (s *ManualSolver) Solve(ctx context.Context, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := s.dir
	if dir == "" {
		dir = os.TempDir()
	}
	dir, err := homedir.Expand(dir)
	if err != nil {
		return "", fmt.Errorf("failed to expand captcha image dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create captcha image dir: %w", err)
	}

	ext := ".jpg"
	if strings.HasSuffix(mimeType(image), "png") {
		ext = ".png"
	}
	f, err := os.CreateTemp(dir, "captcha-*"+ext)
	if err != nil {
		return "", fmt.Errorf("failed to create captcha image file: %w", err)
	}
	path := f.Name()
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			s.logger.Warn("Failed to remove captcha image.", zap.String("path", path), zap.Error(rmErr))
		}
	}()

	if _, err := f.Write(image); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write captcha image: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close captcha image: %w", err)
	}

	abs, _ := filepath.Abs(path)
	fmt.Fprintf(s.out, "%s%s\n%s", s.ImageLabel, abs, s.AnswerLabel)

	line, err := s.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("failed to read captcha answer: %w", err)
	}
	answer := Normalize(line)
	if answer == "" {
		return "", ErrUnreadable
	}
	return answer, nil
}
