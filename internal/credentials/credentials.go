// internal/credentials/credentials.go
package credentials

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xkilldash9x/quickeval/internal/config"
	"github.com/xkilldash9x/quickeval/internal/portal"
	"golang.org/x/term"
)

// ErrMissing is returned when a provider has no username or password to offer.
var ErrMissing = errors.New("credentials are incomplete")

// Static serves credentials taken from configuration or the environment.
type Static struct {
	Username string
	Password string
}

func (s Static) Credentials(context.Context) (portal.Credentials, error) {
	if s.Username == "" || s.Password == "" {
		return portal.Credentials{}, fmt.Errorf("static source: %w (set credentials.username and QUICKEVAL_PASSWORD)", ErrMissing)
	}
	return portal.Credentials{Username: s.Username, Password: s.Password}, nil
}

// Prompt asks for credentials on the terminal. The password is read without
// echo when the input is a terminal.
type Prompt struct {
	// Username, when set, skips the username question.
	Username      string
	UsernameLabel string
	PasswordLabel string

	in  *bufio.Reader
	out io.Writer
	fd  int

	isTerminal   func(fd int) bool
	readPassword func(fd int) ([]byte, error)
}

// NewPrompt creates a prompt provider on stdin and stderr.
func NewPrompt(username string) *Prompt {
	return NewPromptOn(username, os.Stdin, os.Stderr, int(os.Stdin.Fd()))
}

// NewPromptOn creates a prompt that reads answers from in and writes labels
// to out. The password is read without echo when fd is a terminal.
// Readers shared with other prompts should be a *bufio.Reader so no input
// is lost to a second buffer.
func NewPromptOn(username string, in io.Reader, out io.Writer, fd int) *Prompt {
	p := newPrompt(in, out, fd)
	p.Username = username
	return p
}

func newPrompt(in io.Reader, out io.Writer, fd int) *Prompt {
	return &Prompt{
		UsernameLabel: "Student ID: ",
		PasswordLabel: "Password: ",
		in:            bufio.NewReader(in),
		out:           out,
		fd:            fd,
		isTerminal:    term.IsTerminal,
		readPassword:  term.ReadPassword,
	}
}

func (p *Prompt) Credentials(ctx context.Context) (portal.Credentials, error) {
	if err := ctx.Err(); err != nil {
		return portal.Credentials{}, err
	}

	username := strings.TrimSpace(p.Username)
	if username == "" {
		fmt.Fprint(p.out, p.UsernameLabel)
		line, err := p.readLine()
		if err != nil {
			return portal.Credentials{}, fmt.Errorf("failed to read username: %w", err)
		}
		username = strings.TrimSpace(line)
	}

	fmt.Fprint(p.out, p.PasswordLabel)
	var password string
	if p.isTerminal(p.fd) {
		raw, err := p.readPassword(p.fd)
		fmt.Fprintln(p.out)
		if err != nil {
			return portal.Credentials{}, fmt.Errorf("failed to read password: %w", err)
		}
		password = string(raw)
	} else {
		line, err := p.readLine()
		if err != nil {
			return portal.Credentials{}, fmt.Errorf("failed to read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	if username == "" || password == "" {
		return portal.Credentials{}, fmt.Errorf("prompt: %w", ErrMissing)
	}
	return portal.Credentials{Username: username, Password: password}, nil
}

func (p *Prompt) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err == io.EOF && line != "" {
		return line, nil
	}
	return line, err
}

// New returns the provider selected by cfg.Source.
func New(cfg config.CredentialsConfig) (portal.CredentialProvider, error) {
	switch cfg.Source {
	case "static":
		return Static{Username: cfg.Username, Password: cfg.Password}, nil
	case "prompt", "":
		return NewPrompt(cfg.Username), nil
	default:
		return nil, fmt.Errorf("unsupported credentials source: %s", cfg.Source)
	}
}
