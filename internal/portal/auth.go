// internal/portal/auth.go
package portal

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/xkilldash9x/quickeval/internal/config"
	"github.com/xkilldash9x/quickeval/internal/observability"
	"go.uber.org/zap"
)

// TokenField is the name of the hidden anti-forgery input on portal pages.
const TokenField = "tokenValue"

// Credentials is a student ID and plain-text password.
type Credentials struct {
	Username string
	Password string
}

// CredentialProvider yields the login credentials for a run.
type CredentialProvider interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// CaptchaSolver turns a CAPTCHA image into the text it shows.
type CaptchaSolver interface {
	Solve(ctx context.Context, image []byte) (string, error)
}

// LoginOutcome is the semantic result of one login POST.
type LoginOutcome int

const (
	LoginRejected LoginOutcome = iota
	LoginSucceeded
	LoginBadCaptcha
	LoginBadCredentials
)

func (o LoginOutcome) String() string {
	switch o {
	case LoginSucceeded:
		return "succeeded"
	case LoginBadCaptcha:
		return "bad-captcha"
	case LoginBadCredentials:
		return "bad-credentials"
	default:
		return "rejected"
	}
}

// AuthResult describes a single login attempt.
type AuthResult struct {
	Outcome LoginOutcome
	Status  int
}

// OK reports whether the attempt authenticated the session.
func (r AuthResult) OK() bool { return r.Outcome == LoginSucceeded }

// Manager drives the login protocol over a SessionContext.
type Manager struct {
	session *SessionContext
	cfg     config.LoginConfig
	logger  *zap.Logger
}

// NewManager creates a session manager for sess.
func NewManager(sess *SessionContext, cfg config.LoginConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = observability.GetLogger()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Manager{session: sess, cfg: cfg, logger: logger.Named("auth")}
}

// Session returns the managed SessionContext.
func (m *Manager) Session() *SessionContext { return m.session }

// AcquireToken loads the login page and returns the anti-forgery token in
// its hidden tokenValue input. The token is also recorded on the session.
func (m *Manager) AcquireToken(ctx context.Context) (string, error) {
	const op = "acquire-token"
	resp, err := m.session.Get(ctx, m.session.endpoints.Login(), op)
	if err != nil {
		return "", err
	}
	page, err := resp.HTMLBody()
	if err != nil {
		return "", NewError(ErrCodeProtocolViolation, op, "undecodable login page", err).WithBody(resp.Body)
	}
	token, err := ExtractToken(page)
	if err != nil {
		var pe *Error
		if errors.As(err, &pe) {
			pe.Op = op
			pe.Body = resp.Body
		}
		return "", err
	}
	m.session.SetToken(token)
	m.logger.Debug("Acquired login token.", zap.String("token", token))
	return token, nil
}

// ExtractToken finds the value of the first tokenValue input in an HTML page.
func ExtractToken(page []byte) (string, error) {
	doc, err := htmlquery.Parse(bytes.NewReader(page))
	if err != nil {
		return "", NewError(ErrCodeProtocolViolation, "extract-token", "unparseable HTML", err)
	}
	node := htmlquery.FindOne(doc, fmt.Sprintf("//input[@name='%s']", TokenField))
	if node == nil {
		return "", NewError(ErrCodeTokenNotFound, "extract-token", "no tokenValue input on page", nil)
	}
	token := strings.TrimSpace(htmlquery.SelectAttr(node, "value"))
	if token == "" {
		return "", NewError(ErrCodeTokenNotFound, "extract-token", "tokenValue input is empty", nil)
	}
	return token, nil
}

// FetchCaptcha downloads the CAPTCHA image bound to the current session.
func (m *Manager) FetchCaptcha(ctx context.Context) ([]byte, error) {
	resp, err := m.session.Get(ctx, m.session.endpoints.Captcha(), "fetch-captcha")
	if err != nil {
		return nil, err
	}
	if len(resp.Body) == 0 {
		return nil, NewError(ErrCodeProtocolViolation, "fetch-captcha", "empty image", nil)
	}
	return resp.Body, nil
}

// HashPassword returns the lower-case hex MD5 digest the login form expects.
func HashPassword(password string) string {
	sum := md5.Sum([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Login posts the credentials with the current session token. A rejected
// login is reported through AuthResult, not as an error; errors are
// reserved for transport failures.
func (m *Manager) Login(ctx context.Context, username, password, captchaText string) (AuthResult, error) {
	form := url.Values{}
	form.Set(TokenField, m.session.Token())
	form.Set("j_username", username)
	form.Set("j_password", HashPassword(password))
	form.Set("j_captcha", captchaText)

	resp, err := m.session.PostForm(ctx, m.session.endpoints.SecurityCheck(), "login", strings.NewReader(form.Encode()))
	if err != nil {
		return AuthResult{}, err
	}
	page, err := resp.HTMLBody()
	if err != nil {
		page = resp.Body
	}

	result := AuthResult{Status: resp.StatusCode, Outcome: m.classify(string(page))}
	if result.OK() {
		m.session.markAuthenticated()
	}
	return result, nil
}

// classify decides a login outcome from the response page. Only the
// success marker means success; a 200 status alone never does.
func (m *Manager) classify(page string) LoginOutcome {
	if strings.Contains(page, m.cfg.SuccessMarker) {
		return LoginSucceeded
	}
	for _, kw := range m.cfg.CaptchaErrorMarkers {
		if kw != "" && strings.Contains(page, kw) {
			return LoginBadCaptcha
		}
	}
	for _, kw := range m.cfg.PasswordErrorMarkers {
		if kw != "" && strings.Contains(page, kw) {
			return LoginBadCredentials
		}
	}
	return LoginRejected
}

// AttemptObserver is told about every finished login attempt. It may be nil.
type AttemptObserver func(attempt int, result AuthResult)

// Authenticate runs the login loop: each attempt fetches a fresh CAPTCHA,
// solves it, fetches a fresh token, and posts the form. After MaxAttempts
// rejected attempts it returns ErrCodeAuthFailure and sends nothing more.
func (m *Manager) Authenticate(ctx context.Context, creds CredentialProvider, solver CaptchaSolver, observe AttemptObserver) (*SessionContext, error) {
	const op = "authenticate"
	c, err := creds.Credentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain credentials: %w", err)
	}
	if c.Username == "" || c.Password == "" {
		return nil, NewError(ErrCodeAuthFailure, op, "username and password are required", nil)
	}

	var last AuthResult
	for attempt := 1; attempt <= m.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		logger := m.logger.With(zap.Int("attempt", attempt), zap.Int("max_attempts", m.cfg.MaxAttempts))

		image, err := m.FetchCaptcha(ctx)
		if err != nil {
			return nil, err
		}
		text, err := solver.Solve(ctx, image)
		if err != nil {
			logger.Warn("CAPTCHA could not be solved.", zap.Error(err))
			last = AuthResult{Outcome: LoginBadCaptcha}
			if observe != nil {
				observe(attempt, last)
			}
			continue
		}
		if _, err := m.AcquireToken(ctx); err != nil {
			return nil, err
		}

		last, err = m.Login(ctx, c.Username, c.Password, strings.TrimSpace(text))
		if err != nil {
			return nil, err
		}
		if observe != nil {
			observe(attempt, last)
		}
		if last.OK() {
			logger.Info("Logged in to portal.", zap.String("username", c.Username))
			return m.session, nil
		}
		logger.Warn("Login rejected.", zap.Stringer("reason", last.Outcome), zap.Int("status", last.Status))
	}

	return nil, NewError(ErrCodeAuthFailure, op,
		fmt.Sprintf("login rejected %d times, last reason %s", m.cfg.MaxAttempts, last.Outcome), nil)
}
