// cmd/session.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/xkilldash9x/quickeval/internal/captcha"
	"github.com/xkilldash9x/quickeval/internal/config"
	"github.com/xkilldash9x/quickeval/internal/credentials"
	"github.com/xkilldash9x/quickeval/internal/i18n"
	"github.com/xkilldash9x/quickeval/internal/network"
	"github.com/xkilldash9x/quickeval/internal/portal"
)

// console is where interactive sources ask their questions. in is shared by
// every prompt of one command, so it must be a single buffered reader.
type console struct {
	in  io.Reader
	out io.Writer
}

// portalDeps are the pluggable sources a portal session needs. Tests replace
// them to avoid prompting on a terminal or calling a recognition service.
type portalDeps struct {
	credentials func(cfg config.Interface, printer *i18n.Printer, con console) (portal.CredentialProvider, error)
	solver      func(ctx context.Context, cfg config.Interface, printer *i18n.Printer, con console, logger *zap.Logger) (portal.CaptchaSolver, error)
	journal     journalProvider
}

func defaultDeps() portalDeps {
	return portalDeps{
		credentials: func(cfg config.Interface, printer *i18n.Printer, con console) (portal.CredentialProvider, error) {
			credCfg := cfg.Credentials()
			if credCfg.Source != "prompt" {
				return credentials.New(credCfg)
			}
			p := credentials.NewPromptOn(credCfg.Username, con.in, con.out, int(os.Stdin.Fd()))
			p.UsernameLabel = printer.T("UsernamePrompt")
			p.PasswordLabel = printer.T("PasswordPrompt")
			return p, nil
		},
		solver: func(ctx context.Context, cfg config.Interface, printer *i18n.Printer, con console, logger *zap.Logger) (portal.CaptchaSolver, error) {
			if cfg.Captcha().Solver == "manual" {
				s := captcha.NewManualSolver(cfg.Captcha().ImageDir, con.in, con.out, logger)
				s.ImageLabel = printer.T("CaptchaImagePrompt")
				s.AnswerLabel = printer.T("CaptchaAnswerPrompt")
				return s, nil
			}
			return captcha.New(ctx, cfg.Captcha(), logger)
		},
		journal: NewJournalProvider(),
	}
}

// portalClientConfig maps portal settings onto a fresh client config, cookie jar included.
func portalClientConfig(cfg config.PortalConfig, logger *zap.Logger) *network.ClientConfig {
	clientCfg := network.NewDefaultClientConfig()
	if cfg.Timeout > 0 {
		clientCfg.RequestTimeout = cfg.Timeout
	}
	clientCfg.RequestRate = cfg.RequestRate
	if cfg.RequestBurst > 0 {
		clientCfg.RequestBurst = cfg.RequestBurst
	}
	clientCfg.UserAgent = cfg.UserAgent
	clientCfg.AcceptLanguage = cfg.AcceptLanguage
	clientCfg.InsecureSkipVerify = cfg.IgnoreTLSErrors
	clientCfg.Logger = logger
	return clientCfg
}

var loginMessages = map[portal.LoginOutcome]string{
	portal.LoginSucceeded:      "LoginSucceeded",
	portal.LoginBadCaptcha:     "LoginBadCaptcha",
	portal.LoginBadCredentials: "LoginBadCredentials",
	portal.LoginRejected:       "LoginRejected",
}

// login opens a session and authenticates it. Questions and the progress of
// each attempt go to con. The caller owns the returned session and must
// Close it.
func login(ctx context.Context, cfg config.Interface, deps portalDeps, printer *i18n.Printer, con console, logger *zap.Logger) (*portal.SessionContext, error) {
	status := con.out
	endpoints, err := portal.NewEndpoints(cfg.Portal().BaseURL)
	if err != nil {
		return nil, err
	}

	creds, err := deps.credentials(cfg, printer, con)
	if err != nil {
		return nil, fmt.Errorf("failed to set up credentials: %w", err)
	}
	solver, err := deps.solver(ctx, cfg, printer, con, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to set up captcha solver: %w", err)
	}

	sess := portal.NewSessionContext(network.NewClient(portalClientConfig(cfg.Portal(), logger)), endpoints, logger)
	manager := portal.NewManager(sess, cfg.Login(), logger)
	maxAttempts := cfg.Login().MaxAttempts

	attempts := 0
	_, err = manager.Authenticate(ctx, creds, solver, func(attempt int, result portal.AuthResult) {
		attempts = attempt
		fmt.Fprintln(status, printer.Td(loginMessages[result.Outcome], map[string]any{"Attempt": attempt, "Max": maxAttempts}))
	})
	if err != nil {
		sess.Close()
		if attempts == maxAttempts && portal.CodeOf(err) == portal.ErrCodeAuthFailure {
			fmt.Fprintln(status, printer.Td("AuthFailed", map[string]any{"Max": maxAttempts}))
		}
		return nil, err
	}
	return sess, nil
}
