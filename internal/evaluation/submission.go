// internal/evaluation/submission.go
package evaluation

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"github.com/xkilldash9x/quickeval/internal/observability"
	"github.com/xkilldash9x/quickeval/internal/portal"
	"go.uber.org/zap"
)

// State is the position of an Attempt in the save protocol.
type State int

const (
	StateBuilt State = iota
	StateProvisionallySaved
	StateConfirmedSaved
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateBuilt:
		return "built"
	case StateProvisionallySaved:
		return "provisionally_saved"
	case StateConfirmedSaved:
		return "confirmed_saved"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the final verdict on an Attempt.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeSuccess
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "pending"
	}
}

// Attempt tracks one task through the two-phase save.
type Attempt struct {
	Task    portal.EvaluationTask
	Fields  *FieldMap
	PageURL string

	State    State
	Outcome  Outcome
	Response []byte
	Err      error

	// queryToken is the token put in the save URL by phase one. Phase two
	// reuses it even though the body carries the newer token.
	queryToken string
}

// NewAttempt starts an attempt in StateBuilt.
func NewAttempt(task portal.EvaluationTask, form *Form, fields *FieldMap) *Attempt {
	return &Attempt{Task: task, Fields: fields, PageURL: form.PageURL}
}

// resolve records the final outcome. Only the first call has any effect.
func (a *Attempt) resolve(outcome Outcome, err error, body []byte) {
	if a.Outcome != OutcomePending {
		return
	}
	a.Outcome = outcome
	a.Err = err
	if body != nil {
		a.Response = body
	}
	if outcome == OutcomeFailure {
		a.State = StateFailed
	}
}

func (a *Attempt) fail(err *portal.Error) error {
	a.resolve(OutcomeFailure, err, err.Body)
	return err
}

// saveResponse is the JSON answer of the save endpoint.
type saveResponse struct {
	Result string `json:"result"`
	Token  string `json:"token"`
}

// Submitter executes the save protocol.
type Submitter struct {
	session    *portal.SessionContext
	phasePause time.Duration
	logger     *zap.Logger
}

// NewSubmitter creates a Submitter; phasePause separates the two phases.
func NewSubmitter(sess *portal.SessionContext, phasePause time.Duration, logger *zap.Logger) *Submitter {
	if logger == nil {
		logger = observability.GetLogger()
	}
	return &Submitter{session: sess, phasePause: phasePause, logger: logger.Named("submitter")}
}

// Submit runs both phases with the configured pause between them.
func (s *Submitter) Submit(ctx context.Context, a *Attempt) error {
	if err := s.SubmitProvisional(ctx, a); err != nil {
		return err
	}
	if err := Pause(ctx, s.phasePause); err != nil {
		return a.fail(portal.NewError(portal.ErrCodeTransport, "submit", "interrupted between phases", err))
	}
	return s.SubmitConfirmed(ctx, a)
}

// SubmitProvisional performs phase one: tjcs=0 with the page token. The
// portal answers with the token phase two must carry.
func (s *Submitter) SubmitProvisional(ctx context.Context, a *Attempt) error {
	const op = "submit-provisional"
	if a.State != StateBuilt {
		return portal.NewError(portal.ErrCodeInvalidTransition, op, fmt.Sprintf("attempt is %s, want %s", a.State, StateBuilt), nil)
	}

	token := a.Fields.Get(FieldToken)
	s.session.SetToken(token)
	a.queryToken = token
	a.Fields.Set(FieldPhase, PhaseProvisional)

	resp, err := s.post(ctx, a, op)
	if err != nil {
		return err
	}

	var decoded saveResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return a.fail(portal.NewError(portal.ErrCodeProtocolViolation, op, "response is not JSON", err).WithBody(resp.Body))
	}
	if strings.TrimSpace(decoded.Token) == "" {
		return a.fail(portal.NewError(portal.ErrCodeProtocolViolation, op, "response carries no token", nil).WithBody(resp.Body))
	}

	s.session.SetToken(decoded.Token)
	a.Fields.Set(FieldToken, decoded.Token)
	a.Response = resp.Body
	a.State = StateProvisionallySaved
	s.logger.Debug("Provisional save accepted.",
		zap.String("task", a.Task.DisplayName), zap.String("next_token", decoded.Token))
	return nil
}

// SubmitConfirmed performs phase two: tjcs=1 with the token issued by
// phase one. It is only legal after a successful phase one.
func (s *Submitter) SubmitConfirmed(ctx context.Context, a *Attempt) error {
	const op = "submit-confirmed"
	if a.State != StateProvisionallySaved {
		return portal.NewError(portal.ErrCodeInvalidTransition, op, fmt.Sprintf("attempt is %s, want %s", a.State, StateProvisionallySaved), nil)
	}

	a.Fields.Set(FieldToken, s.session.Token())
	a.Fields.Set(FieldPhase, PhaseConfirmed)

	resp, err := s.post(ctx, a, op)
	if err != nil {
		return err
	}

	var decoded saveResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil || decoded.Result != "ok" {
		detail := fmt.Sprintf("save not confirmed (result %q)", decoded.Result)
		return a.fail(portal.NewError(portal.ErrCodeProtocolViolation, op, detail, err).WithBody(resp.Body))
	}

	a.State = StateConfirmedSaved
	a.resolve(OutcomeSuccess, nil, resp.Body)
	return nil
}

// post sends the FieldMap to the save endpoint with the headers the portal's
// own XHR code uses. Non-200 answers and transport errors fail the attempt.
func (s *Submitter) post(ctx context.Context, a *Attempt, op string) (*portal.Response, error) {
	body, contentType, err := a.Fields.EncodeMultipart()
	if err != nil {
		return nil, a.fail(portal.NewError(portal.ErrCodeProtocolViolation, op, "encoding form", err))
	}

	endpoints := s.session.Endpoints()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoints.Save(a.queryToken), body)
	if err != nil {
		return nil, a.fail(portal.NewError(portal.ErrCodeTransport, op, "building request", err))
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", portal.AcceptJSON)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Origin", endpoints.Origin())
	if a.PageURL != "" {
		req.Header.Set("Referer", a.PageURL)
	}

	resp, err := s.session.Do(req, op)
	if err != nil {
		if pe, ok := err.(*portal.Error); ok {
			return nil, a.fail(pe)
		}
		return nil, a.fail(portal.NewError(portal.ErrCodeTransport, op, "", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, a.fail(portal.NewError(portal.ErrCodeTransport, op, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil).WithBody(resp.Body))
	}
	return resp, nil
}

// Pause blocks for d or until ctx is done.
func Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
