// internal/portal/tasks.go
package portal

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	json "github.com/json-iterator/go"
	"github.com/xkilldash9x/quickeval/internal/config"
	"github.com/xkilldash9x/quickeval/internal/observability"
	"go.uber.org/zap"
)

// EvaluationTask is one course/teacher pairing awaiting evaluation.
type EvaluationTask struct {
	// ID is the KTID used to build the evaluation page URL.
	ID              string `json:"id" yaml:"id"`
	DisplayName     string `json:"display_name" yaml:"display_name"`
	QuestionnaireID string `json:"questionnaire_id" yaml:"questionnaire_id"`
	Evaluated       bool   `json:"evaluated" yaml:"evaluated"`
	// Index is the task's position in the portal listing.
	Index int `json:"index" yaml:"index"`
}

// looseString accepts both JSON strings and numbers; the listing is not
// consistent about which it uses for flags and IDs.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		*s = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		unq, err := strconv.Unquote(raw)
		if err != nil {
			return err
		}
		*s = looseString(unq)
		return nil
	}
	*s = looseString(raw)
	return nil
}

type taskRecord struct {
	KCM  looseString `json:"KCM"`
	KTID looseString `json:"KTID"`
	WJBM looseString `json:"WJBM"`
	SFPG looseString `json:"SFPG"`
}

type taskListResponse struct {
	Data *struct {
		Records []taskRecord `json:"records"`
	} `json:"data"`
}

// TaskLister queries the portal for evaluation tasks.
type TaskLister struct {
	session *SessionContext
	cfg     config.EvaluationConfig
	logger  *zap.Logger
}

// NewTaskLister creates a lister bound to an authenticated session.
func NewTaskLister(sess *SessionContext, cfg config.EvaluationConfig, logger *zap.Logger) *TaskLister {
	if logger == nil {
		logger = observability.GetLogger()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 30
	}
	if cfg.Flag == "" {
		cfg.Flag = "kt"
	}
	return &TaskLister{session: sess, cfg: cfg, logger: logger.Named("tasks")}
}

// ListTasks returns every task on the first listing page, in portal order.
func (l *TaskLister) ListTasks(ctx context.Context) ([]EvaluationTask, error) {
	const op = "list-tasks"
	form := url.Values{}
	form.Set("pageNum", "1")
	form.Set("pageSize", strconv.Itoa(l.cfg.PageSize))
	form.Set("flag", l.cfg.Flag)

	resp, err := l.session.PostForm(ctx, l.session.endpoints.TaskList(), op, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		return nil, NewError(ErrCodeTransport, op, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil).WithBody(resp.Body)
	}

	var decoded taskListResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return nil, NewError(ErrCodeProtocolViolation, op, "task listing is not JSON", err).WithBody(resp.Body)
	}
	if decoded.Data == nil {
		return nil, NewError(ErrCodeProtocolViolation, op, "task listing has no data member", nil).WithBody(resp.Body)
	}

	tasks := make([]EvaluationTask, 0, len(decoded.Data.Records))
	for i, rec := range decoded.Data.Records {
		tasks = append(tasks, EvaluationTask{
			ID:              string(rec.KTID),
			DisplayName:     string(rec.KCM),
			QuestionnaireID: string(rec.WJBM),
			Evaluated:       string(rec.SFPG) != "0",
			Index:           i,
		})
	}
	return tasks, nil
}

// ListPendingTasks returns the tasks not yet evaluated, preserving portal
// order. An empty slice is a normal result.
func (l *TaskLister) ListPendingTasks(ctx context.Context) ([]EvaluationTask, error) {
	all, err := l.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	pending := make([]EvaluationTask, 0, len(all))
	for _, t := range all {
		if !t.Evaluated {
			pending = append(pending, t)
		}
	}
	l.logger.Info("Fetched evaluation tasks.", zap.Int("total", len(all)), zap.Int("pending", len(pending)))
	return pending, nil
}
