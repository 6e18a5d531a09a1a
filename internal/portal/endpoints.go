// internal/portal/endpoints.go
package portal

import (
	"fmt"
	"net/url"
	"strings"
)

// Paths of the portal endpoints, relative to the base URL.
const (
	PathLogin         = "/login"
	PathCaptcha       = "/img/captcha.jpg"
	PathSecurityCheck = "/j_spring_security_check"
	PathTaskList      = "/student/teachingAssessment/evaluation/queryAll"
	PathEvaluation    = "/student/teachingEvaluation/newEvaluation/evaluation/"
	PathSave          = "/student/teachingAssessment/baseInformation/questionsAdd/doSave"
)

// Endpoints resolves portal URLs against a base.
type Endpoints struct {
	base *url.URL
}

// NewEndpoints validates baseURL and returns the endpoint set rooted at it.
func NewEndpoints(baseURL string) (Endpoints, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return Endpoints{}, fmt.Errorf("invalid portal base URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return Endpoints{}, fmt.Errorf("invalid portal base URL %q: need http(s)://host", baseURL)
	}
	return Endpoints{base: u}, nil
}

func (e Endpoints) resolve(path string) string {
	u := *e.base
	u.Path = e.base.Path + path
	return u.String()
}

// Origin is the scheme and host, as sent in the Origin header.
func (e Endpoints) Origin() string {
	return e.base.Scheme + "://" + e.base.Host
}

func (e Endpoints) Login() string         { return e.resolve(PathLogin) }
func (e Endpoints) Captcha() string       { return e.resolve(PathCaptcha) }
func (e Endpoints) SecurityCheck() string { return e.resolve(PathSecurityCheck) }
func (e Endpoints) TaskList() string      { return e.resolve(PathTaskList) }

// Evaluation is the page holding the questionnaire for task id.
func (e Endpoints) Evaluation(id string) string {
	return e.resolve(PathEvaluation + url.PathEscape(id))
}

// Save is the two-phase save endpoint. The token is carried in the query
// string and stays the phase-one token for both phases.
func (e Endpoints) Save(token string) string {
	u := *e.base
	u.Path = e.base.Path + PathSave
	u.RawQuery = url.Values{"tokenValue": {token}}.Encode()
	return u.String()
}
