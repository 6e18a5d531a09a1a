// internal/testing/portalfake/portal.go
package portalfake

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/json-iterator/go"
)

const sessionCookie = "JSESSIONID"

// Course is a task the fake portal lists.
type Course struct {
	ID              string
	Name            string
	QuestionnaireID string
	Evaluated       bool
}

// Submission is one request received by the save endpoint.
type Submission struct {
	TaskID     string
	Phase      string
	QueryToken string
	Headers    http.Header
	Fields     map[string][]string
}

type session struct {
	loginToken    string
	authenticated bool
	// page tokens by task ID, and the phase-two token issued per task.
	pageTokens map[string]string
	nextTokens map[string]string
}

// Portal is an in-process imitation of the academic-affairs portal.
type Portal struct {
	Server *httptest.Server

	Username string
	Password string
	Captcha  string

	mu            sync.Mutex
	seq           int
	sessions      map[string]*session
	courses       []Course
	pages         map[string]string
	confirmBodies map[string]string
	noNextToken   map[string]bool
	listStatus    int
	submissions   []Submission
	hits          map[string]int
}

// New starts a fake portal. It is shut down when the test finishes.
func New(t testing.TB) *Portal {
	t.Helper()
	p := &Portal{
		Username:      "2023141460000",
		Password:      "s3cret",
		Captcha:       "ab12",
		sessions:      make(map[string]*session),
		pages:         make(map[string]string),
		confirmBodies: make(map[string]string),
		noNextToken:   make(map[string]bool),
		hits:          make(map[string]int),
		listStatus:    http.StatusOK,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(p.count)
	r.Get("/login", p.handleLoginPage)
	r.Get("/img/captcha.jpg", p.handleCaptcha)
	r.Post("/j_spring_security_check", p.handleSecurityCheck)
	r.Get("/index", p.handleIndex)
	r.Post("/student/teachingAssessment/evaluation/queryAll", p.handleQueryAll)
	r.Get("/student/teachingEvaluation/newEvaluation/evaluation/{taskID}", p.handleEvaluationPage)
	r.Post("/student/teachingAssessment/baseInformation/questionsAdd/doSave", p.handleSave)

	p.Server = httptest.NewServer(r)
	t.Cleanup(p.Server.Close)
	return p
}

// URL is the base URL of the fake portal.
func (p *Portal) URL() string { return p.Server.URL }

// SetCourses replaces the task listing.
func (p *Portal) SetCourses(courses ...Course) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.courses = courses
}

// SetPage overrides the evaluation page served for taskID. The literal
// {{TOKEN}} is replaced by a freshly issued token.
func (p *Portal) SetPage(taskID, html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pages[taskID] = html
}

// SetConfirmBody makes the phase-two save for taskID answer with body.
func (p *Portal) SetConfirmBody(taskID, body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confirmBodies[taskID] = body
}

// OmitNextToken makes the phase-one save for taskID answer without a token.
func (p *Portal) OmitNextToken(taskID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.noNextToken[taskID] = true
}

// SetListStatus forces the task listing to answer with status.
func (p *Portal) SetListStatus(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listStatus = status
}

// Hits returns how many requests reached path.
func (p *Portal) Hits(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits[path]
}

// TotalHits returns how many requests reached the portal at all.
func (p *Portal) TotalHits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.hits {
		n += c
	}
	return n
}

// Submissions returns a copy of every save request received.
func (p *Portal) Submissions() []Submission {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Submission(nil), p.submissions...)
}

// IsEvaluated reports whether taskID was confirmed.
func (p *Portal) IsEvaluated(taskID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.courses {
		if c.ID == taskID {
			return c.Evaluated
		}
	}
	return false
}

func (p *Portal) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		path := r.URL.Path
		if strings.HasPrefix(path, "/student/teachingEvaluation/newEvaluation/evaluation/") {
			path = "/student/teachingEvaluation/newEvaluation/evaluation/"
		}
		p.hits[path]++
		p.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// issue returns a new opaque token. Callers hold p.mu.
func (p *Portal) issue(prefix string) string {
	p.seq++
	sum := md5.Sum([]byte(fmt.Sprintf("%s-%d", prefix, p.seq)))
	return hex.EncodeToString(sum[:])
}

// sessionFor returns the caller's session, creating one (and its cookie)
// when create is set. Callers hold p.mu.
func (p *Portal) sessionFor(w http.ResponseWriter, r *http.Request, create bool) *session {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if s, ok := p.sessions[c.Value]; ok {
			return s
		}
	}
	if !create {
		return nil
	}
	id := p.issue("session")
	s := &session{pageTokens: map[string]string{}, nextTokens: map[string]string{}}
	p.sessions[id] = s
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: id, Path: "/", HttpOnly: true})
	return s
}

func (p *Portal) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	s := p.sessionFor(w, r, true)
	s.loginToken = p.issue("login")
	token := s.loginToken
	p.mu.Unlock()

	w.Header().Set("Content-Type", "text/html;charset=UTF-8")
	fmt.Fprintf(w, `<!DOCTYPE html><html><head><title>登录</title></head><body>
<form id="formContent" action="/j_spring_security_check" method="post">
<input type="hidden" name="tokenValue" value="%s">
<input type="text" name="j_username"><input type="password" name="j_password">
<input type="text" name="j_captcha"><img id="captchaImg" src="/img/captcha.jpg">
</form></body></html>`, token)
}

func (p *Portal) handleCaptcha(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.sessionFor(w, r, true)
	p.mu.Unlock()
	w.Header().Set("Content-Type", "image/jpeg")
	// A JPEG SOI marker followed by a payload is enough for the clients.
	_, _ = w.Write(append([]byte{0xFF, 0xD8, 0xFF}, []byte("captcha:"+p.Captcha)...))
}

func (p *Portal) handleSecurityCheck(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p.mu.Lock()
	s := p.sessionFor(w, r, false)
	var reason string
	switch {
	case s == nil || s.loginToken == "" || r.PostForm.Get("tokenValue") != s.loginToken:
		reason = "页面已过期,请刷新"
	case !strings.EqualFold(r.PostForm.Get("j_captcha"), p.Captcha):
		reason = "验证码不正确"
	case r.PostForm.Get("j_username") != p.Username || r.PostForm.Get("j_password") != md5Hex(p.Password):
		reason = "用户名或密码错误,密码错误"
	default:
		s.authenticated = true
	}
	if s != nil {
		s.loginToken = ""
	}
	p.mu.Unlock()

	if reason != "" {
		w.Header().Set("Content-Type", "text/html;charset=UTF-8")
		fmt.Fprintf(w, `<html><body><div class="alert">错误提示: %s</div></body></html>`, reason)
		return
	}
	http.Redirect(w, r, "/index", http.StatusFound)
}

func (p *Portal) handleIndex(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	s := p.sessionFor(w, r, false)
	ok := s != nil && s.authenticated
	p.mu.Unlock()
	if !ok {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", "text/html;charset=UTF-8")
	fmt.Fprint(w, `<html><body><span class="user-info">欢迎您, 同学</span></body></html>`)
}

func (p *Portal) authenticated(w http.ResponseWriter, r *http.Request) (*session, bool) {
	s := p.sessionFor(w, r, false)
	if s == nil || !s.authenticated {
		return nil, false
	}
	return s, true
}

func (p *Portal) handleQueryAll(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.authenticated(w, r); !ok {
		http.Error(w, "not logged in", http.StatusUnauthorized)
		return
	}
	if p.listStatus != http.StatusOK {
		http.Error(w, "listing unavailable", p.listStatus)
		return
	}
	if r.PostForm.Get("pageNum") != "1" || r.PostForm.Get("flag") != "kt" {
		http.Error(w, "unexpected listing query", http.StatusBadRequest)
		return
	}

	records := make([]map[string]string, 0, len(p.courses))
	for _, c := range p.courses {
		sfpg := "0"
		if c.Evaluated {
			sfpg = "1"
		}
		records = append(records, map[string]string{
			"KCM": c.Name, "KTID": c.ID, "WJBM": c.QuestionnaireID, "SFPG": sfpg,
		})
	}
	writeJSON(w, map[string]interface{}{
		"data": map[string]interface{}{"records": records, "total": len(records)},
	})
}

func (p *Portal) handleEvaluationPage(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	p.mu.Lock()
	s, ok := p.authenticated(w, r)
	if !ok {
		p.mu.Unlock()
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	var course *Course
	for i := range p.courses {
		if p.courses[i].ID == taskID {
			course = &p.courses[i]
		}
	}
	if course == nil {
		p.mu.Unlock()
		http.NotFound(w, r)
		return
	}
	token := p.issue("page-" + taskID)
	s.pageTokens[taskID] = token
	page, custom := p.pages[taskID]
	if !custom {
		page = QuestionnairePage(course.QuestionnaireID, course.ID, "{{TOKEN}}")
	}
	p.mu.Unlock()

	w.Header().Set("Content-Type", "text/html;charset=UTF-8")
	fmt.Fprint(w, strings.ReplaceAll(page, "{{TOKEN}}", token))
}

func (p *Portal) handleSave(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		http.Error(w, "expected multipart body: "+err.Error(), http.StatusBadRequest)
		return
	}
	fields := map[string][]string(r.MultipartForm.Value)
	taskID := first(fields["ktid"])
	phase := first(fields["tjcs"])
	queryToken := r.URL.Query().Get("tokenValue")

	p.mu.Lock()
	defer p.mu.Unlock()
	p.submissions = append(p.submissions, Submission{
		TaskID: taskID, Phase: phase, QueryToken: queryToken, Headers: r.Header.Clone(), Fields: fields,
	})

	s, ok := p.authenticated(w, r)
	if !ok {
		http.Error(w, "not logged in", http.StatusUnauthorized)
		return
	}

	switch phase {
	case "0":
		if queryToken == "" || queryToken != s.pageTokens[taskID] || first(fields["tokenValue"]) != queryToken {
			writeJSON(w, map[string]string{"result": "token expired"})
			return
		}
		if p.noNextToken[taskID] {
			writeJSON(w, map[string]string{"result": "ok"})
			return
		}
		next := p.issue("next-" + taskID)
		s.nextTokens[taskID] = next
		writeJSON(w, map[string]string{"result": "ok", "token": next})
	case "1":
		if body, ok := p.confirmBodies[taskID]; ok {
			w.Header().Set("Content-Type", "application/json;charset=UTF-8")
			fmt.Fprint(w, body)
			return
		}
		next := s.nextTokens[taskID]
		if next == "" || first(fields["tokenValue"]) != next || queryToken != s.pageTokens[taskID] {
			writeJSON(w, map[string]string{"result": "token mismatch"})
			return
		}
		for i := range p.courses {
			if p.courses[i].ID == taskID {
				p.courses[i].Evaluated = true
			}
		}
		writeJSON(w, map[string]string{"result": "ok"})
	default:
		http.Error(w, "unknown phase", http.StatusBadRequest)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json;charset=UTF-8")
	_ = json.NewEncoder(w).Encode(v)
}

func first(v []string) string {
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
