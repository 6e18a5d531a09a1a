// internal/evaluation/form.go
package evaluation

import (
	"bytes"
	"context"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/xkilldash9x/quickeval/internal/observability"
	"github.com/xkilldash9x/quickeval/internal/portal"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// FieldKind is the structural type of a form control.
type FieldKind int

const (
	KindHidden FieldKind = iota
	KindText
	KindSingleChoice
	KindMultiChoice
	KindFreeText
)

func (k FieldKind) String() string {
	switch k {
	case KindHidden:
		return "hidden"
	case KindText:
		return "text"
	case KindSingleChoice:
		return "single-choice"
	case KindMultiChoice:
		return "multi-choice"
	case KindFreeText:
		return "free-text"
	default:
		return "unknown"
	}
}

// FormField describes one named control discovered on an evaluation page.
// Choice kinds carry their option values in document order.
type FormField struct {
	Name        string
	Kind        FieldKind
	Value       string
	Options     []string
	Placeholder string
}

// Form is the typed schema harvested from one evaluation page.
type Form struct {
	TaskID  string
	PageURL string
	// Hidden holds every named hidden input in the document, first wins.
	Hidden map[string]string
	// Inputs holds every named input in the document whatever its type,
	// first wins. The protocol fields are looked up here.
	Inputs map[string]string
	// Fields are the question controls in document order.
	Fields []FormField
	// FreeText are the page's textareas in document order.
	FreeText []FormField
}

// HiddenValue returns the value of the hidden input name.
func (f *Form) HiddenValue(name string) (string, bool) {
	v, ok := f.Hidden[name]
	return v, ok
}

// InputValue returns the value of the first input called name.
func (f *Form) InputValue(name string) (string, bool) {
	v, ok := f.Inputs[name]
	return v, ok
}

// Field returns the first question control called name.
func (f *Form) Field(name string) (FormField, bool) {
	for _, fld := range f.Fields {
		if fld.Name == name {
			return fld, true
		}
	}
	return FormField{}, false
}

// ParseForm turns an evaluation page into a Form. Question controls are
// read from the first table, or the first form when there is no table, or
// the whole document when there is neither. Inputs and textareas are
// indexed over the whole document.
func ParseForm(page []byte) (*Form, error) {
	doc, err := htmlquery.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, portal.NewError(portal.ErrCodeProtocolViolation, "parse-form", "unparseable HTML", err)
	}

	form := &Form{Hidden: make(map[string]string), Inputs: make(map[string]string)}
	for _, n := range htmlquery.Find(doc, "//input[@name]") {
		name, value := htmlquery.SelectAttr(n, "name"), htmlquery.SelectAttr(n, "value")
		if _, seen := form.Inputs[name]; !seen {
			form.Inputs[name] = value
		}
		if _, seen := form.Hidden[name]; !seen && inputType(n) == "hidden" {
			form.Hidden[name] = value
		}
	}

	form.Fields = harvestControls(questionScope(doc))

	for _, n := range htmlquery.Find(doc, "//textarea[@name]") {
		form.FreeText = append(form.FreeText, FormField{
			Name:        htmlquery.SelectAttr(n, "name"),
			Kind:        KindFreeText,
			Value:       htmlquery.InnerText(n),
			Placeholder: htmlquery.SelectAttr(n, "placeholder"),
		})
	}
	return form, nil
}

func questionScope(doc *html.Node) *html.Node {
	if table := htmlquery.FindOne(doc, "//table"); table != nil {
		return table
	}
	if f := htmlquery.FindOne(doc, "//form"); f != nil {
		return f
	}
	return doc
}

func inputType(n *html.Node) string {
	t := strings.ToLower(strings.TrimSpace(htmlquery.SelectAttr(n, "type")))
	if t == "" {
		return "text"
	}
	return t
}

// choiceValue is what a browser submits for a checked radio or checkbox.
func choiceValue(n *html.Node) string {
	for _, a := range n.Attr {
		if a.Key == "value" {
			return a.Val
		}
	}
	return "on"
}

// harvestControls groups radio and checkbox inputs by name and records
// free-standing inputs and selects, preserving first-appearance order.
func harvestControls(scope *html.Node) []FormField {
	var fields []FormField
	index := make(map[string]int)

	addOption := func(name string, kind FieldKind, value string) {
		if i, ok := index[name]; ok && fields[i].Kind == kind {
			fields[i].Options = append(fields[i].Options, value)
			return
		}
		index[name] = len(fields)
		fields = append(fields, FormField{Name: name, Kind: kind, Options: []string{value}})
	}

	for _, n := range htmlquery.Find(scope, ".//*[self::input or self::select][@name]") {
		name := htmlquery.SelectAttr(n, "name")
		if n.Data == "select" {
			var opts []string
			for _, o := range htmlquery.Find(n, ".//option") {
				if v := htmlquery.SelectAttr(o, "value"); v != "" {
					opts = append(opts, v)
				}
			}
			index[name] = len(fields)
			fields = append(fields, FormField{Name: name, Kind: KindSingleChoice, Options: opts})
			continue
		}

		switch inputType(n) {
		case "radio":
			addOption(name, KindSingleChoice, choiceValue(n))
		case "checkbox":
			addOption(name, KindMultiChoice, choiceValue(n))
		case "hidden", "submit", "button", "reset", "image", "file":
		default:
			index[name] = len(fields)
			fields = append(fields, FormField{
				Name:        name,
				Kind:        KindText,
				Value:       htmlquery.SelectAttr(n, "value"),
				Placeholder: strings.TrimSpace(htmlquery.SelectAttr(n, "placeholder")),
			})
		}
	}
	return fields
}

// Harvester fetches evaluation pages and parses them into Forms.
type Harvester struct {
	session *portal.SessionContext
	logger  *zap.Logger
}

// NewHarvester creates a Harvester over an authenticated session.
func NewHarvester(sess *portal.SessionContext, logger *zap.Logger) *Harvester {
	if logger == nil {
		logger = observability.GetLogger()
	}
	return &Harvester{session: sess, logger: logger.Named("harvester")}
}

// Harvest loads the evaluation page of task and returns its Form.
func (h *Harvester) Harvest(ctx context.Context, task portal.EvaluationTask) (*Form, error) {
	pageURL := h.session.Endpoints().Evaluation(task.ID)
	resp, err := h.session.Get(ctx, pageURL, "harvest")
	if err != nil {
		return nil, err
	}
	page, err := resp.HTMLBody()
	if err != nil {
		return nil, portal.NewError(portal.ErrCodeProtocolViolation, "harvest", "undecodable page", err).WithBody(resp.Body)
	}
	form, err := ParseForm(page)
	if err != nil {
		return nil, err
	}
	form.TaskID = task.ID
	form.PageURL = pageURL

	if len(form.FreeText) > 1 {
		h.logger.Warn("Page has several free-text controls; only the first receives the comment.",
			zap.String("task", task.DisplayName), zap.Int("count", len(form.FreeText)))
	}
	h.logger.Debug("Harvested evaluation form.",
		zap.String("task", task.DisplayName),
		zap.Int("fields", len(form.Fields)),
		zap.Int("hidden", len(form.Hidden)))
	return form, nil
}
