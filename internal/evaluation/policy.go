// internal/evaluation/policy.go
package evaluation

import (
	"fmt"

	"github.com/xkilldash9x/quickeval/internal/config"
	"github.com/xkilldash9x/quickeval/internal/portal"
)

// Field names with protocol meaning.
const (
	FieldQuestionnaire = "wjbm"
	FieldTask          = "ktid"
	FieldToken         = portal.TokenField
	FieldPhase         = "tjcs"
	FieldCompare       = "compare"
)

// Phase markers carried in the tjcs field.
const (
	PhaseProvisional = "0"
	PhaseConfirmed   = "1"
)

// RadioStrategy picks one option out of a single-choice group.
type RadioStrategy string

const (
	RadioFirst RadioStrategy = "first"
	RadioLast  RadioStrategy = "last"
)

func (s RadioStrategy) pick(options []string) string {
	if s == RadioLast {
		return options[len(options)-1]
	}
	return options[0]
}

// Policy is the autofill rule set. Apply is pure: it reads the Form and
// builds a new FieldMap without touching the network or the session.
type Policy struct {
	ScoreValue       string
	ScorePlaceholder string
	Radio            RadioStrategy
	Comment          string
	NoneOfTheAbove   string
}

// PolicyFromConfig builds a Policy from configuration.
func PolicyFromConfig(cfg config.PolicyConfig) Policy {
	return Policy{
		ScoreValue:       cfg.ScoreValue,
		ScorePlaceholder: cfg.ScorePlaceholder,
		Radio:            RadioStrategy(cfg.RadioStrategy),
		Comment:          cfg.Comment,
		NoneOfTheAbove:   cfg.NoneOfTheAbove,
	}
}

// DefaultPolicy is the full-marks policy.
func DefaultPolicy() Policy {
	return PolicyFromConfig(config.NewDefaultConfig().Evaluation().Policy)
}

// Apply fills form according to the policy. Rules run in precedence order
// and the first rule to claim a field name keeps it:
//
//  1. wjbm, ktid and tokenValue copied from the first input of that name,
//     hidden or not
//  2. score inputs, recognised by placeholder, get ScoreValue
//  3. every single-choice group gets the option chosen by Radio
//  4. every multi-choice group gets all options except NoneOfTheAbove
//  5. the first textarea gets Comment
//
// compare="" and tjcs="0" are then always set.
func (p Policy) Apply(form *Form) (*FieldMap, error) {
	const op = "apply-policy"
	fields := NewFieldMap()

	for _, name := range []string{FieldQuestionnaire, FieldTask, FieldToken} {
		v, ok := form.InputValue(name)
		if !ok {
			return nil, portal.NewError(portal.ErrCodeFormFieldNotFound, op, fmt.Sprintf("input %q missing", name), nil)
		}
		fields.Set(name, v)
	}
	if len(form.FreeText) == 0 {
		return nil, portal.NewError(portal.ErrCodeFormFieldNotFound, op, "free-text control missing", nil)
	}

	for _, f := range form.Fields {
		if f.Kind == KindText && p.ScorePlaceholder != "" && f.Placeholder == p.ScorePlaceholder && !fields.Has(f.Name) {
			fields.Set(f.Name, p.ScoreValue)
		}
	}

	for _, f := range form.Fields {
		if f.Kind == KindSingleChoice && len(f.Options) > 0 && !fields.Has(f.Name) {
			fields.Set(f.Name, p.Radio.pick(f.Options))
		}
	}

	for _, f := range form.Fields {
		if f.Kind != KindMultiChoice || fields.Has(f.Name) {
			continue
		}
		var chosen []string
		for _, opt := range f.Options {
			if opt != p.NoneOfTheAbove {
				chosen = append(chosen, opt)
			}
		}
		// A group offering only the sentinel is left out entirely.
		if len(chosen) > 0 {
			fields.SetMulti(f.Name, chosen)
		}
	}

	if text := form.FreeText[0]; !fields.Has(text.Name) {
		fields.Set(text.Name, p.Comment)
	}

	fields.Set(FieldCompare, "")
	fields.Set(FieldPhase, PhaseProvisional)
	return fields, nil
}
