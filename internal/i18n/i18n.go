// internal/i18n/i18n.go
package i18n

import (
	"context"
	"embed"
	"fmt"
	"sync"

	json "github.com/json-iterator/go"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/xkilldash9x/quickeval/internal/observability"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

type ctxKey struct{}

var (
	bundleOnce sync.Once
	bundle     *i18n.Bundle
	bundleErr  error
)

// loadBundle parses every embedded catalogue once.
func loadBundle() (*i18n.Bundle, error) {
	bundleOnce.Do(func() {
		b := i18n.NewBundle(language.English)
		b.RegisterUnmarshalFunc("json", json.Unmarshal)

		entries, err := localeFS.ReadDir("locales")
		if err != nil {
			bundleErr = fmt.Errorf("read locales dir: %w", err)
			return
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			data, err := localeFS.ReadFile("locales/" + e.Name())
			if err != nil {
				bundleErr = fmt.Errorf("read locale file %s: %w", e.Name(), err)
				return
			}
			if _, err := b.ParseMessageFileBytes(data, e.Name()); err != nil {
				bundleErr = fmt.Errorf("parse locale file %s: %w", e.Name(), err)
				return
			}
		}
		bundle = b
	})
	return bundle, bundleErr
}

// Languages lists the catalogues compiled into the binary.
func Languages() []string {
	b, err := loadBundle()
	if err != nil {
		return nil
	}
	tags := b.LanguageTags()
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out = append(out, t.String())
	}
	return out
}

// Printer renders console messages in one language, falling back to English.
type Printer struct {
	loc *i18n.Localizer
}

// NewPrinter creates a Printer for lang, e.g. "zh" or "en-US".
func NewPrinter(lang string) (*Printer, error) {
	tag, err := language.Parse(lang)
	if err != nil {
		return nil, fmt.Errorf("parse language %q: %w", lang, err)
	}
	b, err := loadBundle()
	if err != nil {
		return nil, err
	}
	return &Printer{loc: i18n.NewLocalizer(b, tag.String(), language.English.String())}, nil
}

// T translates a message by ID.
func (p *Printer) T(msgID string) string {
	return p.localize(&i18n.LocalizeConfig{MessageID: msgID})
}

// Td translates a message by ID with template data.
func (p *Printer) Td(msgID string, data map[string]any) string {
	return p.localize(&i18n.LocalizeConfig{MessageID: msgID, TemplateData: data})
}

// Tp translates a pluralized message by ID. Count is added to data.
func (p *Printer) Tp(msgID string, count int, data map[string]any) string {
	td := map[string]any{"Count": count}
	for k, v := range data {
		td[k] = v
	}
	return p.localize(&i18n.LocalizeConfig{MessageID: msgID, PluralCount: count, TemplateData: td})
}

func (p *Printer) localize(cfg *i18n.LocalizeConfig) string {
	s, err := p.loc.Localize(cfg)
	if err != nil {
		observability.GetLogger().Warn("missing translation", zap.String("id", cfg.MessageID), zap.Error(err))
		return cfg.MessageID
	}
	return s
}

// WithPrinter stores a printer in the context.
func WithPrinter(ctx context.Context, p *Printer) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the context's printer, or an English one.
func FromContext(ctx context.Context) *Printer {
	if p, ok := ctx.Value(ctxKey{}).(*Printer); ok {
		return p
	}
	p, err := NewPrinter("en")
	if err != nil {
		panic(fmt.Sprintf("embedded locales are broken: %v", err))
	}
	return p
}
