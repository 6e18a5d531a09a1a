// File: internal/observability/redact.go
package observability

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultRedactKeys are the field keys whose string values are masked when
// logger.redact_keys is not set. They cover the login token carried across
// the two-phase save, the portal session cookie and the user's password.
var DefaultRedactKeys = []string{"token", "next_token", "password", "cookie", "captcha_answer"}

// redactingCore masks string fields whose key is in keys before they reach
// the wrapped core, whichever encoder that core uses.
type redactingCore struct {
	zapcore.Core
	keys map[string]struct{}
}

// NewRedactingCore wraps core so string fields named by keys are logged
// through Redacted. Key matching ignores case.
func NewRedactingCore(core zapcore.Core, keys []string) zapcore.Core {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[strings.ToLower(k)] = struct{}{}
	}
	return &redactingCore{Core: core, keys: set}
}

func (c *redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactingCore{Core: c.Core.With(c.redact(fields)), keys: c.keys}
}

func (c *redactingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *redactingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(ent, c.redact(fields))
}

// redact copies fields only when one of them needs masking.
func (c *redactingCore) redact(fields []zapcore.Field) []zapcore.Field {
	var out []zapcore.Field
	for i, f := range fields {
		if f.Type != zapcore.StringType {
			continue
		}
		if _, secret := c.keys[strings.ToLower(f.Key)]; !secret {
			continue
		}
		if out == nil {
			out = append([]zapcore.Field(nil), fields...)
		}
		out[i] = Redacted(f.Key, f.String)
	}
	if out == nil {
		return fields
	}
	return out
}

// Redacted returns a field that records only the shape of a secret value:
// its length and, for values long enough to be useful, the first four
// characters.
func Redacted(key, value string) zap.Field {
	if value == "" {
		return zap.String(key, "")
	}
	if len(value) <= 8 {
		return zap.String(key, fmt.Sprintf("***(%d)", len(value)))
	}
	return zap.String(key, fmt.Sprintf("%s***(%d)", value[:4], len(value)))
}
