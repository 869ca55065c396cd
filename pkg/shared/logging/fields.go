// Package logging provides the standard structured-field vocabulary used
// across every package in the execution core, plus a zap.Logger
// constructor. Log statements should build Fields and hand them to zap
// via Fields.ZapFields() rather than hand-rolling zap.String calls.
package logging

import (
	"time"

	"go.uber.org/zap"

	"github.com/opsforge/execcore/pkg/masking"
)

// sanitizer backstops every field this package ever hands to zap. It is
// package-level rather than threaded through Fields' value-receiver chain
// because masking is not optional per call site: LogMasker applies to any
// log record, not just the ones a caller remembers to sanitize.
var sanitizer = masking.NewSanitizer()

// Fields is a bag of structured log fields keyed by name; ZapFields emits
// them in map iteration order.
type Fields map[string]any

// NewFields returns an empty Fields value.
func NewFields() Fields {
	return Fields{}
}

func (f Fields) set(k string, v any) Fields {
	f[k] = v
	return f
}

// Component tags the log line with the originating component name.
func (f Fields) Component(name string) Fields { return f.set("component", name) }

// Operation tags the log line with the operation being performed.
func (f Fields) Operation(name string) Fields { return f.set("operation", name) }

// Resource tags the log line with a resource type/name pair. If name is
// empty, resource_name is omitted entirely.
func (f Fields) Resource(resourceType, name string) Fields {
	f.set("resource_type", resourceType)
	if name != "" {
		f.set("resource_name", name)
	}
	return f
}

// Duration tags the log line with an elapsed duration.
func (f Fields) Duration(d time.Duration) Fields { return f.set("duration", d.String()) }

// TenantActor tags the log line with tenant/actor identity.
func (f Fields) TenantActor(tenantID, actorID string) Fields {
	f.set("tenant_id", tenantID)
	f.set("actor_id", actorID)
	return f
}

// Execution tags the log line with an execution id.
func (f Fields) Execution(executionID string) Fields { return f.set("execution_id", executionID) }

// Err tags the log line with an error value.
func (f Fields) Err(err error) Fields {
	if err == nil {
		return f
	}
	return f.set("error", err.Error())
}

// With merges an arbitrary key/value into the field set.
func (f Fields) With(key string, value any) Fields { return f.set(key, value) }

// ZapFields converts Fields into zap.Field values, passing every value
// through the LogMasker sanitizer first so a field built from step inputs
// or an error string can never land a secret in a log sink unredacted.
func (f Fields) ZapFields() []zap.Field {
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		out = append(out, zap.Any(k, sanitizer.MaskValue(v)))
	}
	return out
}

// NewLogger builds a zap.Logger configured for the given level
// ("debug"|"info"|"warn"|"error") and format ("json"|"console").
func NewLogger(level, format string) (*zap.Logger, error) {
	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		lvl = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	cfg.Level = lvl
	return cfg.Build()
}
