package logging

import (
	"sort"
	"time"

	"go.uber.org/zap"
)

// Fields is a chainable builder for structured log attributes.
type Fields map[string]interface{}

// NewFields returns an empty field set.
func NewFields() Fields {
	return Fields{}
}

// Component records the component emitting the log line.
func (f Fields) Component(name string) Fields {
	f["component"] = name
	return f
}

// Operation records the operation in progress.
func (f Fields) Operation(name string) Fields {
	f["operation"] = name
	return f
}

// Project records the owning project id.
func (f Fields) Project(id string) Fields {
	if id != "" {
		f["project_id"] = id
	}
	return f
}

// Keyword records the keyword id under tracking.
func (f Fields) Keyword(id string) Fields {
	if id != "" {
		f["keyword_id"] = id
	}
	return f
}

// Platform records the provider platform.
func (f Fields) Platform(name string) Fields {
	if name != "" {
		f["platform"] = name
	}
	return f
}

// Job records the tracking job id.
func (f Fields) Job(id string) Fields {
	if id != "" {
		f["job_id"] = id
	}
	return f
}

// Duration records elapsed time in milliseconds.
func (f Fields) Duration(d time.Duration) Fields {
	f["duration_ms"] = d.Milliseconds()
	return f
}

// Error records a non-nil error message.
func (f Fields) Error(err error) Fields {
	if err != nil {
		f["error"] = err.Error()
	}
	return f
}

// Count records an item count.
func (f Fields) Count(n int) Fields {
	f["count"] = n
	return f
}

// Custom records an arbitrary key/value pair.
func (f Fields) Custom(key string, value interface{}) Fields {
	f[key] = value
	return f
}

// ToZap converts the field set to zap fields in deterministic key order.
func (f Fields) ToZap() []zap.Field {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		fields = append(fields, zap.Any(k, f[k]))
	}
	return fields
}

// TrackingFields builds the standard field set for tracking operations.
func TrackingFields(operation, projectID, keywordID, platform string) Fields {
	return NewFields().
		Component("tracking").
		Operation(operation).
		Project(projectID).
		Keyword(keywordID).
		Platform(platform)
}

// ProviderFields builds the standard field set for provider calls.
func ProviderFields(operation, platform string) Fields {
	return NewFields().
		Component("provider").
		Operation(operation).
		Platform(platform)
}

// DatabaseFields builds the standard field set for store operations.
func DatabaseFields(operation, table string) Fields {
	f := NewFields().
		Component("database").
		Operation(operation)
	if table != "" {
		f["table"] = table
	}
	return f
}

// QueueFields builds the standard field set for broker operations.
func QueueFields(operation, queue string) Fields {
	f := NewFields().
		Component("queue").
		Operation(operation)
	if queue != "" {
		f["queue"] = queue
	}
	return f
}

// SchedulerFields builds the standard field set for planner loops.
func SchedulerFields(operation, planner string) Fields {
	f := NewFields().
		Component("scheduler").
		Operation(operation)
	if planner != "" {
		f["planner"] = planner
	}
	return f
}
