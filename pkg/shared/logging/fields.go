// Package logging provides a chained structured-field builder used by
// the notification adapters before emitting a log line through logrus.
package logging

import (
	"time"

	"github.com/sirupsen/logrus"
)

// StandardFields is a set of structured log fields keyed by name; it
// keeps no order.
type StandardFields map[string]interface{}

// NewFields returns an empty field set.
func NewFields() StandardFields {
	return StandardFields{}
}

// Component records which component emitted the log line.
func (f StandardFields) Component(name string) StandardFields {
	f["component"] = name
	return f
}

// Operation records the operation in progress.
func (f StandardFields) Operation(op string) StandardFields {
	f["operation"] = op
	return f
}

// Resource records the type, and optionally the name, of the resource
// being acted on.
func (f StandardFields) Resource(resourceType, resourceName string) StandardFields {
	f["resource_type"] = resourceType
	if resourceName != "" {
		f["resource_name"] = resourceName
	}
	return f
}

// Duration records an elapsed time in milliseconds.
func (f StandardFields) Duration(d time.Duration) StandardFields {
	f["duration_ms"] = d.Milliseconds()
	return f
}

// Error records err's message, if non-nil.
func (f StandardFields) Error(err error) StandardFields {
	if err != nil {
		f["error"] = err.Error()
	}
	return f
}

// UserID records a non-empty user identifier.
func (f StandardFields) UserID(id string) StandardFields {
	if id != "" {
		f["user_id"] = id
	}
	return f
}

// RequestID records the inbound request identifier.
func (f StandardFields) RequestID(id string) StandardFields {
	f["request_id"] = id
	return f
}

// TraceID records the distributed trace identifier.
func (f StandardFields) TraceID(id string) StandardFields {
	f["trace_id"] = id
	return f
}

// StatusCode records an HTTP status code.
func (f StandardFields) StatusCode(code int) StandardFields {
	f["status_code"] = code
	return f
}

// Method records an HTTP method.
func (f StandardFields) Method(method string) StandardFields {
	f["method"] = method
	return f
}

// URL records a request URL.
func (f StandardFields) URL(url string) StandardFields {
	f["url"] = url
	return f
}

// Count records an item count.
func (f StandardFields) Count(n int) StandardFields {
	f["count"] = n
	return f
}

// Size records a byte size.
func (f StandardFields) Size(bytes int64) StandardFields {
	f["size_bytes"] = bytes
	return f
}

// Version records a component or artifact version.
func (f StandardFields) Version(v string) StandardFields {
	f["version"] = v
	return f
}

// Custom records an arbitrary key/value pair.
func (f StandardFields) Custom(key string, value interface{}) StandardFields {
	f[key] = value
	return f
}

// ToLogrus converts the field set to a logrus.Fields value.
func (f StandardFields) ToLogrus() logrus.Fields {
	lf := make(logrus.Fields, len(f))
	for k, v := range f {
		lf[k] = v
	}
	return lf
}

// DatabaseFields returns fields for a database operation against a table.
func DatabaseFields(operation, table string) StandardFields {
	return NewFields().Component("database").Operation(operation).Resource("table", table)
}

// HTTPFields returns fields for an HTTP request/response pair.
func HTTPFields(method, url string, statusCode int) StandardFields {
	return NewFields().Component("http").Method(method).URL(url).StatusCode(statusCode)
}

// WorkflowFields returns fields for a workflow operation.
func WorkflowFields(operation, workflowID string) StandardFields {
	return NewFields().Component("workflow").Operation(operation).Resource("workflow", workflowID)
}

// KubernetesFields returns fields for a Kubernetes resource operation.
func KubernetesFields(operation, resourceType, resourceName, namespace string) StandardFields {
	f := NewFields().Component("kubernetes").Operation(operation).Resource(resourceType, resourceName)
	if namespace != "" {
		f["namespace"] = namespace
	}
	return f
}

// AIFields returns fields for an AI/LLM inference call.
func AIFields(operation, model string) StandardFields {
	return NewFields().Component("ai").Operation(operation).Custom("model", model)
}

// MetricsFields returns fields for a recorded metric value.
func MetricsFields(operation, metricName string, value float64) StandardFields {
	return NewFields().Component("metrics").Operation(operation).Custom("metric_name", metricName).Custom("value", value)
}

// SecurityFields returns fields for a security-relevant operation on a
// subject.
func SecurityFields(operation, subject string) StandardFields {
	return NewFields().Component("security").Operation(operation).Custom("subject", subject)
}

// PerformanceFields returns fields summarizing a timed operation's outcome.
func PerformanceFields(operation string, duration time.Duration, success bool) StandardFields {
	return NewFields().Component("performance").Operation(operation).Duration(duration).Custom("success", success)
}
