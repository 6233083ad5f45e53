package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/jordigilh/rounds/internal/errors"
	"github.com/jordigilh/rounds/internal/validation"
	"github.com/jordigilh/rounds/pkg/model"
	sharedhttp "github.com/jordigilh/rounds/pkg/shared/http"
)

// Jaeger Query API responses nest everything under "data", one entry
// per trace, each carrying its own "spans" array.
const jaegerTraceProjection = `.data[]?`
const jaegerSpanProjection = `.spans[]?`
const jaegerLogProjection = `.logs[]?`

// JaegerClient implements ports.TelemetryPort against the Jaeger Query
// API, reusing SigNozClient's gojq projection helpers to demonstrate
// that TelemetryPort adapters are swappable behind a single gojq-based
// projection strategy.
type JaegerClient struct {
	client backendClient
}

// NewJaegerClient builds a client against baseURL (e.g.
// "http://jaeger-query:16686"), optionally authenticating with
// authToken.
func NewJaegerClient(baseURL, authToken string, timeout time.Duration) *JaegerClient {
	return &JaegerClient{client: newBackendClient(baseURL, authToken, sharedhttp.TelemetryClientConfig(timeout))}
}

func jaegerSpanToErrorEvent(traceID string, doc interface{}) model.ErrorEvent {
	m := asObjectMap(doc)

	var errType, errMsg string
	var stack []model.StackFrame
	for _, tagDoc := range asObjectSlice(m["tags"]) {
		tag := asObjectMap(tagDoc)
		switch asString(tag["key"]) {
		case "error.kind":
			errType = asString(tag["value"])
		case "error.message":
			errMsg = asString(tag["value"])
		}
	}
	for _, logDoc := range asObjectSlice(m["logs"]) {
		for _, fieldDoc := range asObjectSlice(asObjectMap(logDoc)["fields"]) {
			field := asObjectMap(fieldDoc)
			if asString(field["key"]) == "stack" {
				stack = append(stack, model.StackFrame{Function: asString(field["value"])})
			}
		}
	}

	startMicros := int64(asFloat(m["startTime"]))
	return model.ErrorEvent{
		TraceID:      traceID,
		SpanID:       asString(m["spanID"]),
		Service:      asString(asObjectMap(m["process"])["serviceName"]),
		ErrorType:    errType,
		ErrorMessage: errMsg,
		Stack:        stack,
		Timestamp:    time.UnixMicro(startMicros).UTC(),
		Severity:     model.SeverityError,
	}
}

// GetRecentErrors queries the Jaeger Query API for traces tagged
// error=true since the given time, optionally restricted to services.
func (c *JaegerClient) GetRecentErrors(ctx context.Context, since time.Time, services []string) ([]model.ErrorEvent, error) {
	q := url.Values{}
	q.Set("start", strconv.FormatInt(since.UnixMicro(), 10))
	q.Set("tags", `{"error":"true"}`)
	for _, svc := range services {
		q.Add("service", svc)
	}

	body, err := c.client.get(ctx, "/api/traces?"+q.Encode())
	if err != nil {
		return nil, err
	}

	traceDocs, err := project(jaegerTraceProjection, body)
	if err != nil {
		return nil, err
	}

	var events []model.ErrorEvent
	for _, traceDoc := range traceDocs {
		traceID := asString(asObjectMap(traceDoc)["traceID"])
		spanDocs, err := project(jaegerSpanProjection, traceDoc)
		if err != nil {
			return nil, err
		}
		for _, spanDoc := range spanDocs {
			events = append(events, jaegerSpanToErrorEvent(traceID, spanDoc))
		}
	}
	return events, nil
}

func jaegerSpanNode(doc interface{}, byParent map[string][]interface{}) *model.SpanNode {
	m := asObjectMap(doc)
	status := model.SpanStatusOK
	var parentID string
	for _, refDoc := range asObjectSlice(m["references"]) {
		ref := asObjectMap(refDoc)
		if asString(ref["refType"]) == "CHILD_OF" {
			parentID = asString(ref["spanID"])
		}
	}
	for _, tagDoc := range asObjectSlice(m["tags"]) {
		tag := asObjectMap(tagDoc)
		if asString(tag["key"]) == "error" {
			status = model.SpanStatusError
		}
	}

	process, _ := m["process"].(map[string]interface{})
	spanID := asString(m["spanID"])
	node := &model.SpanNode{
		SpanID:    spanID,
		ParentID:  parentID,
		Service:   asString(process["serviceName"]),
		Operation: asString(m["operationName"]),
		Duration:  time.Duration(int64(asFloat(m["duration"]))) * time.Microsecond,
		Status:    status,
	}
	for _, childDoc := range byParent[spanID] {
		node.Children = append(node.Children, jaegerSpanNode(childDoc, byParent))
	}
	return node
}

// GetTrace fetches a single trace's span tree.
func (c *JaegerClient) GetTrace(ctx context.Context, traceID string) (model.TraceTree, error) {
	if err := validation.ValidateTraceID(traceID); err != nil {
		return model.TraceTree{}, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "invalid trace id")
	}

	body, err := c.client.get(ctx, "/api/traces/"+traceID)
	if err != nil {
		return model.TraceTree{}, err
	}

	traceDocs, err := project(jaegerTraceProjection, body)
	if err != nil {
		return model.TraceTree{}, err
	}
	if len(traceDocs) == 0 {
		return model.TraceTree{}, apperrors.New(apperrors.ErrorTypeNotFound, fmt.Sprintf("trace %s not found", traceID))
	}

	spanDocs, err := project(jaegerSpanProjection, traceDocs[0])
	if err != nil {
		return model.TraceTree{}, err
	}

	byParent := make(map[string][]interface{})
	var rootDoc interface{}
	for _, doc := range spanDocs {
		node := jaegerRootCandidate(doc)
		if node.parentID == "" {
			rootDoc = doc
			continue
		}
		byParent[node.parentID] = append(byParent[node.parentID], doc)
	}

	var root *model.SpanNode
	if rootDoc != nil {
		root = jaegerSpanNode(rootDoc, byParent)
	}
	return model.TraceTree{TraceID: traceID, Root: root}, nil
}

type rootCandidate struct{ parentID string }

func jaegerRootCandidate(doc interface{}) rootCandidate {
	m := asObjectMap(doc)
	for _, refDoc := range asObjectSlice(m["references"]) {
		ref := asObjectMap(refDoc)
		if asString(ref["refType"]) == "CHILD_OF" {
			return rootCandidate{parentID: asString(ref["spanID"])}
		}
	}
	return rootCandidate{}
}

// GetTraces validates every id upfront, then fetches each trace with
// bounded concurrency; an individual fetch failure is skipped rather
// than failing the whole batch.
func (c *JaegerClient) GetTraces(ctx context.Context, traceIDs []string) ([]model.TraceTree, error) {
	for _, id := range traceIDs {
		if err := validation.ValidateTraceID(id); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "invalid trace id in batch")
		}
	}

	results := make([]model.TraceTree, len(traceIDs))
	ok := make([]bool, len(traceIDs))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(TraceFetchConcurrency)
	for i, id := range traceIDs {
		i, id := i, id
		group.Go(func() error {
			tree, err := c.GetTrace(groupCtx, id)
			if err != nil {
				return nil
			}
			results[i] = tree
			ok[i] = true
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	out := make([]model.TraceTree, 0, len(traceIDs))
	for i, fetched := range ok {
		if fetched {
			out = append(out, results[i])
		}
	}
	return out, nil
}

// GetCorrelatedLogs returns span logs joined to the given trace ids.
// Jaeger scopes logs to spans rather than a dedicated log index, so this
// fetches each trace and flattens all of its span logs; windowMinutes is
// validated but does not filter the logs by time.
func (c *JaegerClient) GetCorrelatedLogs(ctx context.Context, traceIDs []string, windowMinutes int) ([]model.LogEntry, error) {
	if err := validation.ValidateWindowMinutes(windowMinutes); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "invalid window_minutes")
	}

	var logs []model.LogEntry
	for _, traceID := range traceIDs {
		body, err := c.client.get(ctx, "/api/traces/"+traceID)
		if err != nil {
			continue
		}
		traceDocs, err := project(jaegerTraceProjection, body)
		if err != nil || len(traceDocs) == 0 {
			continue
		}
		spanDocs, err := project(jaegerSpanProjection, traceDocs[0])
		if err != nil {
			continue
		}
		for _, spanDoc := range spanDocs {
			spanID := asString(asObjectMap(spanDoc)["spanID"])
			logDocs, err := project(jaegerLogProjection, spanDoc)
			if err != nil {
				continue
			}
			for _, logDoc := range logDocs {
				logs = append(logs, jaegerLogFromDoc(logDoc, traceID, spanID))
			}
		}
	}
	return logs, nil
}

func jaegerLogFromDoc(doc interface{}, traceID, spanID string) model.LogEntry {
	m := asObjectMap(doc)
	timestampMicros := int64(asFloat(m["timestamp"]))

	var body string
	severity := model.SeverityInfo
	for _, fieldDoc := range asObjectSlice(m["fields"]) {
		field := asObjectMap(fieldDoc)
		switch asString(field["key"]) {
		case "message":
			body = asString(field["value"])
		case "level":
			severity = model.Severity(asString(field["value"]))
		}
	}

	return model.LogEntry{
		Timestamp: time.UnixMicro(timestampMicros).UTC(),
		Severity:  severity,
		Body:      body,
		TraceID:   traceID,
		SpanID:    spanID,
	}
}

// GetEventsForSignature returns up to limit recent error spans tagged
// with fingerprint.
func (c *JaegerClient) GetEventsForSignature(ctx context.Context, fingerprint string, limit int) ([]model.ErrorEvent, error) {
	if err := validation.ValidateLimit(limit); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "invalid limit")
	}

	q := url.Values{}
	q.Set("tags", fmt.Sprintf(`{"fingerprint":"%s"}`, fingerprint))

	body, err := c.client.get(ctx, "/api/traces?"+q.Encode())
	if err != nil {
		return nil, err
	}

	traceDocs, err := project(jaegerTraceProjection, body)
	if err != nil {
		return nil, err
	}

	var events []model.ErrorEvent
	for _, traceDoc := range traceDocs {
		traceID := asString(asObjectMap(traceDoc)["traceID"])
		spanDocs, err := project(jaegerSpanProjection, traceDoc)
		if err != nil {
			return nil, err
		}
		for _, spanDoc := range spanDocs {
			events = append(events, jaegerSpanToErrorEvent(traceID, spanDoc))
			if len(events) >= limit {
				return events[:limit], nil
			}
		}
	}
	return events, nil
}
