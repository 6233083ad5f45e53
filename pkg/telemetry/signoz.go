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

// signozErrorProjection walks a SigNoz query-range response
// (`{"data":{"result":[{"service":...,"errorType":...,...}]}}`) down
// to the flat list of error documents.
const signozErrorProjection = `.data.result[]?`

const signozSpanProjection = `.data.spans[]?`

const signozLogProjection = `.data.logs[]?`

// defaultTraceFetchConcurrency bounds how many GetTrace calls GetTraces
// runs in parallel, so a large batch doesn't open unbounded connections
// against the backend.
const defaultTraceFetchConcurrency = 5

// TraceFetchConcurrency is the number of GetTrace calls GetTraces runs
// in parallel; it starts at defaultTraceFetchConcurrency.
var TraceFetchConcurrency = defaultTraceFetchConcurrency

// SigNozClient implements ports.TelemetryPort against a
// SigNoz-compatible ClickHouse-backed query API.
type SigNozClient struct {
	client backendClient
}

// NewSigNozClient builds a client against baseURL (e.g.
// "http://signoz:8080"), optionally authenticating with authToken.
func NewSigNozClient(baseURL, authToken string, timeout time.Duration) *SigNozClient {
	return &SigNozClient{client: newBackendClient(baseURL, authToken, sharedhttp.TelemetryClientConfig(timeout))}
}

func errorEventFromDoc(doc interface{}) model.ErrorEvent {
	m := asObjectMap(doc)

	var stack []model.StackFrame
	for _, f := range asObjectSlice(m["stack"]) {
		fm := asObjectMap(f)
		stack = append(stack, model.StackFrame{
			Module:   asString(fm["module"]),
			Function: asString(fm["function"]),
			Filename: asString(fm["filename"]),
			Lineno:   int(asFloat(fm["lineno"])),
		})
	}

	attrs := asObjectMap(m["attributes"])
	ts, _ := time.Parse(time.RFC3339, asString(m["timestamp"]))

	return model.ErrorEvent{
		TraceID:      asString(m["traceId"]),
		SpanID:       asString(m["spanId"]),
		Service:      asString(m["service"]),
		ErrorType:    asString(m["errorType"]),
		ErrorMessage: asString(m["errorMessage"]),
		Stack:        stack,
		Timestamp:    ts,
		Attributes:   attrs,
		Severity:     model.Severity(asString(m["severity"])),
	}
}

// GetRecentErrors queries SigNoz's query-range API for error-level
// spans/logs since the given time, optionally restricted to services.
func (c *SigNozClient) GetRecentErrors(ctx context.Context, since time.Time, services []string) ([]model.ErrorEvent, error) {
	q := url.Values{}
	q.Set("start", strconv.FormatInt(since.UnixMilli(), 10))
	q.Set("severity", "error")
	for _, svc := range services {
		q.Add("service", svc)
	}

	body, err := c.client.get(ctx, "/api/v1/query_range?"+q.Encode())
	if err != nil {
		return nil, err
	}

	docs, err := project(signozErrorProjection, body)
	if err != nil {
		return nil, err
	}

	events := make([]model.ErrorEvent, 0, len(docs))
	for _, doc := range docs {
		events = append(events, errorEventFromDoc(doc))
	}
	return events, nil
}

func spanNodeFromDoc(doc interface{}, byParent map[string][]interface{}) *model.SpanNode {
	m := asObjectMap(doc)
	durationNs := int64(asFloat(m["durationNanos"]))

	node := &model.SpanNode{
		SpanID:     asString(m["spanId"]),
		ParentID:   asString(m["parentId"]),
		Service:    asString(m["service"]),
		Operation:  asString(m["operation"]),
		Duration:   time.Duration(durationNs),
		Status:     model.SpanStatus(asString(m["status"])),
		Attributes: asObjectMap(m["attributes"]),
	}
	for _, childDoc := range byParent[node.SpanID] {
		node.Children = append(node.Children, spanNodeFromDoc(childDoc, byParent))
	}
	return node
}

func buildTraceTree(traceID string, spanDocs []interface{}) model.TraceTree {
	byParent := make(map[string][]interface{})
	var rootDoc interface{}
	for _, doc := range spanDocs {
		m := asObjectMap(doc)
		parentID := asString(m["parentId"])
		if parentID == "" {
			rootDoc = doc
			continue
		}
		byParent[parentID] = append(byParent[parentID], doc)
	}

	var root *model.SpanNode
	if rootDoc != nil {
		root = spanNodeFromDoc(rootDoc, byParent)
	}
	return model.TraceTree{TraceID: traceID, Root: root}
}

// GetTrace fetches a single trace's span tree.
func (c *SigNozClient) GetTrace(ctx context.Context, traceID string) (model.TraceTree, error) {
	if err := validation.ValidateTraceID(traceID); err != nil {
		return model.TraceTree{}, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "invalid trace id")
	}

	body, err := c.client.get(ctx, "/api/v1/traces/"+traceID)
	if err != nil {
		return model.TraceTree{}, err
	}

	spanDocs, err := project(signozSpanProjection, body)
	if err != nil {
		return model.TraceTree{}, err
	}
	if len(spanDocs) == 0 {
		return model.TraceTree{}, apperrors.New(apperrors.ErrorTypeNotFound, fmt.Sprintf("trace %s not found", traceID))
	}
	return buildTraceTree(traceID, spanDocs), nil
}

// GetTraces validates every id upfront, then fetches each trace with
// bounded concurrency; an individual fetch failure is skipped rather
// than failing the whole batch.
func (c *SigNozClient) GetTraces(ctx context.Context, traceIDs []string) ([]model.TraceTree, error) {
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
				return nil // best-effort: skip, don't fail the batch
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

func logEntryFromDoc(doc interface{}) model.LogEntry {
	m := asObjectMap(doc)
	ts, _ := time.Parse(time.RFC3339, asString(m["timestamp"]))
	return model.LogEntry{
		Timestamp:  ts,
		Severity:   model.Severity(asString(m["severity"])),
		Body:       asString(m["body"]),
		Attributes: asObjectMap(m["attributes"]),
		TraceID:    asString(m["traceId"]),
		SpanID:     asString(m["spanId"]),
	}
}

// GetCorrelatedLogs returns logs joined to the given trace ids within
// +/- windowMinutes.
func (c *SigNozClient) GetCorrelatedLogs(ctx context.Context, traceIDs []string, windowMinutes int) ([]model.LogEntry, error) {
	if err := validation.ValidateWindowMinutes(windowMinutes); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "invalid window_minutes")
	}

	q := url.Values{}
	for _, id := range traceIDs {
		q.Add("traceId", id)
	}
	q.Set("windowMinutes", strconv.Itoa(windowMinutes))

	body, err := c.client.get(ctx, "/api/v1/logs?"+q.Encode())
	if err != nil {
		return nil, err
	}

	docs, err := project(signozLogProjection, body)
	if err != nil {
		return nil, err
	}

	logs := make([]model.LogEntry, 0, len(docs))
	for _, doc := range docs {
		logs = append(logs, logEntryFromDoc(doc))
	}
	return logs, nil
}

// GetEventsForSignature returns up to limit recent events tagged with
// fingerprint.
func (c *SigNozClient) GetEventsForSignature(ctx context.Context, fingerprint string, limit int) ([]model.ErrorEvent, error) {
	if err := validation.ValidateLimit(limit); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "invalid limit")
	}

	q := url.Values{}
	q.Set("fingerprint", fingerprint)
	q.Set("limit", strconv.Itoa(limit))

	body, err := c.client.get(ctx, "/api/v1/errors?"+q.Encode())
	if err != nil {
		return nil, err
	}

	docs, err := project(signozErrorProjection, body)
	if err != nil {
		return nil, err
	}

	if len(docs) > limit {
		docs = docs[:limit]
	}
	events := make([]model.ErrorEvent, 0, len(docs))
	for _, doc := range docs {
		events = append(events, errorEventFromDoc(doc))
	}
	return events, nil
}
