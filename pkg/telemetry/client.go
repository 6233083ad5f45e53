// Package telemetry implements TelemetryPort against SigNoz and Jaeger
// query APIs. Both adapters share an HTTP client, a static-token oauth2
// source, and a set of gojq-based projections that turn each backend's
// loosely-typed JSON documents into model.ErrorEvent/TraceTree/LogEntry
// without a generated client.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/itchyny/gojq"
	"golang.org/x/oauth2"

	apperrors "github.com/jordigilh/rounds/internal/errors"
	sharedhttp "github.com/jordigilh/rounds/pkg/shared/http"
)

// backendClient is the HTTP plumbing shared by SigNozClient and
// JaegerClient: a tuned *http.Client, the query-API base URL, and an
// optional bearer token for backends that require auth (e.g. a managed
// Grafana/Tempo endpoint).
type backendClient struct {
	httpClient  *http.Client
	baseURL     string
	tokenSource oauth2.TokenSource
}

func newBackendClient(baseURL, authToken string, config sharedhttp.ClientConfig) backendClient {
	var ts oauth2.TokenSource
	if authToken != "" {
		ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: authToken})
	}
	return backendClient{
		httpClient:  sharedhttp.NewClient(config),
		baseURL:     baseURL,
		tokenSource: ts,
	}
}

// get issues a GET against path (relative to baseURL) and returns the
// decoded JSON body as an arbitrary value suitable for gojq projection.
func (c backendClient) get(ctx context.Context, path string) (interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "failed to build telemetry request")
	}
	if c.tokenSource != nil {
		token, err := c.tokenSource.Token()
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrorTypeAuth, "failed to obtain telemetry auth token")
		}
		req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "telemetry backend request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "failed to read telemetry response body")
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, apperrors.New(apperrors.ErrorTypeNotFound, "telemetry resource not found")
	}
	if resp.StatusCode >= 300 {
		return nil, apperrors.New(apperrors.ErrorTypeNetwork, fmt.Sprintf("telemetry backend returned status %d", resp.StatusCode)).
			WithDetails(string(bytes.TrimSpace(body)))
	}

	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "failed to decode telemetry response")
	}
	return decoded, nil
}

// project compiles query once per call and runs it against input,
// collecting every emitted value. A query that never yields bindings
// projects to an empty result, not an error.
func project(query string, input interface{}) ([]interface{}, error) {
	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("invalid projection query %q: %w", query, err)
	}

	var out []interface{}
	iter := parsed.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			return nil, fmt.Errorf("projection query %q failed: %w", query, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// asString coerces a projected value to a string, defaulting to "" for
// anything absent (gojq emits nil for a missing field).
func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

// asFloat coerces a projected numeric value to float64.
func asFloat(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}

// asObjectSlice coerces a projected value to []interface{}, defaulting
// to nil for anything that isn't an array.
func asObjectSlice(v interface{}) []interface{} {
	s, _ := v.([]interface{})
	return s
}

// asObjectMap coerces a projected value to map[string]interface{}.
func asObjectMap(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}
