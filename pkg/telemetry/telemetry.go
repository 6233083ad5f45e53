package telemetry

import "github.com/jordigilh/rounds/pkg/ports"

var (
	_ ports.TelemetryPort = (*SigNozClient)(nil)
	_ ports.TelemetryPort = (*JaegerClient)(nil)
)
