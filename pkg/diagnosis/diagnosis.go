package diagnosis

import "github.com/jordigilh/rounds/pkg/ports"

var (
	_ ports.DiagnosisPort = (*AnthropicDiagnoser)(nil)
	_ ports.DiagnosisPort = (*BedrockDiagnoser)(nil)
)
