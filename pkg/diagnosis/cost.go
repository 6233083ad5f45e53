package diagnosis

import "github.com/jordigilh/rounds/pkg/model"

// baseDiagnosisCostUSD and perContextItemCostUSD implement the
// original linear cost heuristic: a flat per-call floor plus a small
// increment for every item of context assembled (events, traces, logs).
const (
	baseDiagnosisCostUSD  = 0.30
	perContextItemCostUSD = 0.001
)

// estimateCost is the true estimated USD cost of a diagnosis call,
// never capped at any budget — the caller enforces the budget.
func estimateCost(investigation model.InvestigationContext) float64 {
	contextSize := len(investigation.RecentEvents) + len(investigation.Traces) + len(investigation.Logs)
	return baseDiagnosisCostUSD + float64(contextSize)*perContextItemCostUSD
}
