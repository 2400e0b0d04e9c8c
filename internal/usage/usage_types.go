package usage

// Event is the accounting for one agent query, reported by the backend
// when the query finishes.
type Event struct {
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
	CostUSD      float64 // zero when the provider does not report cost
	Turns        int
}

// TokenCounts holds input/output sums.
type TokenCounts struct {
	Input  int64   `json:"input"`
	Output int64   `json:"output"`
	Total  int64   `json:"total"`
	Cost   float64 `json:"cost_est_usd,omitempty"`
}

func (tc *TokenCounts) Add(input, output int, cost float64) {
	tc.Input += int64(input)
	tc.Output += int64(output)
	tc.Total += int64(input + output)
	tc.Cost += cost
}

// Stats aggregates every event recorded during a run.
type Stats struct {
	Queries  int                    `json:"queries"`
	Turns    int                    `json:"turns"`
	Total    TokenCounts            `json:"total"`
	ByModel  map[string]TokenCounts `json:"by_model"`
	Provider string                 `json:"provider,omitempty"`
}
