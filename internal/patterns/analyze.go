package patterns

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// Insight is one prose finding produced by the upstream scorer, or by the
// deterministic fallback when the upstream is unreachable.
type Insight struct {
	Title      string  `json:"title"`
	Detail     string  `json:"detail"`
	Confidence float64 `json:"confidence"`
}

type Result struct {
	Insights    []Insight `json:"insights"`
	Fallback    bool      `json:"fallback"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Analyzer forwards a day-selection payload to an opaque upstream scoring
// endpoint. Upstream failures never propagate: any error degrades to the
// deterministic no-clear-pattern result, still a success to the caller.
type Analyzer struct {
	upstreamURL string
	client      *http.Client
	logger      *log.Logger
}

func NewAnalyzer(upstreamURL string, logger *log.Logger) *Analyzer {
	return &Analyzer{
		upstreamURL: upstreamURL,
		client:      &http.Client{Timeout: 20 * time.Second},
		logger:      logger,
	}
}

func (a *Analyzer) Enabled() bool { return a.upstreamURL != "" }

func (a *Analyzer) Analyze(ctx context.Context, payload json.RawMessage) Result {
	if !a.Enabled() {
		return fallbackResult()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.upstreamURL, bytes.NewReader(payload))
	if err != nil {
		a.logger.Printf("patterns: build request: %v", err)
		return fallbackResult()
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Printf("patterns: upstream call: %v", err)
		return fallbackResult()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		a.logger.Printf("patterns: upstream status %d", resp.StatusCode)
		return fallbackResult()
	}

	var body struct {
		Insights []Insight `json:"insights"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || len(body.Insights) == 0 {
		a.logger.Printf("patterns: upstream decode: %v", err)
		return fallbackResult()
	}

	return Result{Insights: body.Insights, GeneratedAt: time.Now().UTC()}
}

func fallbackResult() Result {
	return Result{
		Insights: []Insight{
			{
				Title:      "No clear pattern",
				Detail:     "Not enough signal in the selected days to call a pattern. Keep syncing; comparisons get sharper with more days of data.",
				Confidence: 0,
			},
		},
		Fallback:    true,
		GeneratedAt: time.Now().UTC(),
	}
}
