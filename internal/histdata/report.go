package histdata

import (
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusPartial Status = "PARTIAL"
	StatusFailed  Status = "FAILED"
)

type Source string

const (
	SourceCache    Source = "CACHE"
	SourceTerminal Source = "LIVE_TERMINAL"
	SourceProvider Source = "PUBLIC_PROVIDER"
	SourceNone     Source = "NONE"
)

// SourceError records one source's failure during acquisition.
type SourceError struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}

// Report is the audit record of one acquisition. It is immutable once the
// fetch returns and is persisted per build attempt.
type Report struct {
	Status      Status        `json:"status"`
	Source      Source        `json:"data_source"`
	CandleCount int           `json:"candle_count"`
	StartTime   *time.Time    `json:"start_date,omitempty"`
	EndTime     *time.Time    `json:"end_date,omitempty"`
	Errors      []SourceError `json:"errors"`
	Warnings    []string      `json:"warnings"`
}

// AllSourcesExhausted is returned when every source in the fallback chain
// failed. It carries per-source diagnostics so callers can render them
// individually.
type AllSourcesExhausted struct {
	Symbol  string
	Errors  []SourceError
	Actions []string
}

func (e *AllSourcesExhausted) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, se := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", se.Source, se.Message))
	}
	return fmt.Sprintf("all data sources exhausted for %s [%s]", e.Symbol, strings.Join(parts, "; "))
}

// remediationActions is surfaced with every exhaustion failure.
var remediationActions = []string{
	"Ensure the terminal is logged in",
	"Check the symbol exists on the account",
	"Verify network connectivity for the public provider fallback",
}
