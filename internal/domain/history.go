package domain

import "time"

// HistoryRecord captures one generation cycle and any execution that followed.
type HistoryRecord struct {
	ID              string         `json:"id"`
	SessionID       string         `json:"session_id"`
	Timestamp       time.Time      `json:"timestamp"`
	Prompt          string         `json:"prompt"`
	Command         string         `json:"command"`
	Backend         string         `json:"backend"`
	RiskLevel       RiskLevel      `json:"risk_level"`
	Refinements     int            `json:"refinements"`
	Executed        bool           `json:"executed"`
	ExecutionState  ExecutionState `json:"execution_state,omitempty"`
	ExitCode        int            `json:"exit_code"`
	ExecutionTimeMS int64          `json:"execution_time_ms"`
}
