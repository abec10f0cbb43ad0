// Package model defines the data structures persisted and served by the API.
package model

import "time"

// Execution statuses as stored in the history table.
const (
	StatusSuccess = "success" // snippet ran to completion
	StatusFailure = "failure" // snippet raised; failure returned as data
	StatusError   = "error"   // infrastructure failure, no outcome
)

// Execution is one recorded snippet execution.
type Execution struct {
	ID             string    `json:"id"`
	Code           string    `json:"code"`
	Status         string    `json:"status"`
	Stdout         string    `json:"stdout"`
	Stderr         string    `json:"stderr"`
	Error          string    `json:"error,omitempty"`
	ExecutionCount int       `json:"executionCount"`
	DurationMS     int64     `json:"durationMs"`
	CreatedAt      time.Time `json:"createdAt"`
}
