package api

import (
	"github.com/maksimkurb/keen-netstate/src/internal/reconcile"
)

// DataResponse wraps successful responses with a "data" field.
type DataResponse struct {
	Data interface{} `json:"data"`
}

// PlanResponse describes a computed plan.
type PlanResponse struct {
	Empty   bool   `json:"empty"`
	Summary string `json:"summary"`
	// Rendered is the plan rendered with the configured plan template.
	Rendered string          `json:"rendered"`
	Plan     *reconcile.Plan `json:"plan"`
}

// ApplyResponse describes a finished apply.
type ApplyResponse struct {
	PlanResponse
	DryRun     bool   `json:"dry_run"`
	Applied    bool   `json:"applied"`
	Checkpoint string `json:"checkpoint,omitempty"`
	Attempts   int    `json:"attempts"`
	Verified   bool   `json:"verified"`
}

// VerifyResponse is returned when the current state satisfies the desired state.
type VerifyResponse struct {
	Verified bool `json:"verified"`
}

// HealthCheckResponse returns health check results.
type HealthCheckResponse struct {
	Healthy bool                   `json:"healthy"`
	Checks  map[string]CheckResult `json:"checks"`
}

// CheckResult contains the result of a single health check.
type CheckResult struct {
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
}
