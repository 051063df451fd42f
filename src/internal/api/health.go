package api

import (
	"net/http"
)

// CheckHealth reports whether the current state can be read and the
// configured desired state loads.
// GET /api/v1/health
func (h *Handler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthCheckResponse{
		Healthy: true,
		Checks:  make(map[string]CheckResult),
	}

	if _, err := h.reconciler.CurrentState(r.Context()); err != nil {
		response.Healthy = false
		response.Checks["state_provider"] = CheckResult{
			Passed:  false,
			Message: "Failed to read current state: " + err.Error(),
		}
	} else {
		response.Checks["state_provider"] = CheckResult{
			Passed:  true,
			Message: "Current state is readable",
		}
	}

	if h.desired == nil {
		response.Checks["desired_state"] = CheckResult{
			Passed:  true,
			Message: "No desired state file configured",
		}
	} else if _, err := h.desired(); err != nil {
		response.Healthy = false
		response.Checks["desired_state"] = CheckResult{
			Passed:  false,
			Message: "Desired state is invalid: " + err.Error(),
		}
	} else {
		response.Checks["desired_state"] = CheckResult{
			Passed:  true,
			Message: "Desired state is valid",
		}
	}

	writeJSONData(w, response)
}
