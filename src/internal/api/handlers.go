package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/maksimkurb/keen-netstate/src/internal/errors"
	"github.com/maksimkurb/keen-netstate/src/internal/hashing"
	"github.com/maksimkurb/keen-netstate/src/internal/log"
	"github.com/maksimkurb/keen-netstate/src/internal/metrics"
	"github.com/maksimkurb/keen-netstate/src/internal/reconcile"
	"github.com/maksimkurb/keen-netstate/src/internal/service"
	"github.com/maksimkurb/keen-netstate/src/internal/state"
)

// maxDocumentSize bounds desired state documents in request bodies.
const maxDocumentSize = 4 << 20

// Reconciler is the part of service.ReconcileService the API uses.
type Reconciler interface {
	CurrentState(ctx context.Context) (*state.NetworkState, error)
	Plan(ctx context.Context, desired *state.NetworkState) (*reconcile.Plan, error)
	Apply(ctx context.Context, desired *state.NetworkState, opts service.ApplyOptions) (*service.ApplyResult, error)
	Verify(ctx context.Context, desired *state.NetworkState) error
}

// DesiredSource loads the configured desired state.
type DesiredSource func() (*state.NetworkState, error)

// Options configures the API handlers.
type Options struct {
	// Reconciler serves every endpoint. Required.
	Reconciler Reconciler
	// Desired is used by POST endpoints called with an empty body. When nil
	// such requests are rejected.
	Desired DesiredSource
	// PlanTemplate renders plans; empty means the default template.
	PlanTemplate string
	// Metrics is served on /metrics when not nil.
	Metrics *metrics.Recorder
	// Logger receives request logs. Nil discards them.
	Logger *log.Logger
}

// Handler manages all API endpoints and dependencies.
type Handler struct {
	reconciler   Reconciler
	desired      DesiredSource
	planTemplate string
	validator    *service.ValidationService
	log          *log.Logger
}

// NewHandler creates a new API handler.
func NewHandler(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	return &Handler{
		reconciler:   opts.Reconciler,
		desired:      opts.Desired,
		planTemplate: opts.PlanTemplate,
		validator:    service.NewValidationService(),
		log:          logger,
	}
}

// GetState returns the current network state.
// GET /api/v1/state
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	current, err := h.reconciler.CurrentState(r.Context())
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	switch r.URL.Query().Get("format") {
	case "", "json":
		writeJSONData(w, current)
	case "yaml":
		out, err := current.ToYAML()
		if err != nil {
			WriteInternalError(w, "Failed to render state: "+err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		w.Write(out)
	default:
		WriteInvalidRequest(w, "format must be json or yaml")
	}
}

// PostPlan computes the plan for the desired state in the request body.
// POST /api/v1/plan
func (h *Handler) PostPlan(w http.ResponseWriter, r *http.Request) {
	desired, ok := h.readDesired(w, r)
	if !ok {
		return
	}
	plan, err := h.reconciler.Plan(r.Context(), desired)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	writeJSONData(w, h.planResponse(plan))
}

// PostApply applies the desired state in the request body.
// POST /api/v1/apply?dry_run=true&no_verify=true
func (h *Handler) PostApply(w http.ResponseWriter, r *http.Request) {
	var opts service.ApplyOptions
	var err error
	if opts.DryRun, err = queryBool(r, "dry_run"); err != nil {
		WriteInvalidRequest(w, err.Error())
		return
	}
	if opts.NoVerify, err = queryBool(r, "no_verify"); err != nil {
		WriteInvalidRequest(w, err.Error())
		return
	}

	desired, ok := h.readDesired(w, r)
	if !ok {
		return
	}
	result, err := h.reconciler.Apply(r.Context(), desired, opts)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	writeJSONData(w, ApplyResponse{
		PlanResponse: h.planResponse(result.Plan),
		DryRun:       opts.DryRun,
		Applied:      result.Applied,
		Checkpoint:   result.Checkpoint,
		Attempts:     result.Attempts,
		Verified:     result.Verified,
	})
}

// PostVerify checks the current state against the desired state in the
// request body. A mismatch is reported as 409 Conflict.
// POST /api/v1/verify
func (h *Handler) PostVerify(w http.ResponseWriter, r *http.Request) {
	desired, ok := h.readDesired(w, r)
	if !ok {
		return
	}
	if err := h.reconciler.Verify(r.Context(), desired); err != nil {
		WriteDomainError(w, err)
		return
	}
	writeJSONData(w, VerifyResponse{Verified: true})
}

func (h *Handler) planResponse(plan *reconcile.Plan) PlanResponse {
	return PlanResponse{
		Empty:    plan.Empty(),
		Summary:  plan.Summary(),
		Rendered: service.RenderPlan(plan, h.planTemplate),
		Plan:     plan,
	}
}

// readDesired decodes the request body, or loads the configured desired
// state when the body is empty. It writes the error response itself.
func (h *Handler) readDesired(w http.ResponseWriter, r *http.Request) (*state.NetworkState, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentSize))
	if err != nil {
		WriteInvalidRequest(w, "Failed to read request body: "+err.Error())
		return nil, false
	}

	var desired *state.NetworkState
	if len(body) == 0 {
		if h.desired == nil {
			WriteInvalidRequest(w, "Request body is empty and no desired state file is configured")
			return nil, false
		}
		desired, err = h.desired()
	} else {
		h.log.Debugf("Received desired state document %s (%d bytes)", hashing.DocumentChecksum(body), len(body))
		desired, err = h.validator.ParseDesiredState(body)
	}
	if err != nil {
		WriteDomainError(w, err)
		return nil, false
	}
	return desired, true
}

func queryBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.NewInvalidArgument("%s must be a boolean, got %q", name, raw)
	}
	return v, nil
}

// writeJSON writes a JSON response with the given status code and data.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(DataResponse{Data: data})
}

// writeJSONData writes a successful JSON response with data.
func writeJSONData(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, data)
}
