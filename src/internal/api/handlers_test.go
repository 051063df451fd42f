package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/maksimkurb/keen-netstate/src/internal/errors"
	"github.com/maksimkurb/keen-netstate/src/internal/metrics"
	"github.com/maksimkurb/keen-netstate/src/internal/reconcile"
	"github.com/maksimkurb/keen-netstate/src/internal/service"
	"github.com/maksimkurb/keen-netstate/src/internal/state"
)

const dummyDoc = `
interfaces:
  - name: dummy0
    type: dummy
    state: up
`

// fakeReconciler records the desired states it receives.
type fakeReconciler struct {
	current   *state.NetworkState
	err       error
	desired   []*state.NetworkState
	applyOpts []service.ApplyOptions
}

func (f *fakeReconciler) CurrentState(context.Context) (*state.NetworkState, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.current == nil {
		return state.New(), nil
	}
	return f.current, nil
}

func (f *fakeReconciler) Plan(_ context.Context, desired *state.NetworkState) (*reconcile.Plan, error) {
	f.desired = append(f.desired, desired)
	if f.err != nil {
		return nil, f.err
	}
	return &reconcile.Plan{Add: desired.Interfaces.List()}, nil
}

func (f *fakeReconciler) Apply(ctx context.Context, desired *state.NetworkState, opts service.ApplyOptions) (*service.ApplyResult, error) {
	f.applyOpts = append(f.applyOpts, opts)
	plan, err := f.Plan(ctx, desired)
	if err != nil {
		return nil, err
	}
	return &service.ApplyResult{Plan: plan, Applied: !opts.DryRun, Checkpoint: "memory-1", Attempts: 1, Verified: !opts.NoVerify}, nil
}

func (f *fakeReconciler) Verify(_ context.Context, desired *state.NetworkState) error {
	f.desired = append(f.desired, desired)
	return f.err
}

// planView and applyView leave out the plan itself, whose interface list
// cannot be decoded generically.
type planView struct {
	Empty    bool   `json:"empty"`
	Summary  string `json:"summary"`
	Rendered string `json:"rendered"`
}

type applyView struct {
	planView
	DryRun     bool   `json:"dry_run"`
	Applied    bool   `json:"applied"`
	Checkpoint string `json:"checkpoint"`
	Attempts   int    `json:"attempts"`
	Verified   bool   `json:"verified"`
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.RemoteAddr = "127.0.0.1:40000"
	if body != "" {
		req.Header.Set("Content-Type", "application/yaml")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(&DataResponse{Data: v}); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	return resp.Error
}

func TestGetState(t *testing.T) {
	current, err := state.Parse([]byte(dummyDoc))
	if err != nil {
		t.Fatal(err)
	}
	router := NewRouter(Options{Reconciler: &fakeReconciler{current: current}})

	t.Run("JSON", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/v1/state", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
		}
		var got map[string]interface{}
		decodeData(t, rec, &got)
		if _, ok := got["interfaces"]; !ok {
			t.Errorf("Expected interfaces in the state, got %v", got)
		}
	})

	t.Run("YAML", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/v1/state?format=yaml", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/yaml" {
			t.Errorf("Expected application/yaml, got %s", ct)
		}
		if !strings.Contains(rec.Body.String(), "name: dummy0") {
			t.Errorf("Expected dummy0 in YAML output, got:\n%s", rec.Body)
		}
	})

	t.Run("Unknown format", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/v1/state?format=xml", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})
}

func TestPostPlan(t *testing.T) {
	r := &fakeReconciler{}
	router := NewRouter(Options{Reconciler: r, PlanTemplate: "{{op}} {{name}}"})

	rec := do(t, router, http.MethodPost, "/api/v1/plan", dummyDoc)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var got planView
	decodeData(t, rec, &got)
	if got.Empty || got.Rendered != "add dummy0\n" {
		t.Errorf("Unexpected plan response %+v", got)
	}
	if len(r.desired) != 1 || r.desired[0].Interfaces.Lookup("dummy0") == nil {
		t.Error("Expected the request body to reach the reconciler")
	}
}

func TestPostApply(t *testing.T) {
	t.Run("Options from query", func(t *testing.T) {
		r := &fakeReconciler{}
		router := NewRouter(Options{Reconciler: r})

		rec := do(t, router, http.MethodPost, "/api/v1/apply?dry_run=true&no_verify=1", dummyDoc)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
		}
		var got applyView
		decodeData(t, rec, &got)
		if !got.DryRun || got.Applied || got.Verified {
			t.Errorf("Unexpected apply response %+v", got)
		}
		if r.applyOpts[0] != (service.ApplyOptions{DryRun: true, NoVerify: true}) {
			t.Errorf("Unexpected options %+v", r.applyOpts[0])
		}
	})

	t.Run("Invalid query", func(t *testing.T) {
		rec := do(t, NewRouter(Options{Reconciler: &fakeReconciler{}}), http.MethodPost, "/api/v1/apply?dry_run=maybe", dummyDoc)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})

	t.Run("Empty body uses desired state file", func(t *testing.T) {
		r := &fakeReconciler{}
		loaded := 0
		router := NewRouter(Options{Reconciler: r, Desired: func() (*state.NetworkState, error) {
			loaded++
			return state.Parse([]byte(dummyDoc))
		}})

		rec := do(t, router, http.MethodPost, "/api/v1/apply", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
		}
		if loaded != 1 {
			t.Errorf("Expected the desired state file to be loaded once, got %d", loaded)
		}
	})

	t.Run("Empty body without desired state file", func(t *testing.T) {
		rec := do(t, NewRouter(Options{Reconciler: &fakeReconciler{}}), http.MethodPost, "/api/v1/apply", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})
}

func TestDomainErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   ErrorCode
	}{
		{"Invalid argument", errors.NewInvalidArgument("bad"), http.StatusBadRequest, ErrCodeInvalidRequest},
		{"Verification", errors.NewVerificationError("mtu differs"), http.StatusConflict, ErrCodeVerificationFailed},
		{"Not implemented", errors.NewNotImplemented("ovs"), http.StatusNotImplemented, ErrCodeNotImplemented},
		{"Timeout", errors.NewTimeout("settle"), http.StatusGatewayTimeout, ErrCodeTimeout},
		{"Backend", errors.NewBackendError("netlink", nil), http.StatusInternalServerError, ErrCodeBackendError},
		{"Bug", errors.NewBug("oops"), http.StatusInternalServerError, ErrCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(Options{Reconciler: &fakeReconciler{err: tt.err}})

			rec := do(t, router, http.MethodPost, "/api/v1/verify", dummyDoc)
			if rec.Code != tt.status {
				t.Errorf("Expected %d, got %d", tt.status, rec.Code)
			}
			if got := decodeError(t, rec); got.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, got.Code)
			}
		})
	}
}

func TestPostVerify(t *testing.T) {
	rec := do(t, NewRouter(Options{Reconciler: &fakeReconciler{}}), http.MethodPost, "/api/v1/verify", dummyDoc)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var got VerifyResponse
	decodeData(t, rec, &got)
	if !got.Verified {
		t.Error("Expected verified=true")
	}
}

func TestInvalidDocument(t *testing.T) {
	router := NewRouter(Options{Reconciler: &fakeReconciler{}})

	rec := do(t, router, http.MethodPost, "/api/v1/plan", "route-rules:\n  config:\n    - route-table: 500\n")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an invalid document, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/plan", strings.NewReader(dummyDoc))
	req.RemoteAddr = "127.0.0.1:40000"
	req.Header.Set("Content-Type", "text/plain")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for text/plain, got %d", rec.Code)
	}
}

func TestCheckHealth(t *testing.T) {
	t.Run("Healthy", func(t *testing.T) {
		rec := do(t, NewRouter(Options{Reconciler: &fakeReconciler{}}), http.MethodGet, "/api/v1/health", "")
		var got HealthCheckResponse
		decodeData(t, rec, &got)
		if !got.Healthy {
			t.Errorf("Expected healthy, got %+v", got.Checks)
		}
	})

	t.Run("Unhealthy", func(t *testing.T) {
		router := NewRouter(Options{
			Reconciler: &fakeReconciler{err: errors.NewBackendError("netlink", nil)},
			Desired: func() (*state.NetworkState, error) {
				return nil, errors.NewConfigError("missing", nil)
			},
		})
		rec := do(t, router, http.MethodGet, "/api/v1/health", "")
		var got HealthCheckResponse
		decodeData(t, rec, &got)
		if got.Healthy || got.Checks["state_provider"].Passed || got.Checks["desired_state"].Passed {
			t.Errorf("Expected both checks to fail, got %+v", got.Checks)
		}
	})
}

func TestPrivateSubnetOnly(t *testing.T) {
	router := NewRouter(Options{Reconciler: &fakeReconciler{}})

	for addr, want := range map[string]int{
		"127.0.0.1:1000":   http.StatusOK,
		"10.1.2.3:1000":    http.StatusOK,
		"[fd00::1]:1000":   http.StatusOK,
		"198.51.100.7:100": http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("%s: expected %d, got %d", addr, want, rec.Code)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	recorder := metrics.NewRecorder()
	recorder.ObserveOperation(metrics.OperationPlan, nil)
	router := NewRouter(Options{Reconciler: &fakeReconciler{}, Metrics: recorder})

	rec := do(t, router, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "keen_netstate_operations_total") {
		t.Error("Expected operation counters in the metrics output")
	}
}
