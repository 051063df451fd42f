// Package api provides the HTTP API of the reconciliation service.
//
// The API exposes the reconcile service over HTTP:
//   - GET  /api/v1/state   current state (?format=yaml for YAML)
//   - POST /api/v1/plan    plan for a desired state
//   - POST /api/v1/apply   apply a desired state (?dry_run=true, ?no_verify=true)
//   - POST /api/v1/verify  verify the current state against a desired state
//   - GET  /api/v1/health  health checks
//   - GET  /metrics        Prometheus metrics
//
// POST endpoints take a desired state document (YAML or JSON) as the request
// body. An empty body means the desired state file of the configuration.
//
// # Response Format
//
// All successful responses wrap data in a "data" field:
//
//	{
//	  "data": { /* response payload */ }
//	}
//
// Error responses use the following format:
//
//	{
//	  "error": {
//	    "code": "VerificationError",
//	    "message": "Human-readable error message"
//	  }
//	}
//
// The HTTP status follows the error kind: 400 for invalid arguments, 409 for
// failed verification, 501 for unsupported operations, 504 for timeouts and
// 500 otherwise.
package api
