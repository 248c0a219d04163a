// Package audit records who changed what on the classroom controller.
//
// Every published control message and every rule change is written to the
// audit_log table so that operators can review the activity trail through
// the API. Recording is best effort: callers log a failed write and carry on,
// the action itself has already happened.
//
// The acting operator travels in the request context (see WithActor). The
// scheduler has no operator, so its entries carry only a source.
package audit
