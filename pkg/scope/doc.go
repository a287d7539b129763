// Package scope computes the effective store scope of a request.
//
// Given a principal and an optional caller-supplied store id, ResolveContext
// applies a per-role state machine:
//
//	manager  - always the manager's own store; a requested id is ignored,
//	           so a manager can never widen their own scope
//	owner    - no id: tenant overview (or a validation failure when the
//	           route requires one store); with an id: the live store must
//	           exist, be active and belong to the owner's tenant
//	seller   - their own store, only on routes that opt into seller access
//	api key  - delegates the requested store to the key scope guard, so
//	           allow-list enforcement is never duplicated here
//
// Owner lookups degrade deliberately: in optional mode, a store id that is
// missing, inactive or foreign falls back to the tenant overview without
// distinguishing the cases to the caller; in required mode the external
// error is a uniform NotFound so that which stores exist never leaks. The
// internal distinction survives only in logs.
//
// Every successful resolution re-validates against the live store record.
// Cached or stale views of store data are never trusted for this check.
package scope
