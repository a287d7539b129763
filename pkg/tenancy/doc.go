// Package tenancy defines the ownership hierarchy of the Crewdeck platform.
//
// The hierarchy has four levels: a Tenant (the owner account) owns one or
// more Stores, a Store employs StaffMembers (managers and sellers), and
// business resources hang off a Store or a StaffMember. API keys are
// machine credentials bound to a single Tenant.
//
// The package holds data definitions and their relational invariants only.
// All interpretation of credentials and all scope resolution lives in the
// principal, scope, ownership and keyguard packages, which consume these
// types. Two derived types cross package boundaries constantly:
//
//	Principal       - the normalized "who is asking" record
//	ResolvedContext - the effective store scope of the current request
//
// ResolvedContext is the only value downstream business logic is permitted
// to filter queries on. Stored linkage fields on business entities are a
// performance hint, never an authorization fact.
package tenancy
