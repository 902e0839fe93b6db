// Package person implements the person registry service and its name
// uniqueness guard.
//
// Names are unique case-insensitively. Every write path that decides based on
// whether a name exists calls EnsureUniqueName inside the transaction that
// persists the person; EnsureUniqueName holds a transaction-scoped advisory
// lock for the name until that transaction ends. IsNameTaken is advisory
// only and must not be used to decide a write.
//
// The service depends on the interfaces in repository.go and never imports
// net/http or database/sql directly.
package person
