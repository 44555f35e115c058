// Package proposta is the backend for a commercial proposal workspace:
// clients, a service catalog, proposal pricing, and the authentication
// orchestration that gates access to all of it.
//
// Auth orchestration:
//   - Orchestrator is the single source of truth for the current session. It
//     talks to an IdentityProvider for credentials and to the Profiles
//     repository for roles, and caches exactly one Session that is replaced,
//     never merged.
//   - The first profile ever created becomes an auto-approved admin; every
//     later signup lands unapproved and is signed out until an administrator
//     approves it. Sign-in enforces the same gate.
//   - Role checks always refetch the profile row and fail closed to
//     non-admin, so demotions and deletions take effect immediately.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by the orchestrator
//     and the admin command handlers to describe login, signup, approval, and
//     password reset events. Sinks run best-effort (errors are logged) so you
//     can forward to a database or queue without blocking authentication.
//
// Commands:
//   - Admin mutations (approve, delete, seed) and password resets are modeled
//     as message plus handler pairs that run inside repository transactions.
package proposta
