// Package services holds the application layer between the pipeline and the
// HTTP surface.
//
// AgendaService owns the most recent pipeline Result. Refreshes are collapsed
// through a singleflight group keyed by the agenda path, so concurrent callers
// share one run and at most one run executes per file. Every completed run is
// recorded in the run history and announced to websocket clients as an
// agenda.updated event carrying counts only.
//
// Read methods (Insights, Series, Appointments, Charts) return the stored
// Result's data. When the latest run failed they return its classified error
// instead of stale data, so callers can render an error state.
//
// HealthService reports liveness, readiness and version information.
package services
