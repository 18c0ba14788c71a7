// Package domain defines the core types of the KPI rollup engine.
//
// Types in this package are value objects: daily measurements, weekly and
// monthly summaries, trend reports and the small closed enums that describe
// them (aggregation method, status, trend direction). They are the shared
// language between the rollup engines, the orchestrator, repositories and
// the HTTP layer.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - JSON/DB tags are allowed (they're metadata, not behavior)
//   - Pure calculation helpers are allowed (aggregation, banding, periods)
package domain
