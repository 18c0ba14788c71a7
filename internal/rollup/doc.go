// Package rollup implements the weekly and monthly KPI rollup engines.
//
// The engines read the daily ledger (and, for months, existing weekly
// summaries), aggregate values with the metric's aggregation method, score
// the result against an optional plan, link the summary to its predecessor
// periods and upsert it. Every write replaces the full summary row, so a
// rollup may be re-run at any time after corrections to the ledger.
//
// Collaborator contracts live in repository.go. Implementations live in
// repository/postgres/ and repository/memory/.
package rollup
