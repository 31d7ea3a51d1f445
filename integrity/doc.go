// Package integrity scans the face link table for a fixed catalog of
// invariant violations, assembles them into a report, and applies guarded,
// batched repairs.
//
// Every repair re-derives its offending rows instead of trusting an earlier
// report, and qualifies each write with the violation predicate itself. A row
// that was already repaired no longer matches, so repairs are idempotent and
// re-running a full audit and repair cycle is the recovery procedure after a
// partial failure. Nothing is rolled back.
package integrity
