// Package qc is the due-date scheduling and compliance engine.
//
// Data flow:
//
//	worksheets + machines -> Generate (per worksheet) -> due-dates
//	due-dates + merged completions -> Classify -> tasks
//	tasks -> Aggregator -> per-frequency buckets for dashboards and calendars
//
// Everything here is synchronous and deterministic for a given directory,
// completion evidence and "today". There are no timers or background work.
package qc
