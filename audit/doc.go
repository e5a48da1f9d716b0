// Package audit records the lifecycle of pipeline runs: start and
// completion of runs and stages, plus every error and warning diagnostic.
// Persistence goes through the TrackingRepository interface; the badger
// subpackage provides the embedded implementation.
//
// Auditing is always best effort. A nil Logger or a failing repository
// never affects pipeline execution.
package audit
