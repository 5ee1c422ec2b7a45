// Package preflight provides readiness checks for the filesystem paths and
// external services callsight depends on.
//
// `callsight doctor` prints every result, and callsightd logs a snapshot at
// startup. Checks are gated by configuration: the sidecar is only probed when
// it is the selected diarization backend, and the history directory only when
// history is enabled.
package preflight
