// Package summary builds the cross-stage summary table emitted at the end of
// every call analysis session.
//
// The table has a fixed row set and two canonical speaker columns. Absent
// inputs render as "N/A" inside the row's template, so construction never
// fails regardless of which stages ran.
package summary
