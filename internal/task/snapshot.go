// Package task defines the snapshot shape the alert scheduler consumes.
//
// A snapshot is the minimal projection of a task record: callers map their
// richer task model down to it on every list refresh. The scheduler never
// mutates snapshots, it only derives arm/cancel decisions from them.
package task

import "time"

// Snapshot is an immutable view of one task at fetch time.
//
// DueAt == nil means "no due date"; such tasks are never armed.
type Snapshot struct {
	ID        string
	Title     string
	DueAt     *time.Time
	Completed bool
}
