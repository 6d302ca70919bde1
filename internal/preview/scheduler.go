// internal/preview/scheduler.go
package preview

import "time"

// Task is a scheduled callback that can be superseded before it runs.
type Task interface {
	// Stop prevents the callback from running. Returns false if it already
	// ran or was stopped.
	Stop() bool
}

// Scheduler runs fn once after d on its own goroutine.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Task
}

// clockScheduler schedules with time.AfterFunc.
type clockScheduler struct{}

func (clockScheduler) AfterFunc(d time.Duration, fn func()) Task {
	return time.AfterFunc(d, fn)
}

// SystemScheduler is the wall-clock Scheduler.
var SystemScheduler Scheduler = clockScheduler{}
