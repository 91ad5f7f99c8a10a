package controller

import (
	"sync"
	"time"
)

// State is the loading state of one lane.
type State int

const (
	Idle State = iota
	Loading
	Loaded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Lane names one of the two independent fetch pipelines.
type Lane string

const (
	LaneMint Lane = "mint"
	LaneBurn Lane = "burn"
)

// LaneSnapshot is a point-in-time copy of a lane. Records are shared and must not be modified.
type LaneSnapshot[T any] struct {
	State      State
	Records    []T
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

type lane[T any] struct {
	name Lane
	mu   sync.RWMutex
	snap LaneSnapshot[T]
}

func newLane[T any](name Lane) *lane[T] {
	return &lane[T]{name: name}
}

func (l *lane[T]) start(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snap = LaneSnapshot[T]{State: Loading, StartedAt: now}
}

func (l *lane[T]) load(records []T, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if records == nil {
		records = []T{}
	}
	l.snap.State = Loaded
	l.snap.Records = records
	l.snap.Err = nil
	l.snap.FinishedAt = now
}

func (l *lane[T]) fail(err error, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snap.State = Failed
	l.snap.Records = nil
	l.snap.Err = err
	l.snap.FinishedAt = now
}

func (l *lane[T]) snapshot() LaneSnapshot[T] {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap
}
