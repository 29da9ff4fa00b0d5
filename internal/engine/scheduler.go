package engine

import "time"

// CancelFunc stops a pending callback. Safe to call more than once.
type CancelFunc func()

// Scheduler is the single timer abstraction the engine uses. The
// production implementation routes fired callbacks back into the hub
// event loop so they run serialized with everything else; tests
// substitute a manual clock.
type Scheduler interface {
	After(d time.Duration, fn func()) CancelFunc
}

// LoopScheduler wraps time.AfterFunc and re-enters the dispatch loop
// through post.
type LoopScheduler struct {
	post func(func())
}

func NewLoopScheduler(post func(func())) *LoopScheduler {
	return &LoopScheduler{post: post}
}

func (s *LoopScheduler) After(d time.Duration, fn func()) CancelFunc {
	t := time.AfterFunc(d, func() { s.post(fn) })
	return func() { t.Stop() }
}
