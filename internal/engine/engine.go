package engine

import (
	"time"

	"fishka_server/internal/domain"
	"fishka_server/internal/game"
)

// Engine wraps the opaque state of one running match. All fields are
// mutated only from the hub goroutine.
type Engine struct {
	code      string
	gameID    string
	plugin    game.Plugin
	state     game.State
	startedAt time.Time

	// single-slot timer: arming a new one always cancels the old
	timer      *timerSlot
	pauseTimer CancelFunc
	pause      *domain.PauseRecord

	finished bool
}

type timerSlot struct {
	key    string
	cancel CancelFunc
}

func (e *Engine) Code() string                { return e.code }
func (e *Engine) GameID() string              { return e.gameID }
func (e *Engine) State() game.State           { return e.state }
func (e *Engine) Finished() bool              { return e.finished }
func (e *Engine) Paused() bool                { return e.pause != nil }
func (e *Engine) PauseInfo() *domain.PauseRecord { return e.pause }

func (e *Engine) cancelTimer() {
	if e.timer != nil {
		e.timer.cancel()
		e.timer = nil
	}
}

func (e *Engine) cancelPauseTimer() {
	if e.pauseTimer != nil {
		e.pauseTimer()
		e.pauseTimer = nil
	}
}
