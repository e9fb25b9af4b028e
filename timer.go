package evreactor

import (
	"time"

	"github.com/dreamans/evreactor/timer"
)

type Clock interface {
	Now() time.Time
}

// TimerID identifies a registered timer task. Zero is never a valid identity.
type TimerID uint64

// TimerTask describes a one-shot callback that runs Delay after it is
// registered. Data is handed to Callback untouched. A task may be registered
// again, from its own callback or elsewhere, to repeat.
type TimerTask struct {
	Delay    time.Duration
	Callback timer.Func
	Data     interface{}
}

func NewTimerTask(delay time.Duration, cb timer.Func, data interface{}) *TimerTask {
	return &TimerTask{
		Delay:    delay,
		Callback: cb,
		Data:     data,
	}
}
