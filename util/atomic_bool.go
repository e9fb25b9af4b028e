package util

import "sync/atomic"

// AtomicBool is a flag readable from other goroutines, used for the few reactor
// states that Stop may touch off-loop.
type AtomicBool int32

func (b *AtomicBool) IsSet() bool { return atomic.LoadInt32((*int32)(b)) != 0 }
func (b *AtomicBool) Set()        { atomic.StoreInt32((*int32)(b), 1) }
func (b *AtomicBool) Unset()      { atomic.StoreInt32((*int32)(b), 0) }
