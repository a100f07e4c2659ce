package controller

// TurnLock serializes committed actions against their consequences. It is set
// when a mutation is committed and cleared by the game loop once the turn flip
// and outcome of that mutation have been published. Only the loop goroutine
// touches it.
type TurnLock struct {
	locked bool
}

// Acquire sets the lock. It returns false if it was already held.
func (l *TurnLock) Acquire() bool {
	if l.locked {
		return false
	}
	l.locked = true
	return true
}

func (l *TurnLock) Release() { l.locked = false }

func (l *TurnLock) Locked() bool { return l.locked }
