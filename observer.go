package nyx

import "errors"

// ErrObserverFull is returned by a ChanObserver whose channel cannot accept another estimate.
var ErrObserverFull = errors.New("observer channel is full")

// Observer is notified of each estimate accepted by an OD process. Notify must not block, and a
// returned error only leads to a warning.
type Observer interface {
	Notify(est *Estimate) error
}

// ChanObserver sends the estimates on a buffered channel, dropping them when it is full.
type ChanObserver struct {
	C chan *Estimate
}

// NewChanObserver returns a new ChanObserver with a channel of the provided capacity.
func NewChanObserver(size int) *ChanObserver {
	return &ChanObserver{make(chan *Estimate, size)}
}

// Notify implements the Observer interface.
func (o *ChanObserver) Notify(est *Estimate) error {
	select {
	case o.C <- est:
		return nil
	default:
		return ErrObserverFull
	}
}

// Close closes the channel, signaling the end of the estimates to the receiver.
func (o *ChanObserver) Close() {
	close(o.C)
}
