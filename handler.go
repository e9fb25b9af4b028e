package evreactor

// EventHandler is implemented by everything registered with a Reactor.
//
// GetHandle must return the same valid Handle for as long as the handler is
// registered. Handlers are compared by identity, so implementations should be
// pointer types; a handler whose type cannot be compared with == is rejected
// with ErrUncomparableHandler.
type EventHandler interface {
	GetHandle() Handle

	// HandleRead is called when the handle is readable: a pending connection
	// for a listener, data or EOF for a connection. Readiness is level-triggered,
	// so a handler that stops on EAGAIN is notified again on the next cycle.
	HandleRead()

	// HandleWrite is called when the handle is writable and write interest is
	// registered. Write interest stays armed until the handler re-registers.
	HandleWrite()

	// HandleError is called on error or hangup, regardless of interest. It is
	// the place to RemoveHandler and release the descriptor.
	HandleError()
}
