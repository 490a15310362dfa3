// Package engine supervises one analysis engine process and provides a typed,
// asynchronous request/response channel to it.
//
// A Manager binds a transport address, launches the engine with that address on
// its command line, and runs a receive loop on its own goroutine. Requests are
// tagged with a correlation id; each inbound response is matched to the request
// that caused it and handed to the registered results listeners together with a
// completion flag. When the engine process exits the loop closes the transport,
// emits a single "terminated" event to the engine listeners, and stops. A
// Manager is single-use: once stopped it cannot be started again.
package engine
