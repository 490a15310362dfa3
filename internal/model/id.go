package model

import "github.com/oklog/ulid/v2"

// NewID returns a ULID string. Manager instances and stored lifecycle events are
// keyed by these so that records sort by creation time.
func NewID() string {
	return ulid.Make().String()
}
