package enricher

import "fmt"

// State is an enricher's lifecycle state. Transitions are monotonic.
type State int32

const (
	StateCreated State = iota
	StateInitialized
	StateSubscribed
	StateDestroyed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitialized:
		return "initialized"
	case StateSubscribed:
		return "subscribed"
	case StateDestroyed:
		return "destroyed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}
