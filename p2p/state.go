package p2p

import "fmt"

// State is the progress of one served request.
type State uint8

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateResolved
	StateAuthorized
	StateFramed
	StateTransferring
	StateCompleted
	StateCancelled
	StateFailed
)

var stateNames = [...]string{
	StateUnauthenticated: "unauthenticated",
	StateAuthenticated:   "authenticated",
	StateResolved:        "resolved",
	StateAuthorized:      "authorized",
	StateFramed:          "framed",
	StateTransferring:    "transferring",
	StateCompleted:       "completed",
	StateCancelled:       "cancelled",
	StateFailed:          "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", s)
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s >= StateCompleted
}
