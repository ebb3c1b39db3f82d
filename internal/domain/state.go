package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// State is the moderation state of a contact message.
type State int

const (
	StateDeleted State = -1
	StateReplied State = 1
	StatePending State = 2
)

// States lists the valid states in the order moderators see them.
var States = []State{StatePending, StateReplied, StateDeleted}

// Valid reports whether s is one of the three moderation states.
func (s State) Valid() bool {
	switch s {
	case StateDeleted, StateReplied, StatePending:
		return true
	}
	return false
}

func (s State) String() string {
	switch s {
	case StateDeleted:
		return "Deleted"
	case StateReplied:
		return "Replied"
	case StatePending:
		return "Pending"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ParseState parses the numeric form used in query strings and JSON ("-1", "1", "2").
func ParseState(raw string) (State, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid state %q", raw)
	}
	s := State(n)
	if !s.Valid() {
		return 0, fmt.Errorf("invalid state %q", raw)
	}
	return s, nil
}

// ParseStateFilter parses an optional listing filter. An empty value means no filter.
func ParseStateFilter(raw string) (*State, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	s, err := ParseState(raw)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
