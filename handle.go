package eepromfs

import "github.com/mirosta/eepromfs/layout"

// Access is a handle's current mode in the per-handle state machine.
type Access int

const (
	AccessClosed Access = iota
	AccessRead
	AccessWrite
)

func (a Access) String() string {
	switch a {
	case AccessClosed:
		return "closed"
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	default:
		return "unknown"
	}
}

// handleState is the volatile per-file state: access mode, byte position
// within the chain, and the block currently under the cursor.
type handleState struct {
	access       Access
	position     int
	currentBlock int
}

func freshHandle() handleState {
	return handleState{access: AccessClosed, position: 0, currentBlock: layout.NullBlock}
}
