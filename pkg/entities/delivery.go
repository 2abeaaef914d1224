package entities

import (
	"encoding/json"
	"time"
)

type DeliveryRequest struct {
	// Destination is a chat id or a @channel name
	Destination string

	// Kind is the concrete media kind used to pick the send operation
	Kind MediaKind

	Path    string
	Caption string

	// Timeout bounds the whole upload
	Timeout time.Duration
}

// FileLocation is a resolved remote file
type FileLocation struct {
	RemotePath string
	UniqueID   string
}

// Cursor is the id of the last processed update, it is tracked by the caller
type Cursor int

// Offset returns getUpdates offset for the next poll, 0 means "from the beginning"
func (c Cursor) Offset() int {
	if c > 0 {
		return int(c) + 1
	}
	return 0
}

// Updates holds pending updates exactly as received from the API
type Updates []json.RawMessage

// Command is a bot command shown in the chat menu
type Command struct {
	Name        string
	Description string
}
