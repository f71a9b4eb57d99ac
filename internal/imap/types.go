package imap

import (
	"fmt"
	"time"

	"github.com/mokrane09/amefis-mail-gateway/internal/models"
)

// Capabilities are the server capability flags the sync engine gates on.
// They are probed once after login and never re-probed mid-session.
type Capabilities struct {
	Idle      bool `json:"idle"`
	Move      bool `json:"move"`
	CondStore bool `json:"condstore"`
	QResync   bool `json:"qresync"`
}

// Credentials hold everything needed to open one authenticated connection.
type Credentials struct {
	Host     string
	Port     int
	TLS      bool
	Email    string
	Password string
}

// Address returns the host:port dial target.
func (c Credentials) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// FolderStatus is the watermark snapshot returned by a folder select.
// HighestModSeq is zero when the server does not support CONDSTORE.
type FolderStatus struct {
	Path          string
	UIDValidity   int64
	UIDNext       int64
	Exists        uint32
	HighestModSeq int64
}

// FolderInfo describes one remote folder from a LIST response.
type FolderInfo struct {
	Name       string
	Path       string
	SpecialUse string
	Delim      rune
}

// Address is one parsed envelope address.
type Address struct {
	Name  string
	Email string
}

// Envelope carries the header fields the cache records.
type Envelope struct {
	MessageID string
	InReplyTo []string
	Subject   string
	Date      time.Time
	From      []Address
	To        []Address
	Cc        []Address
	Bcc       []Address
}

// RawMessage is one fetched message handle: envelope, normalized flags,
// size and UID. The body is downloaded separately via FetchSource.
type RawMessage struct {
	UID      int64
	Flags    models.FlagSet
	Envelope Envelope
	Size     int64
}

// EventType identifies a push notification delivered by the watch loop.
type EventType string

const (
	// EventExists signals a change in the number of messages in the
	// watched folder (usually a new arrival).
	EventExists EventType = "exists"
	// EventExpunge signals a message removal.
	EventExpunge EventType = "expunge"
	// EventFlagsChanged signals a flag mutation on an existing message.
	EventFlagsChanged EventType = "flagsChanged"
)

// Event is one push notification from the watch loop.
type Event struct {
	Type EventType
	// Count is the new message count for EventExists.
	Count uint32
	// SeqNum is the expunged sequence number for EventExpunge.
	SeqNum uint32
	// UID and Flags are set for EventFlagsChanged when the server
	// included them in the unsolicited FETCH response.
	UID   int64
	Flags models.FlagSet
}
