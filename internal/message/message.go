package message

// This file provides the common data objects used by the rest of the
// program.

// ID defines the properties that uniquely identify a message in a
// remote mail service.
type ID struct {
	// The permanent and unique ID of a message in a storage
	// system.  For GMail this is the Users.messages "id" field;
	// for IMAP it is the message UID in decimal.
	PermID string

	// The permanent and unique ID of a thread associated with the
	// message.  May be empty in storage systems that do not
	// support this concept.
	ThreadID string

	// The folder (IMAP mailbox, GMail label) the message was
	// listed from.
	Mailbox string
}

func (id ID) String() string {
	return id.PermID
}

// HeaderField is a single message header as delivered by the remote
// service.
type HeaderField struct {
	Name  string
	Value string
}

// Raw is the payload fetched for one message: its headers and a short
// plain text excerpt of the body.
type Raw struct {
	ID

	Headers []HeaderField

	// A short plain text excerpt of the body, supplied by the
	// remote service instead of the full body.
	Snippet string
}

// Record is the normalized form of a message.  A nil field means the
// corresponding header was absent.
//
// MessageID and Date are folded into the stored file's name and are
// never serialized.
type Record struct {
	To      *string `json:"To,omitempty"`
	From    *string `json:"From,omitempty"`
	Subject *string `json:"Subject,omitempty"`
	Body    string  `json:"Body"`

	MessageID *string `json:"-"`
	Date      *string `json:"-"`

	// The remote message this record was built from.
	Source ID `json:"-"`
}
