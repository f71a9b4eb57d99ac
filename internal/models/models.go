package models

import "time"

// FlagSet is the canonical representation of the standard IMAP message flags.
// Every raw flag representation coming off the wire is normalized into this
// type at the connection boundary; nothing downstream branches on how the
// server happened to encode flags.
type FlagSet struct {
	Seen     bool `json:"seen"`
	Flagged  bool `json:"flagged"`
	Answered bool `json:"answered"`
	Draft    bool `json:"draft"`
	Deleted  bool `json:"deleted"`
}

// Equal reports whether two flag sets match field by field.
func (f FlagSet) Equal(other FlagSet) bool {
	return f == other
}

// Session mirrors one authenticated mailbox login. The live connection is
// owned by the session registry; this is the durable row.
type Session struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Host       string    `json:"host"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Folder is a cached remote mailbox folder. UIDValidity identifies the UID
// numbering epoch: when the remote value changes, every cached UID in the
// folder is meaningless and the folder must be re-backfilled from scratch.
type Folder struct {
	ID            string `json:"id"`
	SessionID     string `json:"session_id"`
	Name          string `json:"name"`
	Path          string `json:"path"`
	SpecialUse    string `json:"special_use,omitempty"`
	UIDValidity   int64  `json:"uid_validity"`
	UIDNext       int64  `json:"uid_next"`
	HighestModSeq int64  `json:"highest_modseq"`
}

// Message is one cached message. (FolderID, UID) is the natural key and is
// unique for a given UIDVALIDITY epoch.
type Message struct {
	ID             string     `json:"id"`
	SessionID      string     `json:"session_id"`
	FolderID       string     `json:"folder_id"`
	UID            int64      `json:"uid"`
	MsgID          string     `json:"msg_id,omitempty"`
	ThreadKey      string     `json:"thread_key,omitempty"`
	Subject        string     `json:"subject"`
	Date           *time.Time `json:"date"`
	FromName       string     `json:"from_name"`
	FromEmail      string     `json:"from_email"`
	ToList         string     `json:"to_list"`
	CcList         string     `json:"cc_list"`
	BccList        string     `json:"bcc_list"`
	Flags          FlagSet    `json:"flags"`
	HasText        bool       `json:"has_text"`
	HasHTML        bool       `json:"has_html"`
	Snippet        string     `json:"snippet"`
	Size           int64      `json:"size"`
	HasAttachments bool       `json:"has_attachments"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Attachment is one stored attachment part. Path points into the attachment
// byte store; CID links an inline part to its cid: reference in the HTML body.
type Attachment struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
	Filename  string `json:"filename"`
	MimeType  string `json:"mime_type"`
	Size      int64  `json:"size"`
	Path      string `json:"-"`
	IsInline  bool   `json:"is_inline"`
	CID       string `json:"cid,omitempty"`
}
