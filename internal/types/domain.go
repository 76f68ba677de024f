// Package types defines the domain entities, error model, and shared
// interfaces for the noticebox platform. It has no dependencies on other
// internal packages so that every layer (handlers, storage, transport, API)
// can consume it without import cycles.
package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ChannelType identifies a notice delivery channel.
type ChannelType string

const (
	// ChannelWeb persists notices to the database for on-site display.
	ChannelWeb ChannelType = "web"

	// ChannelEmail delivers notices as email messages.
	ChannelEmail ChannelType = "email"
)

// TemplateRole identifies which slot of a notice a template renders.
type TemplateRole string

const (
	RoleSubject TemplateRole = "subject"
	RoleBody    TemplateRole = "body"
)

// DefaultPreset is the template preset used when a handler or call does not
// name one explicitly.
const DefaultPreset = "default"

// MaxSubjectLen is the column bound on notices.subject. Rendered subjects are
// trimmed and truncated to this length before storage.
const MaxSubjectLen = 100

// NoticeIDPrefix is the prefix for client-generated notice identifiers.
const NoticeIDPrefix = "ntc_"

// NewNoticeID generates a new prefixed notice identifier.
func NewNoticeID() string {
	return NoticeIDPrefix + uuid.NewString()
}

// Notice is one message delivered to one user via the web (persistence)
// channel. It is created exclusively by the database dispatch handler and
// mutated only by the read-marking operation.
type Notice struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Subject   string     `json:"subject"`
	Body      string     `json:"body"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}

// IsRead reports whether the notice has been read. A nil ReadAt means unread.
func (n *Notice) IsRead() bool {
	return n.ReadAt != nil
}

// Validate checks the invariants that must hold before a notice is persisted.
func (n *Notice) Validate() error {
	if n.UserID == "" {
		return NewAppError(ErrCodeValidationMissingField, "notice user_id is required", nil)
	}
	if len([]rune(n.Subject)) > MaxSubjectLen {
		return NewAppError(ErrCodeValidationSubjectTooLong,
			fmt.Sprintf("notice subject exceeds %d characters", MaxSubjectLen), nil)
	}
	if n.ReadAt != nil && n.ReadAt.Before(n.CreatedAt) {
		return NewAppError(ErrCodeValidationReadBeforeCreate,
			"notice read_at precedes created_at", nil)
	}
	return nil
}

// TruncateSubject trims surrounding whitespace left behind by template
// rendering and cuts the result at the subject column bound. Truncation is
// rune-aware so a multi-byte character is never split.
func TruncateSubject(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= MaxSubjectLen {
		return s
	}
	return string(runes[:MaxSubjectLen])
}

// Recipient is one target of a dispatch call. A recipient without an Email
// address is still valid for the web channel; the email channel skips it.
type Recipient struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// HasEmail reports whether the recipient carries a usable email address.
func (r Recipient) HasEmail() bool {
	return r.Email != ""
}

// SenderIdentity is the from-address used on outgoing email messages.
type SenderIdentity struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// String formats the identity as an RFC 5322 address ("Name <addr>").
func (s SenderIdentity) String() string {
	if s.Name == "" {
		return s.Address
	}
	return fmt.Sprintf("%s <%s>", s.Name, s.Address)
}

// MailMessage is one rendered outgoing email, ready for a mail backend.
type MailMessage struct {
	From    SenderIdentity
	To      string
	Subject string
	Body    string

	// ReferenceID correlates the message with its dispatch for logging.
	ReferenceID string
}
