package session

import (
	"github.com/pkg/errors"

	"github.com/zhouzirui/z-tavern/chatclient/internal/model/chat"
)

// DisplayMode is what the transcript area shows.
type DisplayMode string

const (
	DisplayWelcome    DisplayMode = "welcome"
	DisplayLoading    DisplayMode = "loading"
	DisplayTranscript DisplayMode = "transcript"
)

var (
	ErrForeignMessage     = errors.New("message belongs to another conversation")
	ErrNoActive           = errors.New("no active conversation")
	ErrSecondProvisional  = errors.New("a provisional message is already pending")
	ErrMessageNotFound    = errors.New("message not found")
	ErrDisplayModeDerived = errors.New("only the loading display mode can be set")
)

// Store holds the session state slices. Every primitive keeps the following
// true after it returns:
//
//   - every transcript message belongs to the active conversation
//   - the transcript holds at most one provisional message
//   - conversation ids are unique
//   - without an active conversation the transcript is empty and the mode is welcome
//
// Store is not safe for concurrent use; Controller serialises access to it.
type Store struct {
	conversations []chat.Conversation
	active        *chat.Conversation
	transcript    []chat.Message
	loading       bool
	sending       bool
}

// NewStore returns the initial no-conversation state.
func NewStore() *Store {
	return &Store{}
}

// Conversations returns a copy of the conversation list, newest first.
func (s *Store) Conversations() []chat.Conversation {
	return append([]chat.Conversation(nil), s.conversations...)
}

// Active returns the active conversation, if any.
func (s *Store) Active() (chat.Conversation, bool) {
	if s.active == nil {
		return chat.Conversation{}, false
	}
	return *s.active, true
}

// ActiveID returns the active conversation id or "".
func (s *Store) ActiveID() string {
	if s.active == nil {
		return ""
	}
	return s.active.ID
}

// Transcript returns a copy of the displayed messages.
func (s *Store) Transcript() []chat.Message {
	return append([]chat.Message(nil), s.transcript...)
}

// Sending reports whether a send for the active conversation is outstanding.
func (s *Store) Sending() bool {
	return s.sending
}

// DisplayMode derives the mode from the current state.
func (s *Store) DisplayMode() DisplayMode {
	switch {
	case s.loading:
		return DisplayLoading
	case s.active == nil, len(s.transcript) == 0:
		return DisplayWelcome
	default:
		return DisplayTranscript
	}
}

// Conversation looks up a conversation by id.
func (s *Store) Conversation(id string) (chat.Conversation, bool) {
	for _, c := range s.conversations {
		if c.ID == id {
			return c, true
		}
	}
	return chat.Conversation{}, false
}

// SetConversations replaces the list. Later duplicates of an id are dropped.
func (s *Store) SetConversations(conversations []chat.Conversation) {
	seen := make(map[string]struct{}, len(conversations))
	out := make([]chat.Conversation, 0, len(conversations))
	for _, c := range conversations {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	s.conversations = out
}

// SetActiveConversation switches the active conversation. The transcript is
// cleared whenever the active id changes; nil returns to the welcome state.
func (s *Store) SetActiveConversation(c *chat.Conversation) {
	if c == nil {
		s.active = nil
		s.transcript = nil
		s.loading = false
		s.sending = false
		return
	}
	if s.active == nil || s.active.ID != c.ID {
		s.transcript = nil
		s.sending = false
	}
	copied := *c
	s.active = &copied
}

// SetTranscript installs a fetched transcript for the active conversation.
func (s *Store) SetTranscript(messages []chat.Message) error {
	if s.active == nil {
		if len(messages) == 0 {
			return nil
		}
		return ErrNoActive
	}
	provisional := 0
	for _, m := range messages {
		if m.ConversationID != s.active.ID {
			return errors.Wrapf(ErrForeignMessage, "message %s", m.ID)
		}
		if m.IsProvisional() {
			provisional++
		}
	}
	if provisional > 1 {
		return ErrSecondProvisional
	}
	s.transcript = append([]chat.Message(nil), messages...)
	return nil
}

// AppendMessage adds a message to the end of the transcript.
func (s *Store) AppendMessage(m chat.Message) error {
	if s.active == nil {
		return ErrNoActive
	}
	if m.ConversationID != s.active.ID {
		return errors.Wrapf(ErrForeignMessage, "message %s", m.ID)
	}
	if m.IsProvisional() && s.hasProvisional() {
		return ErrSecondProvisional
	}
	s.transcript = append(s.transcript, m)
	return nil
}

// ReplaceMessage swaps the message carrying id for m in place.
func (s *Store) ReplaceMessage(id chat.MessageID, m chat.Message) error {
	if s.active == nil {
		return ErrNoActive
	}
	if m.ConversationID != s.active.ID {
		return errors.Wrapf(ErrForeignMessage, "message %s", m.ID)
	}
	idx := s.indexOf(id)
	if idx < 0 {
		return errors.Wrapf(ErrMessageNotFound, "message %s", id)
	}
	if m.IsProvisional() && !id.IsProvisional() && s.hasProvisional() {
		return ErrSecondProvisional
	}
	s.transcript[idx] = m
	return nil
}

// RemoveMessage drops the message carrying id. It reports whether anything was removed.
func (s *Store) RemoveMessage(id chat.MessageID) bool {
	idx := s.indexOf(id)
	if idx < 0 {
		return false
	}
	s.transcript = append(s.transcript[:idx:idx], s.transcript[idx+1:]...)
	return true
}

// SetSending flags the outstanding send of the active conversation.
func (s *Store) SetSending(sending bool) {
	if s.active == nil {
		s.sending = false
		return
	}
	s.sending = sending
}

// SetDisplayMode enters or leaves the transient loading phase. The welcome and
// transcript modes are derived and cannot be forced.
func (s *Store) SetDisplayMode(mode DisplayMode) error {
	switch mode {
	case DisplayLoading:
		if s.active == nil {
			return ErrNoActive
		}
		s.loading = true
	case DisplayWelcome, DisplayTranscript:
		if mode != s.derivedMode() {
			return ErrDisplayModeDerived
		}
		s.loading = false
	default:
		return errors.Errorf("unknown display mode %q", mode)
	}
	return nil
}

// ClearLoading leaves the loading phase.
func (s *Store) ClearLoading() {
	s.loading = false
}

// RenameConversation updates the title in the list and on the active conversation.
func (s *Store) RenameConversation(id, title string) bool {
	found := false
	for i := range s.conversations {
		if s.conversations[i].ID == id {
			s.conversations[i] = s.conversations[i].WithTitle(title)
			found = true
		}
	}
	if s.active != nil && s.active.ID == id {
		renamed := s.active.WithTitle(title)
		s.active = &renamed
		found = true
	}
	return found
}

func (s *Store) derivedMode() DisplayMode {
	if s.active == nil || len(s.transcript) == 0 {
		return DisplayWelcome
	}
	return DisplayTranscript
}

func (s *Store) hasProvisional() bool {
	for _, m := range s.transcript {
		if m.IsProvisional() {
			return true
		}
	}
	return false
}

func (s *Store) indexOf(id chat.MessageID) int {
	for i, m := range s.transcript {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// Snapshot is an immutable copy of the store for observers.
type Snapshot struct {
	Conversations []chat.Conversation
	Active        *chat.Conversation
	Transcript    []chat.Message
	DisplayMode   DisplayMode
	Sending       bool
}

// Snapshot copies the current state.
func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{
		Conversations: s.Conversations(),
		Transcript:    s.Transcript(),
		DisplayMode:   s.DisplayMode(),
		Sending:       s.sending,
	}
	if s.active != nil {
		active := *s.active
		snap.Active = &active
	}
	return snap
}
