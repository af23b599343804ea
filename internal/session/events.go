package session

import (
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-tavern/chatclient/internal/model/chat"
)

// event is the result of a user action or a remote resolution. The reducer
// applies it to the store and reports whether anything changed.
type event interface {
	reason() string
	target() string
}

type conversationsLoaded struct {
	conversations []chat.Conversation
}

type selectionStarted struct {
	conversation chat.Conversation
	seq          uint64 // set by the reducer
}

type messagesLoaded struct {
	conversationID string
	seq            uint64
	messages       []chat.Message
}

type messagesFailed struct {
	conversationID string
	seq            uint64
}

type conversationCreated struct {
	conversation chat.Conversation
}

type conversationDeleted struct {
	id string
}

// sendRequested reserves the right to send before any remote call. With no
// active conversation the sender must create one first.
type sendRequested struct {
	conversation chat.Conversation // set by the reducer
	create       bool              // set by the reducer
}

type reservationReleased struct{}

type sendAccepted struct {
	conversationID string
	message        chat.Message
	reserved       bool
	first          bool // set by the reducer
}

type sendConfirmed struct {
	conversationID string
	provisionalID  chat.MessageID
	exchange       chat.Exchange
	title          string
	renamed        bool // set by the reducer
}

type sendFailed struct {
	conversationID string
	provisionalID  chat.MessageID
}

func (conversationsLoaded) reason() string { return "conversations_loaded" }
func (*selectionStarted) reason() string   { return "selection_started" }
func (messagesLoaded) reason() string      { return "messages_loaded" }
func (messagesFailed) reason() string      { return "messages_failed" }
func (conversationCreated) reason() string { return "conversation_created" }
func (conversationDeleted) reason() string { return "conversation_deleted" }
func (*sendRequested) reason() string      { return "send_requested" }
func (reservationReleased) reason() string { return "reservation_released" }
func (*sendAccepted) reason() string       { return "send_accepted" }
func (*sendConfirmed) reason() string      { return "send_confirmed" }
func (sendFailed) reason() string          { return "send_failed" }

func (conversationsLoaded) target() string   { return "" }
func (e *selectionStarted) target() string   { return e.conversation.ID }
func (e messagesLoaded) target() string      { return e.conversationID }
func (e messagesFailed) target() string      { return e.conversationID }
func (e conversationCreated) target() string { return e.conversation.ID }
func (e conversationDeleted) target() string { return e.id }
func (e *sendRequested) target() string      { return e.conversation.ID }
func (reservationReleased) target() string   { return "" }
func (e *sendAccepted) target() string       { return e.conversationID }
func (e *sendConfirmed) target() string      { return e.conversationID }
func (e sendFailed) target() string          { return e.conversationID }

// reduce applies ev to the controller state. It must be called with c.mu held.
func (c *Controller) reduce(ev event) (bool, error) {
	switch e := ev.(type) {
	case conversationsLoaded:
		c.store.SetConversations(e.conversations)
		for _, conv := range e.conversations {
			delete(c.deleted, conv.ID)
		}
		return true, nil

	case *selectionStarted:
		if _, gone := c.deleted[e.conversation.ID]; gone {
			return false, ErrConversationDeleted
		}
		c.selectSeq++
		e.seq = c.selectSeq
		c.fetching[e.conversation.ID]++
		c.store.SetActiveConversation(&e.conversation)
		if err := c.store.SetDisplayMode(DisplayLoading); err != nil {
			return false, err
		}
		_, pending := c.pending[e.conversation.ID]
		c.store.SetSending(pending)
		return true, nil

	case messagesLoaded:
		if _, gone := c.deleted[e.conversationID]; gone {
			c.discard(e, "conversation deleted")
			return false, nil
		}
		fetched := c.withConfirmedSince(e.conversationID, e.seq, c.ownMessages(e.conversationID, e.messages))
		c.fetchDone(e.conversationID)
		cached := c.withPending(e.conversationID, fetched)
		c.cache[e.conversationID] = cached
		if e.seq != c.selectSeq || c.store.ActiveID() != e.conversationID {
			c.discard(e, "selection superseded")
			return false, nil
		}
		if err := c.store.SetTranscript(cached); err != nil {
			return false, err
		}
		c.store.ClearLoading()
		return true, nil

	case messagesFailed:
		known := c.withConfirmedSince(e.conversationID, e.seq, nil)
		c.fetchDone(e.conversationID)
		if e.seq != c.selectSeq || c.store.ActiveID() != e.conversationID {
			c.discard(e, "selection superseded")
			return false, nil
		}
		if err := c.store.SetTranscript(c.withPending(e.conversationID, known)); err != nil {
			return false, err
		}
		c.store.ClearLoading()
		return true, nil

	case conversationCreated:
		list := append([]chat.Conversation{e.conversation}, c.store.Conversations()...)
		c.store.SetConversations(list)
		delete(c.deleted, e.conversation.ID)
		c.selectSeq++
		c.store.SetActiveConversation(&e.conversation)
		c.store.ClearLoading()
		c.cache[e.conversation.ID] = nil
		return true, nil

	case conversationDeleted:
		list := c.store.Conversations()
		kept := list[:0]
		for _, conv := range list {
			if conv.ID != e.id {
				kept = append(kept, conv)
			}
		}
		c.store.SetConversations(kept)
		c.deleted[e.id] = struct{}{}
		delete(c.cache, e.id)
		delete(c.pending, e.id)
		delete(c.fetching, e.id)
		delete(c.confirmedSince, e.id)
		if c.store.ActiveID() == e.id {
			c.selectSeq++
			c.store.SetActiveConversation(nil)
		}
		return true, nil

	case *sendRequested:
		if c.creating {
			return false, ErrSendInFlight
		}
		active, ok := c.store.Active()
		if !ok {
			c.creating = true
			e.create = true
			return false, nil
		}
		if _, busy := c.pending[active.ID]; busy {
			return false, ErrSendInFlight
		}
		e.conversation = active
		return false, nil

	case reservationReleased:
		c.creating = false
		return false, nil

	case *sendAccepted:
		if e.reserved {
			c.creating = false
		}
		if _, busy := c.pending[e.conversationID]; busy {
			return false, ErrSendInFlight
		}
		if c.store.ActiveID() != e.conversationID {
			return false, ErrConversationChanged
		}
		e.first = c.store.DisplayMode() != DisplayLoading && len(c.store.Transcript()) == 0
		if err := c.store.AppendMessage(e.message); err != nil {
			return false, err
		}
		c.pending[e.conversationID] = e.message.ID
		c.cache[e.conversationID] = append(c.cache[e.conversationID], e.message)
		c.store.SetSending(true)
		return true, nil

	case *sendConfirmed:
		if c.pending[e.conversationID] == e.provisionalID {
			delete(c.pending, e.conversationID)
		}
		if _, gone := c.deleted[e.conversationID]; gone {
			c.discard(e, "conversation deleted")
			return false, nil
		}
		confirmed := c.ownMessages(e.conversationID, e.exchange.Messages())
		c.cache[e.conversationID] = mergeConfirmed(c.cache[e.conversationID], e.provisionalID, confirmed)
		if c.fetching[e.conversationID] > 0 {
			for _, m := range confirmed {
				c.confirmedSince[e.conversationID] = append(c.confirmedSince[e.conversationID], stampedMessage{seq: c.selectSeq, message: m})
			}
		}
		if e.title != "" {
			e.renamed = c.store.RenameConversation(e.conversationID, e.title)
		}
		if c.store.ActiveID() != e.conversationID {
			c.discard(e, "conversation no longer active")
			return e.renamed, nil
		}
		c.store.RemoveMessage(e.provisionalID)
		for _, m := range confirmed {
			if !containsID(c.store.Transcript(), m.ID) {
				if err := c.store.AppendMessage(m); err != nil {
					return true, err
				}
			}
		}
		c.store.SetSending(false)
		return true, nil

	case sendFailed:
		if c.pending[e.conversationID] == e.provisionalID {
			delete(c.pending, e.conversationID)
		}
		c.cache[e.conversationID] = removeID(c.cache[e.conversationID], e.provisionalID)
		if _, gone := c.deleted[e.conversationID]; gone {
			delete(c.cache, e.conversationID)
			return false, nil
		}
		if c.store.ActiveID() != e.conversationID {
			return false, nil
		}
		c.store.RemoveMessage(e.provisionalID)
		c.store.SetSending(false)
		return true, nil
	}
	return false, nil
}

func (c *Controller) discard(ev event, why string) {
	log.Debug().
		Str("component", "session").
		Str("event", ev.reason()).
		Str("conversation_id", ev.target()).
		Str("why", why).
		Msg("discarding stale result")
}

// ownMessages keeps the messages of conversationID, dropping repeated ids.
func (c *Controller) ownMessages(conversationID string, messages []chat.Message) []chat.Message {
	out := make([]chat.Message, 0, len(messages))
	for _, m := range messages {
		if m.ConversationID != conversationID {
			log.Warn().
				Str("component", "session").
				Str("conversation_id", conversationID).
				Str("message_id", m.ID.String()).
				Msg("remote returned a message of another conversation")
			continue
		}
		if containsID(out, m.ID) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// withConfirmedSince appends the messages confirmed while the fetch stamped
// seq was in flight and that the fetch does not carry. A fetch issued after a
// confirmation already sees it remotely.
func (c *Controller) withConfirmedSince(conversationID string, seq uint64, fetched []chat.Message) []chat.Message {
	for _, s := range c.confirmedSince[conversationID] {
		if s.seq >= seq && !containsID(fetched, s.message.ID) {
			fetched = append(fetched, s.message)
		}
	}
	return fetched
}

// fetchDone settles one fetch of conversationID.
func (c *Controller) fetchDone(conversationID string) {
	if c.fetching[conversationID] > 1 {
		c.fetching[conversationID]--
		return
	}
	delete(c.fetching, conversationID)
	delete(c.confirmedSince, conversationID)
}

// withPending appends the outstanding provisional message of conversationID.
func (c *Controller) withPending(conversationID string, messages []chat.Message) []chat.Message {
	id, ok := c.pending[conversationID]
	if !ok {
		return messages
	}
	for _, m := range c.cache[conversationID] {
		if m.ID == id {
			return append(messages, m)
		}
	}
	return messages
}

func mergeConfirmed(messages []chat.Message, provisional chat.MessageID, confirmed []chat.Message) []chat.Message {
	out := removeID(messages, provisional)
	for _, m := range confirmed {
		if !containsID(out, m.ID) {
			out = append(out, m)
		}
	}
	return out
}

func removeID(messages []chat.Message, id chat.MessageID) []chat.Message {
	out := make([]chat.Message, 0, len(messages))
	for _, m := range messages {
		if m.ID != id {
			out = append(out, m)
		}
	}
	return out
}

func containsID(messages []chat.Message, id chat.MessageID) bool {
	for _, m := range messages {
		if m.ID == id {
			return true
		}
	}
	return false
}
