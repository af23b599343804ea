package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-tavern/chatclient/internal/model/chat"
)

var (
	// ErrSendInFlight rejects a submit while the conversation still waits for a reply.
	ErrSendInFlight = errors.New("a message is already being sent in this conversation")
	// ErrConversationChanged rejects a send whose conversation stopped being active before it started.
	ErrConversationChanged = errors.New("active conversation changed before the message was sent")
	// ErrConversationDeleted rejects selecting a conversation deleted during this session.
	ErrConversationDeleted = errors.New("conversation was deleted")
)

// Controller keeps the session state consistent with the remote store while
// the user lists, selects, creates and deletes conversations and sends messages.
// It is safe for concurrent use: remote calls run outside the lock and their
// results are applied by a single reducer.
type Controller struct {
	mu       sync.Mutex
	store    *Store
	gateway  Gateway
	observer Observer

	defaultTitle string
	now          func() time.Time

	selectSeq uint64
	revision  uint64
	cache     map[string][]chat.Message
	pending   map[string]chat.MessageID
	deleted   map[string]struct{}
	// creating is set while a send creates the conversation it goes to.
	creating  bool

	fetching       map[string]int
	confirmedSince map[string][]stampedMessage
}

// stampedMessage is a confirmed message together with the selection sequence
// current when it was confirmed.
type stampedMessage struct {
	seq     uint64
	message chat.Message
}

// Option configures a Controller.
type Option func(*Controller)

// WithObserver registers the observer notified after every applied change.
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithDefaultTitle sets the title of conversations created before their first message.
func WithDefaultTitle(title string) Option {
	return func(c *Controller) {
		if strings.TrimSpace(title) != "" {
			c.defaultTitle = title
		}
	}
}

// WithClock overrides the clock used for provisional message timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// NewController returns a controller in the initial no-conversation state.
func NewController(gateway Gateway, opts ...Option) *Controller {
	c := &Controller{
		store:        NewStore(),
		gateway:      gateway,
		observer:     nopObserver{},
		defaultTitle: chat.DefaultTitle,
		now:          time.Now,
		cache:        make(map[string][]chat.Message),
		pending:      make(map[string]chat.MessageID),
		deleted:      make(map[string]struct{}),

		fetching:       make(map[string]int),
		confirmedSince: make(map[string][]stampedMessage),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Snapshot returns a copy of the current session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Snapshot()
}

// Sending reports whether the active conversation has an outstanding send.
func (c *Controller) Sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Sending()
}

// StoredTranscript returns the locally known messages of any conversation,
// displayed or not.
func (c *Controller) StoredTranscript(conversationID string) []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]chat.Message(nil), c.cache[conversationID]...)
}

// ListConversations replaces the conversation list with the remote one. It
// never selects a conversation.
func (c *Controller) ListConversations(ctx context.Context) error {
	conversations, err := c.gateway.ListConversations(ctx)
	if err != nil {
		c.reportError("Could not load conversations.", err)
		return errors.Wrap(err, "list conversations")
	}
	_, err = c.dispatch(conversationsLoaded{conversations: conversations})
	return err
}

// SelectConversation makes conv active and loads its transcript.
func (c *Controller) SelectConversation(ctx context.Context, conv chat.Conversation) error {
	started := &selectionStarted{conversation: conv}
	if _, err := c.dispatch(started); err != nil {
		return errors.Wrapf(err, "select conversation %s", conv.ID)
	}

	messages, err := c.gateway.GetMessages(ctx, conv.ID)
	if err != nil {
		if _, derr := c.dispatch(messagesFailed{conversationID: conv.ID, seq: started.seq}); derr != nil {
			log.Error().Err(derr).Str("component", "session").Msg("failed to apply message load failure")
		}
		c.reportError("Could not load messages.", err)
		return errors.Wrapf(err, "load messages of %s", conv.ID)
	}

	_, err = c.dispatch(messagesLoaded{conversationID: conv.ID, seq: started.seq, messages: messages})
	return err
}

// CreateConversation creates an empty conversation and makes it active.
func (c *Controller) CreateConversation(ctx context.Context) (chat.Conversation, error) {
	conv, err := c.gateway.CreateConversation(ctx, c.defaultTitle)
	if err != nil {
		c.reportError("Could not create a new conversation.", err)
		return chat.Conversation{}, errors.Wrap(err, "create conversation")
	}
	if _, err := c.dispatch(conversationCreated{conversation: conv}); err != nil {
		return chat.Conversation{}, err
	}
	return conv, nil
}

// DeleteConversation deletes a conversation remotely and then locally. When it
// was active the session falls back to having no conversation selected.
func (c *Controller) DeleteConversation(ctx context.Context, id string) error {
	if err := c.gateway.DeleteConversation(ctx, id); err != nil {
		c.reportError("Could not delete the conversation.", err)
		return errors.Wrapf(err, "delete conversation %s", id)
	}
	if _, err := c.dispatch(conversationDeleted{id: id}); err != nil {
		return err
	}
	c.observer.Notify(Notification{
		Level:       LevelInfo,
		Title:       "Conversation deleted",
		Description: "The conversation was removed.",
	})
	return nil
}

// SendMessage sends content in the active conversation, creating one first if
// none is active. The user's message shows up immediately and is replaced by
// the confirmed exchange, or removed if the send fails. Blank content is ignored.
// A send while another one is outstanding in the same conversation, or while a
// send is still creating its conversation, fails with ErrSendInFlight.
func (c *Controller) SendMessage(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	requested := &sendRequested{}
	if _, err := c.dispatch(requested); err != nil {
		return err
	}
	conv := requested.conversation
	if requested.create {
		created, err := c.CreateConversation(ctx)
		if err != nil {
			if _, derr := c.dispatch(reservationReleased{}); derr != nil {
				log.Error().Err(derr).Str("component", "session").Msg("failed to release send reservation")
			}
			return err
		}
		conv = created
	}

	accepted := &sendAccepted{
		conversationID: conv.ID,
		message:        chat.NewProvisionalUserMessage(conv.ID, content, c.now()),
		reserved:       requested.create,
	}
	if _, err := c.dispatch(accepted); err != nil {
		return err
	}
	var title string
	if accepted.first {
		title = chat.DeriveTitle(content)
	}

	exchange, err := c.gateway.SendMessage(ctx, conv.ID, content)
	if err != nil {
		if _, derr := c.dispatch(sendFailed{conversationID: conv.ID, provisionalID: accepted.message.ID}); derr != nil {
			log.Error().Err(derr).Str("component", "session").Msg("failed to roll back provisional message")
		}
		c.reportError("Could not send the message.", err)
		return errors.Wrap(err, "send message")
	}

	confirmed := &sendConfirmed{
		conversationID: conv.ID,
		provisionalID:  accepted.message.ID,
		exchange:       exchange,
		title:          title,
	}
	if _, err := c.dispatch(confirmed); err != nil {
		return err
	}

	if confirmed.renamed {
		c.persistTitle(ctx, conv.ID, title)
	}
	return nil
}

// persistTitle stores a derived title remotely. Failures keep the local title.
func (c *Controller) persistTitle(ctx context.Context, id, title string) {
	if err := c.gateway.RenameConversation(ctx, id, title); err != nil {
		log.Warn().
			Err(err).
			Str("component", "session").
			Str("conversation_id", id).
			Str("title", title).
			Msg("failed to persist conversation title")
	}
}

// dispatch runs ev through the reducer and notifies the observer when the
// state changed.
func (c *Controller) dispatch(ev event) (bool, error) {
	c.mu.Lock()
	applied, err := c.reduce(ev)
	var change Change
	if applied {
		c.revision++
		change = Change{Revision: c.revision, Reason: ev.reason(), ConversationID: ev.target()}
	}
	c.mu.Unlock()

	if applied {
		c.observer.SessionChanged(change)
	}
	return applied, err
}

func (c *Controller) reportError(description string, err error) {
	log.Error().Err(err).Str("component", "session").Msg(description)
	c.observer.Notify(Notification{
		Level:       LevelError,
		Title:       "Error",
		Description: description,
		Detail:      err.Error(),
	})
}
