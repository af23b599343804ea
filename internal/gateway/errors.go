package gateway

import (
	"fmt"
)

const (
	opListConversations  = "list conversations"
	opCreateConversation = "create conversation"
	opDeleteConversation = "delete conversation"
	opGetMessages        = "get messages"
	opSendMessage        = "send message"
	opRenameConversation = "rename conversation"
)

var defaultReasons = map[string]string{
	opListConversations:  "could not load conversations",
	opCreateConversation: "could not create conversation",
	opDeleteConversation: "could not delete conversation",
	opGetMessages:        "could not load messages",
	opSendMessage:        "could not send the message",
	opRenameConversation: "could not update the conversation title",
}

// Error is the single failure kind of the gateway. Status is zero when the
// request never produced a response.
type Error struct {
	Op     string
	Status int
	Reason string
	cause  error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Reason, e.Status)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Reason, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.cause
}
