package chat

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const provisionalPrefix = "local:"

// ErrProvisionalID is returned when a provisional id would leave the process.
var ErrProvisionalID = errors.New("provisional message id cannot be serialized")

// MessageID is either Confirmed (assigned by the remote store) or Provisional
// (generated locally until the send that owns it resolves). The zero value is
// an empty confirmed id.
type MessageID struct {
	value       string
	provisional bool
}

// ConfirmedID wraps an id assigned by the remote store.
func ConfirmedID(id string) MessageID {
	return MessageID{value: id}
}

// NewProvisionalID returns a locally unique placeholder id.
func NewProvisionalID() MessageID {
	return MessageID{value: uuid.NewString(), provisional: true}
}

// IsProvisional reports whether the id is a local placeholder.
func (id MessageID) IsProvisional() bool {
	return id.provisional
}

// IsZero reports whether the id carries no value.
func (id MessageID) IsZero() bool {
	return id.value == ""
}

// String renders the id; provisional ids carry a prefix no server id uses.
func (id MessageID) String() string {
	if id.provisional {
		return provisionalPrefix + id.value
	}
	return id.value
}

// MarshalJSON encodes confirmed ids as plain strings and refuses provisional ones.
func (id MessageID) MarshalJSON() ([]byte, error) {
	if id.provisional {
		return nil, ErrProvisionalID
	}
	return json.Marshal(id.value)
}

// UnmarshalJSON always yields a confirmed id.
func (id *MessageID) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return errors.Wrap(err, "decode message id")
	}
	switch v := raw.(type) {
	case string:
		*id = ConfirmedID(strings.TrimSpace(v))
	case json.Number:
		// Some stores hand out numeric ids; keep their digits as sent.
		*id = ConfirmedID(v.String())
	case nil:
		*id = MessageID{}
	default:
		return errors.Errorf("unsupported message id %s", string(data))
	}
	return nil
}
