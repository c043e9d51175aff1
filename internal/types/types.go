package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"world-chat/internal/errs"

	"github.com/go-playground/validator/v10"
)

// Inbound event names. These are part of the wire contract.
const (
	EventJoin           = "join"
	EventSetDisplayName = "setDisplayName"
	EventSendMessage    = "sendMessage"
	EventTypingStart    = "typingStart"
	EventTypingStop     = "typingStop"
	EventToggleReaction = "toggleReaction"
	EventEditMessage    = "editMessage"
	EventDeleteMessage  = "deleteMessage"
)

// Outbound event names.
const (
	EventNewMessage          = "newMessage"
	EventMessageEdited       = "messageEdited"
	EventMessageDeleted      = "messageDeleted"
	EventReactionsUpdated    = "reactionsUpdated"
	EventUserTyping          = "userTyping"
	EventUserStoppedTyping   = "userStoppedTyping"
	EventOnlineCount         = "onlineCount"
	EventError               = "error"
	EventDisplayNameRequired = "displayNameRequired"
	EventDisplayNameUpdated  = "displayNameUpdated"
)

type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

var validate = validator.New()

// Encode frames payload under event.
func Encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

func DecodeEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, errs.Withf(errs.ErrInvalidPayload, "frame is not a JSON envelope")
	}
	if strings.TrimSpace(env.Event) == "" {
		return Envelope{}, errs.Withf(errs.ErrInvalidPayload, "frame has no event name")
	}
	return env, nil
}

// Decode unmarshals data into v and validates its struct tags. An absent body
// decodes to the zero value.
func Decode(data json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, v); err != nil {
			return errs.Withf(errs.ErrInvalidPayload, "payload does not match event shape")
		}
	}
	return Validate(v)
}

func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return errs.Withf(errs.ErrInvalidPayload, "field %s failed %s", f.Field(), f.Tag())
		}
		return errs.Wrap(errs.ErrInvalidPayload, err)
	}
	return nil
}
