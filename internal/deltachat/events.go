package deltachat

import (
	"encoding/json"
	"fmt"

	"github.com/edgard/selfreportbot/internal/chat"
)

// Event kinds emitted by the core that the bot acts upon.
const (
	kindInfo         = "Info"
	kindWarning      = "Warning"
	kindError        = "Error"
	kindMsgDelivered = "MsgDelivered"
	kindIncomingMsg  = "IncomingMsg"
)

// rawEvent is the result of get_next_event.
type rawEvent struct {
	ContextID int64           `json:"contextId"`
	Event     json.RawMessage `json:"event"`
}

type eventBody struct {
	Kind   string `json:"kind"`
	Msg    string `json:"msg"`
	ChatID int64  `json:"chatId"`
	MsgID  int64  `json:"msgId"`
}

// decodeEvent translates a raw core event into a chat.Envelope.
func decodeEvent(raw rawEvent) (chat.Envelope, error) {
	var body eventBody
	if err := json.Unmarshal(raw.Event, &body); err != nil {
		return chat.Envelope{}, fmt.Errorf("decode event: %w", err)
	}

	env := chat.Envelope{Account: chat.AccountID(raw.ContextID)}
	switch body.Kind {
	case kindInfo:
		env.Event = chat.InfoEvent{Msg: body.Msg}
	case kindWarning:
		env.Event = chat.WarningEvent{Msg: body.Msg}
	case kindError:
		env.Event = chat.ErrorEvent{Msg: body.Msg}
	case kindMsgDelivered:
		env.Event = chat.MsgDeliveredEvent{ChatID: chat.ChatID(body.ChatID), MsgID: chat.MessageID(body.MsgID)}
	case kindIncomingMsg:
		env.Event = chat.NewMessageEvent{ChatID: chat.ChatID(body.ChatID), MsgID: chat.MessageID(body.MsgID)}
	default:
		env.Event = chat.UnknownEvent{Kind: body.Kind, Raw: string(raw.Event)}
	}
	return env, nil
}

// message mirrors the subset of the core's message object the bot reads.
type message struct {
	ID       int64   `json:"id"`
	ChatID   int64   `json:"chatId"`
	FromID   int64   `json:"fromId"`
	Text     string  `json:"text"`
	File     *string `json:"file"`
	FileName *string `json:"fileName"`
	IsInfo   bool    `json:"isInfo"`
}

func (m message) toChat() *chat.Message {
	msg := &chat.Message{
		ID:     chat.MessageID(m.ID),
		ChatID: chat.ChatID(m.ChatID),
		FromID: chat.ContactID(m.FromID),
		Text:   m.Text,
		IsInfo: m.IsInfo,
	}
	if m.File != nil {
		msg.File = *m.File
	}
	if m.FileName != nil {
		msg.FileName = *m.FileName
	}
	return msg
}
