package chat

// Event is one inbound protocol event. The set of variants is closed: only
// types in this package implement it.
type Event interface {
	isEvent()
}

// Envelope ties an event to the account it was raised for.
type Envelope struct {
	Account AccountID
	Event   Event
}

// InfoEvent, WarningEvent and ErrorEvent carry diagnostics from the transport.
type (
	InfoEvent    struct{ Msg string }
	WarningEvent struct{ Msg string }
	ErrorEvent   struct{ Msg string }
)

// MsgDeliveredEvent reports that an outgoing message reached its peer.
type MsgDeliveredEvent struct {
	ChatID ChatID
	MsgID  MessageID
}

// NewMessageEvent announces an incoming message. Msg is set when the
// transport already resolved it; otherwise the receiver fetches MsgID.
type NewMessageEvent struct {
	ChatID ChatID
	MsgID  MessageID
	Msg    *Message
}

// UnknownEvent is any event kind the core does not act upon.
type UnknownEvent struct {
	Kind string
	Raw  string
}

func (InfoEvent) isEvent()         {}
func (WarningEvent) isEvent()      {}
func (ErrorEvent) isEvent()        {}
func (MsgDeliveredEvent) isEvent() {}
func (NewMessageEvent) isEvent()   {}
func (UnknownEvent) isEvent()      {}
