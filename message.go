package bookmark

// Message is the inbound message descriptor a subscription session hands to
// the bookmark store. SubID identifies the subscription the message was
// delivered on and Bookmark is the opaque progress token the messaging layer
// assigned to it. Messages that are not part of a resumable subscription
// carry neither.
type Message struct {
	SubID    string
	Bookmark string
	Data     []byte
}
