package domain

// Session is a titled container for one user's ordered message history.
// A session only has an ID once it is persisted; before that it exists
// purely as engine state (the "unsaved" chat).
type Session struct {
	ID           SessionID
	UserID       UserID
	Title        string
	CreatedAt    Timestamp
	LastActivity Timestamp
}

// Message is a single entry in a session's timeline, user or bot.
// Messages are immutable once created; there is no edit operation.
type Message struct {
	ID        MessageID
	SessionID SessionID
	Sender    Sender
	Kind      MessageKind
	Content   string
	MimeType  string // only set for image messages
	CreatedAt Timestamp
}

// ImageAttachment is an inline image accompanying a user turn.
type ImageAttachment struct {
	Data     []byte
	MimeType string
}

// Turn is one entry of the conversation window sent to the completion
// service. Image messages appear as a placeholder, not raw bytes.
type Turn struct {
	Sender Sender
	Text   string
}

// FeedbackRecord captures a user's verdict on a bot message. Append-only.
type FeedbackRecord struct {
	UserID    UserID
	SessionID SessionID
	MessageID MessageID
	Kind      FeedbackKind
	Content   string
	CreatedAt Timestamp
}
