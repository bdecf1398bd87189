package domain

import "time"

type SessionID string
type UserID string
type MessageID string

type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
)

type FeedbackKind string

const (
	FeedbackHelpful    FeedbackKind = "helpful"
	FeedbackInaccurate FeedbackKind = "inaccurate"
)

type Timestamp = time.Time
