package models

// MessageSentEvent is the envelope published after a successful append, in
// the same pattern/data shape the chat platform consumers already read.
type MessageSentEvent struct {
	Pattern string          `json:"pattern"`
	Data    MessageSentData `json:"data"`
}

type MessageSentData struct {
	MessageID  string      `json:"message_id"`
	SenderID   string      `json:"sender_id"`
	CreatedAt  int64       `json:"created_at"`
	Message    string      `json:"message"`
	Type       string      `json:"type"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

const PatternMessageSent = "message.sent"

func NewMessageSentEvent(m Message) MessageSentEvent {
	data := MessageSentData{
		MessageID:  m.ID,
		SenderID:   m.Author.ID,
		CreatedAt:  m.CreatedAt.UnixMilli(),
		Type:       "text",
		Attachment: m.Attachment,
	}
	if m.Text != nil {
		data.Message = *m.Text
	}
	switch {
	case m.Attachment == nil:
	case m.Attachment.ImageURL != "":
		data.Type = "image"
	case m.Attachment.AudioURL != "":
		data.Type = "audio"
	case m.Attachment.Location != nil:
		data.Type = "location"
	}
	return MessageSentEvent{Pattern: PatternMessageSent, Data: data}
}
