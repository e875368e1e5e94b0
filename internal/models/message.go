package models

import (
	"errors"
	"time"

	"github.com/goccy/go-json"
)

// Message is one immutable entry of the chat log. The wire shape follows the
// hosted document schema: attachment fields are flattened next to the text.
type Message struct {
	ID         string
	Text       *string
	CreatedAt  time.Time
	Author     Author
	Attachment *Attachment
	System     bool
}

type Author struct {
	ID          string  `json:"_id" validate:"required"`
	DisplayName string  `json:"name" validate:"required"`
	AvatarRef   *string `json:"avatar,omitempty"`
}

// Attachment carries exactly one of an image URL, an audio URL or a location.
type Attachment struct {
	ImageURL string    `json:"image,omitempty" validate:"omitempty,url"`
	AudioURL string    `json:"audio,omitempty" validate:"omitempty,url"`
	Location *Location `json:"location,omitempty"`
}

type Location struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

var errAttachmentKind = errors.New("attachment must carry exactly one of image, audio or location")

func (a *Attachment) Validate() error {
	if a == nil {
		return nil
	}
	kinds := 0
	if a.ImageURL != "" {
		kinds++
	}
	if a.AudioURL != "" {
		kinds++
	}
	if a.Location != nil {
		kinds++
	}
	if kinds != 1 {
		return errAttachmentKind
	}
	return nil
}

// messageDoc is the flattened document form used on the wire and in the cache.
type messageDoc struct {
	ID        string    `json:"_id"`
	Text      *string   `json:"text,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	User      Author    `json:"user"`
	Image     string    `json:"image,omitempty"`
	Audio     string    `json:"audio,omitempty"`
	Location  *Location `json:"location,omitempty"`
	System    bool      `json:"system,omitempty"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	doc := messageDoc{
		ID:        m.ID,
		Text:      m.Text,
		CreatedAt: m.CreatedAt.UTC(),
		User:      m.Author,
		System:    m.System,
	}
	if m.Attachment != nil {
		doc.Image = m.Attachment.ImageURL
		doc.Audio = m.Attachment.AudioURL
		doc.Location = m.Attachment.Location
	}
	return json.Marshal(doc)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var doc messageDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*m = Message{
		ID:        doc.ID,
		Text:      doc.Text,
		CreatedAt: doc.CreatedAt.UTC(),
		Author:    doc.User,
		System:    doc.System,
	}
	if doc.Image != "" || doc.Audio != "" || doc.Location != nil {
		m.Attachment = &Attachment{
			ImageURL: doc.Image,
			AudioURL: doc.Audio,
			Location: doc.Location,
		}
	}
	return nil
}

// Draft is what the presentation layer hands to Send. Attachment capture and
// upload happen before this point; only finished URLs or coordinates arrive here.
type Draft struct {
	Text       *string     `json:"text,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

func (d Draft) Validate() error {
	if d.Text == nil && d.Attachment == nil {
		return errors.New("draft must carry text or an attachment")
	}
	if d.Text != nil && *d.Text == "" && d.Attachment == nil {
		return errors.New("draft text is empty")
	}
	return d.Attachment.Validate()
}

// CloneMessages returns a copy of the slice; messages are immutable so a
// shallow copy of each element is enough.
func CloneMessages(list []Message) []Message {
	out := make([]Message, len(list))
	copy(out, list)
	return out
}
