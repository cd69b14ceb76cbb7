package models

// MessageKind classifies a captured conversation item.
type MessageKind string

const (
	KindText   MessageKind = "text"
	KindMedia  MessageKind = "media"
	KindSystem MessageKind = "system"
)

// Placeholder texts for items that carry no readable body.
const (
	PlaceholderSticker = "[Sticker]"
	PlaceholderMedia   = "[Media/Photo]"
	PlaceholderDeleted = "[Deleted]"
)

// DefaultSender is used when a row carries no sender metadata.
const DefaultSender = "System"

// MessageRecord is one normalized item of a conversation. Records are values:
// they are created by the extractor on every sample and never mutated.
type MessageRecord struct {
	ID        string      `yaml:"id" json:"id"`
	Timestamp string      `yaml:"timestamp" json:"timestamp"`
	Sender    string      `yaml:"sender" json:"sender"`
	Text      string      `yaml:"text" json:"text"`
	Quote     string      `yaml:"quote,omitempty" json:"quote,omitempty"`
	Kind      MessageKind `yaml:"kind" json:"kind"`
}

// Preview returns a short "sender: text..." label for status messages.
func (r MessageRecord) Preview() string {
	text := []rune(r.Text)
	if len(text) > 20 {
		return r.Sender + ": " + string(text[:20]) + "..."
	}
	return r.Sender + ": " + string(text)
}

// Usable reports whether the record may appear in a transcript. Text records
// need a body; media and system records always carry a placeholder.
func (r MessageRecord) Usable() bool {
	if r.Kind == KindText {
		return r.Text != ""
	}
	return true
}
