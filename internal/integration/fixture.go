package integration

import (
	"fmt"
	"os"
	"strings"

	"github.com/valter-silva-au/chatrange/pkg/models"
	"gopkg.in/yaml.v3"
)

// Fixture row kinds.
const (
	FixtureText    = "text"
	FixturePhoto   = "photo"
	FixtureVideo   = "video"
	FixtureSticker = "sticker"
	FixtureDeleted = "deleted"
	FixtureSystem  = "system"
)

// FixtureQuote is the quoted message a fixture row replies to.
type FixtureQuote struct {
	Sender string `yaml:"sender"`
	Text   string `yaml:"text"`
}

// FixtureRow is one conversation item in a YAML fixture.
type FixtureRow struct {
	ID     string        `yaml:"id"`
	Sender string        `yaml:"sender"`
	Time   string        `yaml:"time"`
	Date   string        `yaml:"date,omitempty"`
	Text   string        `yaml:"text"`
	Kind   string        `yaml:"kind,omitempty"`
	Quote  *FixtureQuote `yaml:"quote,omitempty"`
	Height float64       `yaml:"height,omitempty"`
}

// Fixture is a recorded or hand-written conversation used to drive a
// VirtualPage.
type Fixture struct {
	Title string       `yaml:"title,omitempty"`
	Rows  []FixtureRow `yaml:"rows"`
}

// LoadFixture reads a YAML conversation fixture.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path from trusted caller
	if err != nil {
		return nil, fmt.Errorf("reading fixture %s: %w", path, err)
	}
	return ParseFixture(data)
}

// ParseFixture decodes and validates fixture YAML.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing fixture: %w", err)
	}
	seen := make(map[string]bool, len(f.Rows))
	for i, r := range f.Rows {
		switch r.Kind {
		case "", FixtureText, FixturePhoto, FixtureVideo, FixtureSticker, FixtureDeleted, FixtureSystem:
		default:
			return nil, fmt.Errorf("fixture row %d: unknown kind %q", i, r.Kind)
		}
		if r.ID != "" {
			if seen[r.ID] {
				return nil, fmt.Errorf("fixture row %d: duplicate id %q", i, r.ID)
			}
			seen[r.ID] = true
		}
	}
	return &f, nil
}

// Conversation converts the fixture into renderable rows.
func (f *Fixture) Conversation() []ConversationRow {
	out := make([]ConversationRow, len(f.Rows))
	for i, r := range f.Rows {
		out[i] = ConversationRow{Node: r.Node(), Height: r.Height}
	}
	return out
}

// Node renders the fixture row the way the host would expose it.
func (r FixtureRow) Node() models.RowNode {
	node := models.RowNode{DataID: r.ID, TimeLabel: r.Time}
	switch r.Kind {
	case FixturePhoto:
		node.Images = []models.Image{{Src: "blob:https://host/media/" + r.ID}}
	case FixtureVideo:
		node.MediaPlay = true
	case FixtureSticker:
		node.Images = []models.Image{{Src: "https://host/sticker/" + r.ID + ".webp"}}
	case FixtureDeleted:
		node.InnerText = "This message was deleted " + r.Time
	case FixtureSystem:
		node.InnerText = r.Text
	default:
		stamp := r.Time
		if r.Date != "" {
			stamp += ", " + r.Date
		}
		node.Copyable = &models.CopyableBlock{
			PrePlainText: fmt.Sprintf("[%s] %s: ", stamp, r.Sender),
			Segments:     []models.Segment{{Text: r.Text}},
		}
		if r.Quote != nil {
			node.Quote = &models.QuoteBlock{
				Sender:   r.Quote.Sender,
				Segments: []models.Segment{{Text: r.Quote.Text}},
			}
		}
	}
	return node
}

var syntheticPhrases = []string{
	"did you see the latest numbers",
	"yes, looks like we are on track",
	"can we move the review to thursday",
	"sure, I will update the invite",
	"the deploy went out this morning",
	"great, any issues so far",
	"nothing yet, monitoring closely",
	"let's sync again after lunch",
}

// SyntheticConversation generates n fixture rows between senders, one
// minute apart from 09:00. Every 13th row is a photo and every 29th a
// system note.
func SyntheticConversation(n int, senders []string) *Fixture {
	if len(senders) == 0 {
		senders = []string{"Alice", "Bob"}
	}
	f := &Fixture{Title: fmt.Sprintf("synthetic conversation of %d messages", n)}
	for i := 0; i < n; i++ {
		minute := 9*60 + i
		row := FixtureRow{
			ID:     fmt.Sprintf("msg-%04d", i),
			Sender: senders[(i/3+i%2)%len(senders)],
			Time:   fmt.Sprintf("%02d:%02d", (minute/60)%24, minute%60),
			Text:   fmt.Sprintf("%s (#%d)", syntheticPhrases[i%len(syntheticPhrases)], i),
			Height: DefaultRowHeight + float64((i%4)*12),
		}
		switch {
		case i > 0 && i%29 == 0:
			row.Kind = FixtureSystem
			row.Text = strings.ToUpper(row.Sender[:1]) + row.Sender[1:] + " changed the group description"
		case i > 0 && i%13 == 0:
			row.Kind = FixturePhoto
		}
		f.Rows = append(f.Rows, row)
	}
	return f
}
