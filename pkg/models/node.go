package models

// Rect is the rendered bounding box of a row in viewport coordinates.
type Rect struct {
	X      float64 `yaml:"x" json:"x"`
	Y      float64 `yaml:"y" json:"y"`
	Width  float64 `yaml:"width" json:"width"`
	Height float64 `yaml:"height" json:"height"`
}

// Empty reports whether the row has no rendered size (unmounted or placeholder).
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Segment is one inline piece of a message body: either plain text or an
// inline graphic (emoji, glyph) identified by its accessible label.
type Segment struct {
	Text string `yaml:"text,omitempty" json:"text,omitempty"`
	Alt  string `yaml:"alt,omitempty" json:"alt,omitempty"`
}

// CopyableBlock is the accessible "copy" representation a text message exposes.
type CopyableBlock struct {
	// PrePlainText is the structured metadata, e.g. "[10:42, 3/14/2024] Alice: ".
	PrePlainText string    `yaml:"pre_plain_text,omitempty" json:"prePlainText,omitempty"`
	Segments     []Segment `yaml:"segments,omitempty" json:"segments,omitempty"`
	// Text is the raw inner text of the block, used when no segments were found.
	Text string `yaml:"text,omitempty" json:"text,omitempty"`
}

// QuoteBlock is the quoted/reply context rendered above a message body.
type QuoteBlock struct {
	Sender   string    `yaml:"sender,omitempty" json:"sender,omitempty"`
	Segments []Segment `yaml:"segments,omitempty" json:"segments,omitempty"`
}

// Image is an embedded graphic found in a row.
type Image struct {
	Src string `yaml:"src,omitempty" json:"src,omitempty"`
	Alt string `yaml:"alt,omitempty" json:"alt,omitempty"`
}

// RowNode is a host-neutral snapshot of one rendered item in the conversation
// view. Host surfaces (live browser, simulator, fixtures) all produce RowNodes.
type RowNode struct {
	DataID    string         `yaml:"data_id,omitempty" json:"dataId,omitempty"`
	Rect      Rect           `yaml:"rect" json:"rect"`
	Copyable  *CopyableBlock `yaml:"copyable,omitempty" json:"copyable,omitempty"`
	Quote     *QuoteBlock    `yaml:"quote,omitempty" json:"quote,omitempty"`
	TimeLabel string         `yaml:"time_label,omitempty" json:"timeLabel,omitempty"`
	Images    []Image        `yaml:"images,omitempty" json:"images,omitempty"`
	MediaPlay bool           `yaml:"media_play,omitempty" json:"mediaPlay,omitempty"`
	InnerText string         `yaml:"inner_text,omitempty" json:"innerText,omitempty"`
}
