package core

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/valter-silva-au/chatrange/pkg/models"
)

// DefaultFingerprintPrefix is the number of leading text runes folded into a
// fingerprint id when the host provides no stable identifier.
const DefaultFingerprintPrefix = 15

var (
	// preTextPattern parses copy metadata of the form "[10:42, 3/14/2024] Alice: ".
	preTextPattern = regexp.MustCompile(`^\s*\[([^\]]*)\]\s*(.*)$`)

	// trailingTimePattern matches a clock token at the end of a string.
	trailingTimePattern = regexp.MustCompile(`(?i)\s*\b\d{1,2}:\d{2}(\s?[ap]\.?\s?m\.?)?\s*$`)

	horizontalSpace = regexp.MustCompile(`[ \t\x{00a0}]+`)
)

// deletionMarkers are the phrases a host renders in place of a removed message.
var deletionMarkers = []string{"message was deleted", "deleted this message"}

// Extractor turns rendered rows into MessageRecords.
type Extractor struct {
	fingerprintPrefix int
}

// NewExtractor creates an Extractor. A non-positive prefix uses
// DefaultFingerprintPrefix.
func NewExtractor(fingerprintPrefix int) *Extractor {
	if fingerprintPrefix <= 0 {
		fingerprintPrefix = DefaultFingerprintPrefix
	}
	return &Extractor{fingerprintPrefix: fingerprintPrefix}
}

// Extract classifies a row and returns its record. The boolean is false when
// the row carries no extractable content (layout chrome, empty notes).
func (x *Extractor) Extract(row models.RowNode) (models.MessageRecord, bool) {
	rec := models.MessageRecord{
		Sender:    models.DefaultSender,
		Timestamp: strings.TrimSpace(row.TimeLabel),
		Kind:      models.KindSystem,
	}

	switch {
	case row.Copyable != nil:
		x.extractText(row, &rec)
	case hasSticker(row.Images):
		rec.Kind = models.KindMedia
		rec.Text = models.PlaceholderSticker
	case len(row.Images) > 0 || row.MediaPlay:
		rec.Kind = models.KindMedia
		rec.Text = models.PlaceholderMedia
	case announcesDeletion(row.InnerText):
		rec.Text = models.PlaceholderDeleted
	default:
		text := trailingTimePattern.ReplaceAllString(row.InnerText, "")
		rec.Text = normalizeText(text)
		if rec.Text == "" {
			return models.MessageRecord{}, false
		}
	}

	if rec.Kind == models.KindText && rec.Text == "" && rec.Quote == "" {
		return models.MessageRecord{}, false
	}

	rec.ID = row.DataID
	if rec.ID == "" {
		rec.ID = Fingerprint(rec.Timestamp, rec.Sender, rec.Text, x.fingerprintPrefix)
	}
	return rec, true
}

func (x *Extractor) extractText(row models.RowNode, rec *models.MessageRecord) {
	rec.Kind = models.KindText
	meta := row.Copyable.PrePlainText

	if m := preTextPattern.FindStringSubmatch(meta); m != nil {
		if ts := strings.TrimSpace(m[1]); ts != "" {
			rec.Timestamp = ts
		}
		sender := strings.TrimSpace(m[2])
		sender = strings.TrimSpace(strings.TrimSuffix(sender, ":"))
		if sender != "" {
			rec.Sender = sender
		}
	}

	var body string
	if len(row.Copyable.Segments) > 0 {
		body = joinSegments(row.Copyable.Segments)
	} else {
		body = strings.Replace(row.Copyable.Text, meta, "", 1)
	}
	body = normalizeText(body)
	body = stripTrailingLabel(body, strings.TrimSpace(row.TimeLabel))
	rec.Text = body

	if row.Quote != nil {
		quote := normalizeText(joinSegments(row.Quote.Segments))
		if quote != "" && row.Quote.Sender != "" {
			quote = strings.TrimSpace(row.Quote.Sender) + ": " + quote
		}
		rec.Quote = quote
	}
}

// Fingerprint builds the fallback identity for a row without a host id from
// its timestamp, sender and the first prefix runes of its text. Letters, digits,
// marks and symbols of any script are kept; spaces and punctuation are not.
func Fingerprint(timestamp, sender, text string, prefix int) string {
	runes := []rune(text)
	if prefix > 0 && len(runes) > prefix {
		runes = runes[:prefix]
	}
	safe := make([]rune, 0, len(runes))
	for _, r := range runes {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || unicode.IsSymbol(r) {
			safe = append(safe, r)
		}
	}
	return "gen_" + timestamp + "_" + sender + "_" + string(safe)
}

// joinSegments renders inline text, substituting each inline graphic with its
// accessible label so expressive glyphs survive extraction.
func joinSegments(segments []models.Segment) string {
	var b strings.Builder
	for _, s := range segments {
		if s.Alt != "" {
			b.WriteString(s.Alt)
			continue
		}
		b.WriteString(s.Text)
	}
	return b.String()
}

// normalizeText collapses horizontal whitespace, trims every line and drops
// blank lines.
func normalizeText(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(horizontalSpace.ReplaceAllString(line, " "))
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// stripTrailingLabel removes a copy of the row's time label that some
// renderings append to the body. A body consisting only of the label is kept.
func stripTrailingLabel(body, label string) string {
	if label == "" || body == label || !strings.HasSuffix(body, label) {
		return body
	}
	return strings.TrimSpace(strings.TrimSuffix(body, label))
}

func hasSticker(images []models.Image) bool {
	for _, img := range images {
		if strings.Contains(strings.ToLower(img.Src), "sticker") {
			return true
		}
	}
	return false
}

func announcesDeletion(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range deletionMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
