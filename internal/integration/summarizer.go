package integration

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/valter-silva-au/chatrange/internal/core"
)

// DefaultSummaryModel is the model used when none is configured.
const DefaultSummaryModel = "claude-3-haiku-20240307"

// summaryPrompt is the system prompt for conversation summaries.
const summaryPrompt = `You are a chat conversation summarizer. Analyze the conversation and provide:

1. **Main Topics**: What were the key subjects discussed?
2. **Key Decisions**: Any decisions made or agreements reached
3. **Action Items**: Tasks assigned or commitments made (with who if mentioned)
4. **Important Info**: Critical details, dates, or information shared

Keep it concise and well-organized. Lines starting with "> " continue the previous speaker; lines starting with "|" quote an earlier message.`

// SummarizerOptions configures the Anthropic summarizer.
type SummarizerOptions struct {
	Model          string
	MaxTokens      int
	MaxRetries     int
	RetryBaseDelay time.Duration
	// APIKey overrides ANTHROPIC_API_KEY.
	APIKey string
}

// ErrNoAPIKey is returned when no Anthropic key is configured.
var ErrNoAPIKey = errors.New("no API key: set ANTHROPIC_API_KEY")

// requestFunc performs one summarization request.
type requestFunc func(ctx context.Context, system, user string) (string, error)

// AnthropicSummarizer summarizes transcripts with a Claude model.
type AnthropicSummarizer struct {
	opts    SummarizerOptions
	request requestFunc
}

var _ core.Summarizer = (*AnthropicSummarizer)(nil)

// NewAnthropicSummarizer creates a summarizer, resolving the API key from
// opts or the environment.
func NewAnthropicSummarizer(opts SummarizerOptions) (*AnthropicSummarizer, error) {
	if opts.Model == "" {
		opts.Model = DefaultSummaryModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = time.Second
	}

	key := opts.APIKey
	if key == "" {
		key = os.Getenv("ANTHROPIC_API_KEY")
	}
	if key == "" {
		return nil, ErrNoAPIKey
	}

	client := anthropic.NewClient(option.WithAPIKey(key))
	s := &AnthropicSummarizer{opts: opts}
	s.request = func(ctx context.Context, system, user string) (string, error) {
		resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(opts.Model),
			MaxTokens: int64(opts.MaxTokens),
			System: []anthropic.TextBlockParam{
				{Text: system},
			},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
			},
		})
		if err != nil {
			return "", fmt.Errorf("summary request: %w", err)
		}

		var result strings.Builder
		for _, block := range resp.Content {
			if block.Type == "text" {
				result.WriteString(block.Text)
			}
		}
		return result.String(), nil
	}
	return s, nil
}

// Name identifies the model used.
func (s *AnthropicSummarizer) Name() string {
	return "anthropic:" + s.opts.Model
}

// Summarize sends the transcript to the model, retrying rate limits, server
// errors and timeouts with exponential backoff.
func (s *AnthropicSummarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", errors.New("empty transcript")
	}

	var lastErr error
	for attempt := 0; attempt <= s.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := s.opts.RetryBaseDelay * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := s.request(ctx, summaryPrompt, "Conversation:\n"+transcript)
		if err == nil {
			if strings.TrimSpace(result) == "" {
				return "", errors.New("model returned an empty summary")
			}
			return result, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return "", err
		}
	}
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// isRetryable checks if an error should be retried.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()

	if strings.Contains(errStr, "rate_limit") || strings.Contains(errStr, "429") {
		return true
	}
	if strings.Contains(errStr, "500") || strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") || strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "overloaded") {
		return true
	}
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline") {
		return true
	}
	return false
}

// HeuristicSummarizer builds a summary from the transcript structure alone.
type HeuristicSummarizer struct{}

var _ core.Summarizer = HeuristicSummarizer{}

// Name identifies the heuristic source.
func (HeuristicSummarizer) Name() string { return "heuristic" }

var (
	headerPattern = regexp.MustCompile(`^(?:\[([^\]]*)\] )?([^:]+): (.*)$`)
	actionPattern = regexp.MustCompile(`(?i)\b(todo|will|let's|can you|could you|please|need to|deadline|by (monday|tuesday|wednesday|thursday|friday|tomorrow))\b`)
)

type heuristicLine struct {
	timestamp, sender, text string
}

// Summarize lists participants, counts, the time span, the opening and
// closing lines and likely action items.
func (HeuristicSummarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	var (
		lines        []heuristicLine
		participants []string
		seen         = make(map[string]bool)
		blocks       int
		current      heuristicLine
	)
	for _, block := range strings.Split(transcript, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		for i, raw := range strings.Split(block, "\n") {
			switch {
			case i == 0:
				m := headerPattern.FindStringSubmatch(raw)
				if m == nil {
					current = heuristicLine{sender: "Unknown", text: raw}
				} else {
					current = heuristicLine{timestamp: m[1], sender: m[2], text: m[3]}
				}
				blocks++
				if !seen[current.sender] {
					seen[current.sender] = true
					participants = append(participants, current.sender)
				}
				lines = append(lines, current)
			case strings.HasPrefix(raw, "> "):
				lines = append(lines, heuristicLine{timestamp: current.timestamp, sender: current.sender, text: strings.TrimPrefix(raw, "> ")})
			}
		}
	}
	if len(lines) == 0 {
		return "", errors.New("empty transcript")
	}

	var b strings.Builder
	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- **Participants**: %s\n", strings.Join(participants, ", "))
	fmt.Fprintf(&b, "- **Messages**: %d in %d blocks\n", len(lines), blocks)
	if first, last := lines[0].timestamp, lines[len(lines)-1].timestamp; first != "" && last != "" {
		fmt.Fprintf(&b, "- **Time span**: %s to %s\n", first, last)
	}
	fmt.Fprintf(&b, "- **Opens with**: %s: %q\n", lines[0].sender, clip(lines[0].text, 80))
	fmt.Fprintf(&b, "- **Ends with**: %s: %q\n", lines[len(lines)-1].sender, clip(lines[len(lines)-1].text, 80))

	var actions []string
	for _, l := range lines {
		if actionPattern.MatchString(l.text) {
			actions = append(actions, fmt.Sprintf("%s: %s", l.sender, clip(l.text, 100)))
		}
		if len(actions) == 5 {
			break
		}
	}
	if len(actions) > 0 {
		b.WriteString("\n### Possible action items\n\n")
		for _, a := range actions {
			b.WriteString("- " + a + "\n")
		}
	}
	return b.String(), nil
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// FallbackSummarizer tries Primary and, if it is nil or fails, Fallback.
type FallbackSummarizer struct {
	Primary  core.Summarizer
	Fallback core.Summarizer
	// OnFallback is told why the primary summarizer was skipped.
	OnFallback func(err error)
	// Unavailable is reported to OnFallback when Primary is nil.
	Unavailable error

	last string
}

var _ core.Summarizer = (*FallbackSummarizer)(nil)

// Name reports the source of the most recent summary.
func (f *FallbackSummarizer) Name() string {
	if f.last != "" {
		return f.last
	}
	if f.Primary != nil {
		return f.Primary.Name()
	}
	return f.Fallback.Name()
}

// Summarize implements core.Summarizer.
func (f *FallbackSummarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	if f.Primary != nil {
		out, err := f.Primary.Summarize(ctx, transcript)
		if err == nil {
			f.last = f.Primary.Name()
			return out, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if f.OnFallback != nil {
			f.OnFallback(err)
		}
	} else if f.Unavailable != nil && f.OnFallback != nil {
		f.OnFallback(f.Unavailable)
	}
	out, err := f.Fallback.Summarize(ctx, transcript)
	if err != nil {
		return "", err
	}
	f.last = f.Fallback.Name()
	return out, nil
}

// NewSummarizer returns the Anthropic summarizer backed by the heuristic one,
// or the heuristic alone when no API key is available. onFallback is called
// on every summary the heuristic produces instead.
func NewSummarizer(opts SummarizerOptions, onFallback func(error)) core.Summarizer {
	fb := &FallbackSummarizer{Fallback: HeuristicSummarizer{}, OnFallback: onFallback}
	primary, err := NewAnthropicSummarizer(opts)
	if err != nil {
		fb.Unavailable = err
		return fb
	}
	fb.Primary = primary
	return fb
}
