package integration

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func stubSummarizer(calls *int, responses ...error) *AnthropicSummarizer {
	s := &AnthropicSummarizer{opts: SummarizerOptions{
		Model:          "test-model",
		MaxRetries:     3,
		RetryBaseDelay: time.Millisecond,
	}}
	s.request = func(ctx context.Context, system, user string) (string, error) {
		i := *calls
		*calls++
		if i < len(responses) && responses[i] != nil {
			return "", responses[i]
		}
		if !strings.Contains(system, "Action Items") || !strings.HasPrefix(user, "Conversation:\n") {
			return "", errors.New("unexpected prompt")
		}
		return "## Main Topics\n- shipping", nil
	}
	return s
}

func TestAnthropicSummarizer_Success(t *testing.T) {
	calls := 0
	s := stubSummarizer(&calls)
	out, err := s.Summarize(context.Background(), "[10:00] Alice: hi")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if !strings.Contains(out, "Main Topics") {
		t.Errorf("unexpected summary %q", out)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if s.Name() != "anthropic:test-model" {
		t.Errorf("unexpected name %s", s.Name())
	}
}

func TestAnthropicSummarizer_RetriesTransientErrors(t *testing.T) {
	calls := 0
	s := stubSummarizer(&calls, errors.New("429 rate_limit_error"), errors.New("503 overloaded"))
	if _, err := s.Summarize(context.Background(), "[10:00] Alice: hi"); err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestAnthropicSummarizer_StopsOnPermanentError(t *testing.T) {
	calls := 0
	s := stubSummarizer(&calls, errors.New("401 invalid x-api-key"))
	if _, err := s.Summarize(context.Background(), "[10:00] Alice: hi"); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected no retry, got %d calls", calls)
	}
}

func TestAnthropicSummarizer_MaxRetries(t *testing.T) {
	calls := 0
	transient := errors.New("500 internal")
	s := stubSummarizer(&calls, transient, transient, transient, transient, transient)
	_, err := s.Summarize(context.Background(), "[10:00] Alice: hi")
	if err == nil || !errors.Is(err, transient) {
		t.Fatalf("expected wrapped transient error, got %v", err)
	}
	if calls != 4 {
		t.Errorf("expected 4 attempts, got %d", calls)
	}
}

func TestAnthropicSummarizer_EmptyTranscript(t *testing.T) {
	calls := 0
	s := stubSummarizer(&calls)
	if _, err := s.Summarize(context.Background(), "  "); err == nil {
		t.Error("expected error for empty transcript")
	}
	if calls != 0 {
		t.Error("expected no request for empty transcript")
	}
}

func TestNewAnthropicSummarizer_RequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	if _, err := NewAnthropicSummarizer(SummarizerOptions{}); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}

	s, err := NewAnthropicSummarizer(SummarizerOptions{APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("NewAnthropicSummarizer: %v", err)
	}
	if s.Name() != "anthropic:"+DefaultSummaryModel {
		t.Errorf("unexpected default model %s", s.Name())
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("rate_limit_error"), true},
		{errors.New("status 502"), true},
		{errors.New("context deadline exceeded"), true},
		{errors.New("invalid_request_error"), false},
	}
	for _, tt := range tests {
		if got := isRetryable(tt.err); got != tt.want {
			t.Errorf("isRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

const heuristicTranscript = `[09:00] Alice: morning all
> can you review the release notes by friday?

[09:05] Bob: sure, I will do it after lunch
    | Alice: can you review the release notes by friday?

[09:10] Carol: thanks both`

func TestHeuristicSummarizer(t *testing.T) {
	out, err := HeuristicSummarizer{}.Summarize(context.Background(), heuristicTranscript)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	for _, want := range []string{
		"**Participants**: Alice, Bob, Carol",
		"**Messages**: 4 in 3 blocks",
		"**Time span**: 09:00 to 09:10",
		`**Opens with**: Alice: "morning all"`,
		`**Ends with**: Carol: "thanks both"`,
		"Possible action items",
		"Alice: can you review the release notes by friday?",
		"Bob: sure, I will do it after lunch",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}

	if _, err := (HeuristicSummarizer{}).Summarize(context.Background(), "\n\n"); err == nil {
		t.Error("expected error for empty transcript")
	}
}

type failingSummarizer struct{ err error }

func (f failingSummarizer) Summarize(context.Context, string) (string, error) { return "", f.err }
func (f failingSummarizer) Name() string                                      { return "failing" }

func TestFallbackSummarizer(t *testing.T) {
	var reasons []error
	fb := &FallbackSummarizer{
		Primary:    failingSummarizer{err: errors.New("boom")},
		Fallback:   HeuristicSummarizer{},
		OnFallback: func(err error) { reasons = append(reasons, err) },
	}
	out, err := fb.Summarize(context.Background(), heuristicTranscript)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if !strings.Contains(out, "Participants") {
		t.Errorf("expected heuristic summary, got %q", out)
	}
	if fb.Name() != "heuristic" {
		t.Errorf("expected heuristic source, got %s", fb.Name())
	}
	if len(reasons) != 1 {
		t.Errorf("expected one fallback reason, got %d", len(reasons))
	}

	calls := 0
	fb = &FallbackSummarizer{Primary: stubSummarizer(&calls), Fallback: HeuristicSummarizer{}}
	if _, err := fb.Summarize(context.Background(), heuristicTranscript); err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if fb.Name() != "anthropic:test-model" {
		t.Errorf("expected primary source, got %s", fb.Name())
	}
}

func TestNewSummarizer_WithoutKeyUsesHeuristic(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	var reason error
	s := NewSummarizer(SummarizerOptions{}, func(err error) { reason = err })
	if reason != nil {
		t.Errorf("fallback reported before any summary: %v", reason)
	}
	if s.Name() != "heuristic" {
		t.Errorf("expected heuristic summarizer, got %s", s.Name())
	}

	if _, err := s.Summarize(context.Background(), "[09:00] Alice: hello\n[09:01] Bob: hi"); err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if !errors.Is(reason, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey reason, got %v", reason)
	}
}
