// Package mcp provides an MCP (Model Context Protocol) server that exposes
// chatrange captures as MCP tools for AI assistants.
package mcp

import (
	"context"
	"fmt"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/valter-silva-au/chatrange/internal/core"
	"github.com/valter-silva-au/chatrange/internal/integration"
	"github.com/valter-silva-au/chatrange/internal/observability"
	"github.com/valter-silva-au/chatrange/internal/storage"
	"github.com/valter-silva-au/chatrange/pkg/models"
)

// Capturer runs a capture over a fixture or synthetic conversation.
type Capturer interface {
	Run(ctx context.Context, req integration.SimulationRequest) (*core.Result, error)
}

// Services are the chatrange dependencies exposed as tools. Recorder,
// MetricsCalc and AlertEngine may be nil if the corresponding feature is off.
type Services struct {
	Capturer    Capturer
	Archive     storage.CaptureArchive
	Recorder    core.Recorder
	MetricsCalc observability.MetricsCalculator
	AlertEngine observability.AlertEngine
}

// Server wraps chatrange services and exposes them as MCP tools.
type Server struct {
	server *gomcp.Server
	svc    Services
}

// NewServer creates a new MCP server with the given service dependencies.
func NewServer(svc Services, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{svc: svc}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "chatrange", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run starts the MCP server on stdio, blocking until the client disconnects
// or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type captureRangeInput struct {
	Fixture        string  `json:"fixture,omitempty" jsonschema:"path to a YAML conversation fixture; omit to use a synthetic conversation"`
	Synthetic      int     `json:"synthetic,omitempty" jsonschema:"number of messages in the synthetic conversation (default 200)"`
	StartID        string  `json:"start_id" jsonschema:"required,row id of the first anchor (e.g. msg-0010)"`
	EndID          string  `json:"end_id" jsonschema:"required,row id of the second anchor"`
	Mode           string  `json:"mode,omitempty" jsonschema:"how the simulated user reaches the end anchor: manual or search"`
	ViewportHeight float64 `json:"viewport_height,omitempty" jsonschema:"viewport height in pixels (default 600)"`
	Archive        bool    `json:"archive,omitempty" jsonschema:"store the capture in the archive"`
	Summarize      bool    `json:"summarize,omitempty" jsonschema:"summarize the archived capture (implies archive)"`
}

type searchOutput struct {
	TargetID  string `json:"target_id"`
	Direction string `json:"direction"`
	Outcome   string `json:"outcome"`
	Scrolls   int    `json:"scrolls"`
	Added     int    `json:"added"`
}

type captureRangeOutput struct {
	CaptureID     string         `json:"capture_id,omitempty"`
	SessionID     string         `json:"session_id"`
	Source        string         `json:"source"`
	Messages      int            `json:"messages"`
	Blocks        int            `json:"blocks"`
	Participants  []string       `json:"participants,omitempty"`
	StartMatch    string         `json:"start_match"`
	EndMatch      string         `json:"end_match"`
	Swapped       bool           `json:"swapped"`
	Duplicates    int            `json:"duplicates"`
	Searches      []searchOutput `json:"searches,omitempty"`
	Warnings      []string       `json:"warnings,omitempty"`
	Transcript    string         `json:"transcript"`
	Summary       string         `json:"summary,omitempty"`
	SummarySource string         `json:"summary_source,omitempty"`
}

type listCapturesInput struct {
	Participant string `json:"participant,omitempty" jsonschema:"only captures involving this sender (case-insensitive)"`
	Source      string `json:"source,omitempty" jsonschema:"only captures from this source"`
	Since       string `json:"since,omitempty" jsonschema:"only captures newer than this window (e.g. 7d, 24h)"`
	Limit       int    `json:"limit,omitempty" jsonschema:"maximum number of captures to return, newest first"`
}

type captureOutput struct {
	ID            string   `json:"id"`
	SessionID     string   `json:"session_id"`
	Source        string   `json:"source"`
	StartID       string   `json:"start_id"`
	EndID         string   `json:"end_id"`
	StartMatch    string   `json:"start_match"`
	EndMatch      string   `json:"end_match"`
	Messages      int      `json:"messages"`
	Blocks        int      `json:"blocks"`
	Participants  []string `json:"participants,omitempty"`
	CapturedAt    string   `json:"captured_at"`
	Summary       string   `json:"summary,omitempty"`
	SummarySource string   `json:"summary_source,omitempty"`
}

type listCapturesOutput struct {
	Captures []captureOutput `json:"captures"`
	Count    int             `json:"count"`
}

type getCaptureInput struct {
	CaptureID      string `json:"capture_id" jsonschema:"required,the archived capture identifier (e.g. C-00003)"`
	IncludeRecords bool   `json:"include_records,omitempty" jsonschema:"also return the individual message records"`
}

type recordOutput struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Quote     string `json:"quote,omitempty"`
	Kind      string `json:"kind"`
}

type getCaptureOutput struct {
	Capture    captureOutput  `json:"capture"`
	Transcript string         `json:"transcript"`
	Records    []recordOutput `json:"records,omitempty"`
}

type summarizeCaptureInput struct {
	CaptureID string `json:"capture_id" jsonschema:"required,the archived capture identifier (e.g. C-00003)"`
}

type summarizeCaptureOutput struct {
	CaptureID string `json:"capture_id"`
	Summary   string `json:"summary"`
	Source    string `json:"source"`
}

type getMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window for metrics (e.g. 7d, 30d, 24h). Defaults to 7d."`
}

type metricsOutput struct {
	SessionsStarted   int            `json:"sessions_started"`
	SessionsCompleted int            `json:"sessions_completed"`
	SessionsFailed    int            `json:"sessions_failed"`
	SessionsCancelled int            `json:"sessions_cancelled"`
	SuccessRate       float64        `json:"success_rate"`
	FailuresByCode    map[string]int `json:"failures_by_code"`
	SearchesByOutcome map[string]int `json:"searches_by_outcome"`
	StartMatches      map[string]int `json:"start_matches"`
	EndMatches        map[string]int `json:"end_matches"`
	MessagesCaptured  int            `json:"messages_captured"`
	DuplicatesDropped int            `json:"duplicates_dropped"`
	SampleFailures    int            `json:"sample_failures"`
	Archived          int            `json:"archived"`
	Summaries         int            `json:"summaries"`
	SummaryFallbacks  int            `json:"summary_fallbacks"`
	EventCount        int            `json:"event_count"`
	OldestEvent       string         `json:"oldest_event,omitempty"`
	NewestEvent       string         `json:"newest_event,omitempty"`
}

type getAlertsInput struct{}

type alertOutput struct {
	ID          string `json:"id"`
	Condition   string `json:"condition"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	TriggeredAt string `json:"triggered_at"`
}

type getAlertsOutput struct {
	Alerts []alertOutput `json:"alerts"`
	Count  int           `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "capture_range",
		Description: "Capture the messages between two anchors of a simulated virtualized conversation. Returns the transcript, match strategies and search outcomes.",
	}, s.handleCaptureRange)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_captures",
		Description: "List archived captures, newest first, with optional participant, source and time filters.",
	}, s.handleListCaptures)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_capture",
		Description: "Get an archived capture by ID, including its transcript and optionally its message records.",
	}, s.handleGetCapture)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "summarize_capture",
		Description: "Summarize an archived capture and store the summary with it.",
	}, s.handleSummarizeCapture)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics",
		Description: "Get aggregated capture metrics from the event log: sessions, failures by code, search outcomes and anchor match strategies.",
	}, s.handleGetMetrics)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_alerts",
		Description: "Evaluate and return active capture health alerts (failure rate, search misses, sampler failures, stale sessions).",
	}, s.handleGetAlerts)
}

// --- Tool handlers ---

func (s *Server) handleCaptureRange(ctx context.Context, _ *gomcp.CallToolRequest, input captureRangeInput) (*gomcp.CallToolResult, captureRangeOutput, error) {
	if input.StartID == "" || input.EndID == "" {
		return errorResult("start_id and end_id are required"), captureRangeOutput{}, nil
	}
	if s.svc.Capturer == nil {
		return errorResult("capture is not available"), captureRangeOutput{}, nil
	}
	mode := integration.ScrollMode(input.Mode)
	if mode != "" && mode != integration.ScrollManual && mode != integration.ScrollSearch {
		return errorResult(fmt.Sprintf("invalid mode %q: must be manual or search", input.Mode)), captureRangeOutput{}, nil
	}
	if input.Synthetic < 0 {
		return errorResult("synthetic must not be negative"), captureRangeOutput{}, nil
	}

	res, err := s.svc.Capturer.Run(ctx, integration.SimulationRequest{
		Fixture:        input.Fixture,
		Synthetic:      input.Synthetic,
		StartID:        input.StartID,
		EndID:          input.EndID,
		Mode:           mode,
		ViewportHeight: input.ViewportHeight,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("capturing range: %s", err)), captureRangeOutput{}, nil
	}

	out := resultToOutput(res)
	if !input.Archive && !input.Summarize {
		return nil, out, nil
	}
	if s.svc.Recorder == nil {
		return errorResult("capture archive not available"), out, nil
	}

	id, err := s.svc.Recorder.Record(res)
	if err != nil {
		return errorResult(fmt.Sprintf("archiving capture: %s", err)), out, nil
	}
	out.CaptureID = id

	if input.Summarize {
		summary, source, err := s.svc.Recorder.Summarize(ctx, id)
		if err != nil {
			return errorResult(fmt.Sprintf("summarizing capture %s: %s", id, err)), out, nil
		}
		out.Summary = summary
		out.SummarySource = source
	}
	return nil, out, nil
}

func (s *Server) handleListCaptures(_ context.Context, _ *gomcp.CallToolRequest, input listCapturesInput) (*gomcp.CallToolResult, listCapturesOutput, error) {
	if s.svc.Archive == nil {
		return errorResult("capture archive not available"), listCapturesOutput{}, nil
	}

	filter := models.CaptureFilter{Participant: input.Participant, Source: input.Source}
	if input.Since != "" {
		since, err := parseSince(input.Since)
		if err != nil {
			return errorResult(fmt.Sprintf("parsing since duration: %s", err)), listCapturesOutput{}, nil
		}
		filter.Since = &since
	}

	captures, err := s.svc.Archive.List(filter)
	if err != nil {
		return errorResult(fmt.Sprintf("listing captures: %s", err)), listCapturesOutput{}, nil
	}

	// Newest first.
	out := listCapturesOutput{Captures: make([]captureOutput, 0, len(captures))}
	for i := len(captures) - 1; i >= 0; i-- {
		if input.Limit > 0 && len(out.Captures) == input.Limit {
			break
		}
		out.Captures = append(out.Captures, captureToOutput(captures[i]))
	}
	out.Count = len(out.Captures)
	return nil, out, nil
}

func (s *Server) handleGetCapture(_ context.Context, _ *gomcp.CallToolRequest, input getCaptureInput) (*gomcp.CallToolResult, getCaptureOutput, error) {
	if input.CaptureID == "" {
		return errorResult("capture_id is required"), getCaptureOutput{}, nil
	}
	if s.svc.Archive == nil {
		return errorResult("capture archive not available"), getCaptureOutput{}, nil
	}

	capture, err := s.svc.Archive.Get(input.CaptureID)
	if err != nil {
		return errorResult(fmt.Sprintf("getting capture %s: %s", input.CaptureID, err)), getCaptureOutput{}, nil
	}
	transcript, err := s.svc.Archive.Transcript(input.CaptureID)
	if err != nil {
		return errorResult(fmt.Sprintf("reading transcript of %s: %s", input.CaptureID, err)), getCaptureOutput{}, nil
	}

	out := getCaptureOutput{Capture: captureToOutput(*capture), Transcript: transcript}
	if input.IncludeRecords {
		records, err := s.svc.Archive.Records(input.CaptureID)
		if err != nil {
			return errorResult(fmt.Sprintf("reading records of %s: %s", input.CaptureID, err)), getCaptureOutput{}, nil
		}
		out.Records = make([]recordOutput, len(records))
		for i, r := range records {
			out.Records[i] = recordOutput{
				ID:        r.ID,
				Timestamp: r.Timestamp,
				Sender:    r.Sender,
				Text:      r.Text,
				Quote:     r.Quote,
				Kind:      string(r.Kind),
			}
		}
	}
	return nil, out, nil
}

func (s *Server) handleSummarizeCapture(ctx context.Context, _ *gomcp.CallToolRequest, input summarizeCaptureInput) (*gomcp.CallToolResult, summarizeCaptureOutput, error) {
	if input.CaptureID == "" {
		return errorResult("capture_id is required"), summarizeCaptureOutput{}, nil
	}
	if s.svc.Recorder == nil {
		return errorResult("summarizer not available"), summarizeCaptureOutput{}, nil
	}

	summary, source, err := s.svc.Recorder.Summarize(ctx, input.CaptureID)
	if err != nil {
		return errorResult(err.Error()), summarizeCaptureOutput{}, nil
	}
	return nil, summarizeCaptureOutput{CaptureID: input.CaptureID, Summary: summary, Source: source}, nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, metricsOutput, error) {
	if s.svc.MetricsCalc == nil {
		return errorResult("metrics calculator not available (event log may be disabled)"), emptyMetricsOutput(), nil
	}

	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "7d"
	}

	sinceTime, err := parseSince(sinceStr)
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyMetricsOutput(), nil
	}

	metrics, err := s.svc.MetricsCalc.Calculate(sinceTime)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), emptyMetricsOutput(), nil
	}

	out := metricsOutput{
		SessionsStarted:   metrics.SessionsStarted,
		SessionsCompleted: metrics.SessionsCompleted,
		SessionsFailed:    metrics.SessionsFailed,
		SessionsCancelled: metrics.SessionsCancelled,
		SuccessRate:       metrics.SuccessRate(),
		FailuresByCode:    metrics.FailuresByCode,
		SearchesByOutcome: metrics.SearchesByOutcome,
		StartMatches:      metrics.StartMatches,
		EndMatches:        metrics.EndMatches,
		MessagesCaptured:  metrics.MessagesCaptured,
		DuplicatesDropped: metrics.DuplicatesDropped,
		SampleFailures:    metrics.SampleFailures,
		Archived:          metrics.Archived,
		Summaries:         metrics.Summaries,
		SummaryFallbacks:  metrics.SummaryFallbacks,
		EventCount:        metrics.EventCount,
	}
	if metrics.OldestEvent != nil {
		out.OldestEvent = metrics.OldestEvent.Format(time.RFC3339)
	}
	if metrics.NewestEvent != nil {
		out.NewestEvent = metrics.NewestEvent.Format(time.RFC3339)
	}

	return nil, out, nil
}

func (s *Server) handleGetAlerts(_ context.Context, _ *gomcp.CallToolRequest, _ getAlertsInput) (*gomcp.CallToolResult, getAlertsOutput, error) {
	if s.svc.AlertEngine == nil {
		return errorResult("alert engine not available (event log may be disabled)"), getAlertsOutput{}, nil
	}

	alerts, err := s.svc.AlertEngine.Evaluate()
	if err != nil {
		return errorResult(fmt.Sprintf("evaluating alerts: %s", err)), getAlertsOutput{}, nil
	}

	out := getAlertsOutput{
		Alerts: make([]alertOutput, len(alerts)),
		Count:  len(alerts),
	}
	for i, a := range alerts {
		out.Alerts[i] = alertOutput{
			ID:          a.ID,
			Condition:   a.Condition,
			Severity:    string(a.Severity),
			Message:     a.Message,
			TriggeredAt: a.TriggeredAt.Format(time.RFC3339),
		}
	}

	return nil, out, nil
}

// --- Helpers ---

func resultToOutput(res *core.Result) captureRangeOutput {
	out := captureRangeOutput{
		SessionID:    res.SessionID,
		Source:       res.Source,
		Messages:     res.Transcript.MessageCount,
		Blocks:       res.Transcript.BlockCount,
		Participants: res.Transcript.Participants,
		Transcript:   res.Transcript.Text,
	}
	if r := res.Resolution; r != nil {
		out.StartMatch = string(r.StartMatch)
		out.EndMatch = string(r.EndMatch)
		out.Swapped = r.Swapped
		out.Duplicates = r.Duplicates
	}
	for _, sr := range res.Searches {
		out.Searches = append(out.Searches, searchOutput{
			TargetID:  sr.TargetID,
			Direction: sr.Direction.String(),
			Outcome:   string(sr.Outcome),
			Scrolls:   sr.Scrolls,
			Added:     sr.Added,
		})
	}
	for _, w := range res.Warnings {
		out.Warnings = append(out.Warnings, w.Error())
	}
	return out
}

func captureToOutput(c models.CapturedTranscript) captureOutput {
	return captureOutput{
		ID:            c.ID,
		SessionID:     c.SessionID,
		Source:        c.Source,
		StartID:       c.StartID,
		EndID:         c.EndID,
		StartMatch:    string(c.StartMatch),
		EndMatch:      string(c.EndMatch),
		Messages:      c.MessageCount,
		Blocks:        c.BlockCount,
		Participants:  c.Participants,
		CapturedAt:    c.CapturedAt.Format(time.RFC3339),
		Summary:       c.Summary,
		SummarySource: c.SummarySource,
	}
}

func emptyMetricsOutput() metricsOutput {
	return metricsOutput{
		FailuresByCode:    make(map[string]int),
		SearchesByOutcome: make(map[string]int),
		StartMatches:      make(map[string]int),
		EndMatches:        make(map[string]int),
	}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// parseSince parses a human-friendly duration string like "7d", "30d", or "24h"
// into the corresponding time in the past.
func parseSince(s string) (time.Time, error) {
	now := time.Now().UTC()

	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]
	var num int
	if _, err := fmt.Sscanf(numStr, "%d", &num); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d or h)", string(suffix))
	}
}
