package core

import "context"

// Summarizer turns a formatted transcript into a short summary. The engine
// never calls it; the CLI and MCP server do after a capture is archived.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
	// Name identifies the summary source, e.g. "anthropic:claude-3-haiku-20240307".
	Name() string
}
