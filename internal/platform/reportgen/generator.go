// Package reportgen produces market reports through the LLM. It renders
// text-only reports; document rendering belongs to an external service and
// is not wired here.
package reportgen

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ginzlabs/tg-ai-agent/internal/service"
)

const reportPrompt = "Write a concise daily market report for %s. " +
	"Cover major equity indices, rates, FX and commodities in short " +
	"sections with a one-line takeaway each. Use Markdown with *bold* " +
	"section titles. Do not invent precise prices; describe direction " +
	"and drivers in general terms."

// LLM is the text generation dependency.
type LLM interface {
	Reply(ctx context.Context, message string) (string, error)
}

// Generator implements service.ReportGenerator on top of the LLM.
type Generator struct {
	llm    LLM
	logger *slog.Logger
}

// NewGenerator creates a Generator.
func NewGenerator(llm LLM, log *slog.Logger) *Generator {
	if log == nil {
		log = slog.Default()
	}
	return &Generator{
		llm:    llm,
		logger: log.With(slog.String("component", "report_generator")),
	}
}

var _ service.ReportGenerator = (*Generator)(nil)

// Generate produces the report text for today.
func (g *Generator) Generate(ctx context.Context, chatID int64) (*service.ReportResult, error) {
	day := time.Now().UTC().Format("Monday, 2 January 2006")

	text, err := g.llm.Reply(ctx, fmt.Sprintf(reportPrompt, day))
	if err != nil {
		return nil, fmt.Errorf("failed to generate market report: %w", err)
	}

	g.logger.Info("market report generated",
		slog.Int64("chat_id", chatID),
		slog.Int("length", len(text)))

	return &service.ReportResult{Caption: text}, nil
}
