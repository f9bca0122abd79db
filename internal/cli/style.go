package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/aponysus/restream/observe"
)

// statusPrinter renders retry banners and terminal messages on a terminal.
// It is both the state sink and the transcript of a stream command; calls
// arrive serialized through an observe.Queue.
type statusPrinter struct {
	mu     sync.Mutex
	w      io.Writer
	logger *slog.Logger

	waiting lipgloss.Style
	failed  lipgloss.Style
	quota   lipgloss.Style
	muted   lipgloss.Style
}

func newStatusPrinter(w io.Writer, logger *slog.Logger) *statusPrinter {
	r := lipgloss.NewRenderer(w)
	return &statusPrinter{
		w:       w,
		logger:  logger,
		waiting: r.NewStyle().Foreground(lipgloss.Color("#F5A623")).Bold(true),
		failed:  r.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Bold(true),
		quota: r.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder()),
		muted: r.NewStyle().Faint(true),
	}
}

func (p *statusPrinter) Say(_ context.Context, line observe.StatusLine) error {
	var out string
	switch line.Kind {
	case observe.LineRetrying:
		out = p.waiting.Render(line.Text)
	case observe.LineDailyQuota:
		out = p.quota.Render(line.Text)
	case observe.LineCancelled:
		out = p.muted.Render(line.Text)
	default:
		out = p.failed.Render(line.Text)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintf(p.w, "\n%s\n", out)
	return err
}

func (p *statusPrinter) UpdateState(_ context.Context, u observe.StateUpdate) error {
	switch {
	case u.RetryStatus != nil:
		p.logger.Debug("retry state",
			"call_id", u.RetryStatus.CallID,
			"attempt", u.RetryStatus.Attempt,
			"wait", u.RetryStatus.WaitDuration,
			"retry_at", u.RetryStatus.RetryAt,
		)
	case u.APIError != nil:
		p.logger.Debug("terminal state", "type", u.APIError.Type, "status", u.APIError.Status)
	default:
		p.logger.Debug("retry state cleared")
	}
	return nil
}
