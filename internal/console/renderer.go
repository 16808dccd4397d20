// Package console prints wallet panel states to a terminal.
package console

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/vadiminshakov/hotdog/internal/domain"
)

var (
	connected = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	pending   = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	failed    = lipgloss.AdaptiveColor{Light: "#E5484D", Dark: "#FCA5A5"}
	subtle    = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#94A3B8"}
)

// Renderer writes one block per state.
type Renderer struct {
	out      io.Writer
	headline lipgloss.Style
	balance  lipgloss.Style
	problem  lipgloss.Style
}

// NewRenderer creates a renderer writing to out. A nil r detects colors from out.
func NewRenderer(out io.Writer, r *lipgloss.Renderer) *Renderer {
	if r == nil {
		r = lipgloss.NewRenderer(out)
	}
	return &Renderer{
		out:      out,
		headline: r.NewStyle().Bold(true),
		balance:  r.NewStyle().Foreground(subtle),
		problem:  r.NewStyle().Foreground(failed),
	}
}

// Render formats st the way the page shows it: headline, balance, problem.
func (r *Renderer) Render(st domain.State) string {
	lines := []string{r.headline.Foreground(colorOf(st)).Render(st.Headline())}
	if b := st.BalanceLine(); b != "" {
		lines = append(lines, r.balance.Render(b))
	}
	if p := st.Problem(); p != "" {
		lines = append(lines, r.problem.Render(p))
	}
	return strings.Join(lines, "\n")
}

// Print writes st followed by a blank line.
func (r *Renderer) Print(st domain.State) error {
	_, err := fmt.Fprintf(r.out, "%s\n\n", r.Render(st))
	return err
}

// Follow prints every state from updates until the channel closes or ctx ends.
func (r *Renderer) Follow(ctx context.Context, updates <-chan domain.State) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case st, ok := <-updates:
			if !ok {
				return nil
			}
			if err := r.Print(st); err != nil {
				return err
			}
		}
	}
}

func colorOf(st domain.State) lipgloss.TerminalColor {
	switch {
	case st.Status.Kind == domain.StatusError:
		return failed
	case st.Address != nil:
		return connected
	case st.Status.Kind == domain.StatusConnecting:
		return pending
	default:
		return subtle
	}
}
