package status

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/primedictation-export/internal/application"
	"github.com/bnema/primedictation-export/internal/domain"
)

type RenderOptions struct {
	Now time.Time
	// FadeAfter is the age at which a history row is drawn fully faded.
	FadeAfter time.Duration
}

const defaultFadeAfter = 7 * 24 * time.Hour

func (o RenderOptions) withDefaults() RenderOptions {
	if o.FadeAfter <= 0 {
		o.FadeAfter = defaultFadeAfter
	}
	return o
}

func renderView(status application.Status, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("Prime Dictation Export"),
		s.header.Render(fmt.Sprintf("destination: %s", selectedLabel(status.Selected))),
	}

	if len(status.Destinations) == 0 {
		lines = append(lines, s.empty.Render("No destinations configured."))
	}
	for _, destination := range status.Destinations {
		lines = append(lines, s.section.Render(renderDestination(destination, s)))
	}

	lines = append(lines, s.section.Render(renderHistory(status.Recent, opts, s)))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func selectedLabel(provider domain.Provider) string {
	if provider == "" || provider == domain.ProviderNone {
		return "none"
	}
	return provider.DisplayName()
}

func renderDestination(status application.DestinationStatus, s styles) string {
	marker, title := "  ", s.destination
	if status.Selected {
		marker, title = "> ", s.selected
	}

	parts := []string{title.Render(marker + status.Provider.DisplayName())}
	parts = append(parts, s.detail.Render("   "+sessionLine(status)))
	if status.Folder != "" {
		parts = append(parts, lipgloss.JoinHorizontal(lipgloss.Top,
			s.label.Render("   folder: "),
			s.detail.Render(status.Folder),
		))
	}
	if status.Detail != "" && status.SignedIn {
		parts = append(parts, s.warning.Render("   "+status.Detail))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func sessionLine(status application.DestinationStatus) string {
	switch {
	case status.SignedIn && status.AccountID != "":
		return "signed in as " + status.AccountID
	case status.SignedIn:
		return "signed in"
	case status.Detail != "":
		return status.Detail
	default:
		return "not signed in"
	}
}

func renderHistory(records []domain.ExportRecord, opts RenderOptions, s styles) string {
	lines := []string{s.title.Render("Recent exports")}
	if len(records) == 0 {
		lines = append(lines, s.empty.Render("No exports yet."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, record := range records {
		lines = append(lines, historyLine(record, opts, s))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func historyLine(record domain.ExportRecord, opts RenderOptions, s styles) string {
	target := record.Provider.DisplayName()
	if record.DestinationName != "" {
		target += "/" + record.DestinationName
	}

	ageStyle := lipgloss.NewStyle().Foreground(ageColor(record.FinishedAt, opts))
	line := lipgloss.JoinHorizontal(
		lipgloss.Top,
		statusStyle(record.Status, s).Render(fmt.Sprintf("%-9s", record.Status)),
		" ",
		s.detail.Render(record.FileBaseName),
		s.label.Render(" -> "),
		s.detail.Render(target),
		" ",
		ageStyle.Render("("+formatAge(record.FinishedAt, opts.Now)+")"),
	)
	if record.Error != "" {
		line += " " + s.warning.Render(truncate(record.Error, 60))
	}
	return line
}

func statusStyle(status domain.ExportStatus, s styles) lipgloss.Style {
	switch status {
	case domain.ExportStatusSucceeded:
		return s.succeeded
	case domain.ExportStatusPartial:
		return s.partial
	case domain.ExportStatusCancelled:
		return s.cancelled
	default:
		return s.failed
	}
}

func formatAge(at, now time.Time) string {
	if at.IsZero() {
		return "unknown"
	}
	if now.IsZero() {
		return at.Format(time.RFC3339)
	}

	elapsed := now.Sub(at)
	switch {
	case elapsed < time.Minute:
		return "just now"
	case elapsed < time.Hour:
		return plural(int(elapsed.Minutes()), "minute") + " ago"
	case elapsed < 24*time.Hour:
		return plural(int(elapsed.Hours()), "hour") + " ago"
	default:
		days := int(math.Floor(elapsed.Hours() / 24))
		return plural(days, "day") + " ago" + " (" + at.Format("15:04 on 02 Jan") + ")"
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len([]rune(s)) <= max {
		return s
	}
	return string([]rune(s)[:max-3]) + "..."
}

func interpolateColor(value, min, max float64) lipgloss.Color {
	if max == min {
		return lipgloss.Color("255")
	}

	normalized := (value - min) / (max - min)
	if normalized < 0 {
		normalized = 0
	}
	if normalized > 1 {
		normalized = 1
	}

	// ANSI 256 greyscale ramp: 240 faded, 255 bright.
	baseColor := 240.0
	targetColor := 255.0
	return lipgloss.Color(fmt.Sprintf("%d", int(baseColor+(targetColor-baseColor)*normalized)))
}

// ageColor fades history rows from bright to grey as they age.
func ageColor(at time.Time, opts RenderOptions) lipgloss.Color {
	if opts.Now.IsZero() || at.IsZero() || at.After(opts.Now) {
		return lipgloss.Color("255")
	}
	fadeAfter := opts.withDefaults().FadeAfter
	remaining := fadeAfter.Seconds() - opts.Now.Sub(at).Seconds()
	return interpolateColor(remaining, 0, fadeAfter.Seconds())
}
