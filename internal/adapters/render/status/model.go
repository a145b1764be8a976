package status

import (
	"errors"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bnema/primedictation-export/internal/application"
)

var ErrUnexpectedRenderModel = errors.New("unexpected final bubbletea model type")

// Render lays out status with a one-shot bubbletea program so the styles
// resolve against the same renderer the interactive pickers use.
func Render(status application.Status, opts RenderOptions) (string, error) {
	program := tea.NewProgram(
		statusModel{status: status, opts: opts.withDefaults()},
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
		tea.WithoutSignalHandler(),
	)

	final, err := program.Run()
	if err != nil {
		return "", fmt.Errorf("render status: %w", err)
	}
	m, ok := final.(statusModel)
	if !ok {
		return "", ErrUnexpectedRenderModel
	}
	return m.output, nil
}

type renderedMsg string

type statusModel struct {
	status application.Status
	opts   RenderOptions
	output string
}

func (m statusModel) Init() tea.Cmd {
	status, opts := m.status, m.opts
	return func() tea.Msg {
		return renderedMsg(renderView(status, opts, newStyles()))
	}
}

func (m statusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if out, ok := msg.(renderedMsg); ok {
		m.output = string(out)
		return m, tea.Quit
	}
	return m, nil
}

func (m statusModel) View() string {
	return m.output
}
