package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/primedictation-export/internal/application"
	"github.com/bnema/primedictation-export/internal/domain"
)

var errPickerAborted = errors.New("folder picker closed without a selection")

// pickerListedMsg carries a fetched page back to the event loop, which is
// the only place the picker is changed.
type pickerListedMsg struct {
	listing application.PickerListing
	err     error
}

type pickerHintsMsg struct {
	hints application.PickerHints
}

var (
	pickerTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69"))
	pickerCursorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	pickerRouteStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	pickerMutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	pickerErrorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

const (
	pickerMoreRowLabel = "Load more..."
	pickerHelpLine     = "up/down move  enter open  space check  backspace back  c confirm  q quit"
)

// folderPickerModel drives an application.Picker. Listing and probe calls
// run as commands and return their results as messages; keys are ignored
// while a listing is in flight.
type folderPickerModel struct {
	ctx     context.Context
	picker  *application.Picker
	profile domain.ProviderProfile

	cursor  int
	loading bool
	err     error

	selection domain.FolderSelection
	confirmed bool
	aborted   bool
}

func newFolderPickerModel(ctx context.Context, picker *application.Picker, profile domain.ProviderProfile) folderPickerModel {
	return folderPickerModel{ctx: ctx, picker: picker, profile: profile}
}

func (m folderPickerModel) Init() tea.Cmd {
	return m.probe()
}

func (m folderPickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case pickerListedMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.err = m.picker.Apply(m.ctx, msg.listing)
		}
		if m.cursor >= m.rows() {
			m.cursor = max(m.rows()-1, 0)
		}
		return m, m.probe()
	case pickerHintsMsg:
		m.picker.ApplyHints(msg.hints)
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.aborted = true
			return m, tea.Quit
		}
		if m.loading {
			return m, nil
		}
		return m.handleKey(msg.String())
	default:
		return m, nil
	}
}

func (m folderPickerModel) handleKey(key string) (tea.Model, tea.Cmd) {
	level := m.picker.Level()
	m.err = nil

	switch key {
	case "q", "esc":
		m.aborted = true
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < m.rows()-1 {
			m.cursor++
		}
	case "enter", "right", "l":
		if m.onMoreRow(level) {
			fetch, err := m.picker.PrepareMore()
			if err != nil || fetch == nil {
				m.err = err
				return m, nil
			}
			return m.load(fetch)
		}
		if m.cursor < len(level.Folders) {
			fetch, err := m.picker.PrepareOpen(level.Folders[m.cursor].ID)
			if err != nil {
				m.err = err
				return m, nil
			}
			m.cursor = 0
			return m.load(fetch)
		}
	case " ", "x":
		if m.cursor < len(level.Folders) {
			m.err = m.picker.SelectLeaf(level.Folders[m.cursor].ID)
		}
	case "backspace", "left", "h":
		if err := m.picker.Back(); err != nil && !errors.Is(err, application.ErrAtRoot) {
			m.err = err
		}
		m.cursor = 0
		return m, m.probe()
	case "c":
		selection, err := m.picker.Confirm()
		if err != nil {
			m.err = err
			return m, nil
		}
		m.selection = selection
		m.confirmed = true
		return m, tea.Quit
	}
	return m, nil
}

func (m folderPickerModel) load(fetch application.PickerFetch) (tea.Model, tea.Cmd) {
	m.loading = true
	ctx := m.ctx
	return m, func() tea.Msg {
		listing, err := fetch(ctx)
		return pickerListedMsg{listing: listing, err: err}
	}
}

// probe asks about the unknown rows of the current level. It returns nil when
// every row is already known.
func (m folderPickerModel) probe() tea.Cmd {
	probe := m.picker.PrepareProbe()
	if probe == nil {
		return nil
	}
	ctx := m.ctx
	return func() tea.Msg {
		return pickerHintsMsg{hints: probe(ctx)}
	}
}

func (m folderPickerModel) rows() int {
	level := m.picker.Level()
	if level.HasMore() {
		return len(level.Folders) + 1
	}
	return len(level.Folders)
}

func (m folderPickerModel) onMoreRow(level application.PickerLevel) bool {
	return level.HasMore() && m.cursor == len(level.Folders)
}

func (m folderPickerModel) View() string {
	if m.confirmed || m.aborted {
		return ""
	}

	level := m.picker.Level()
	lines := []string{
		pickerTitleStyle.Render(fmt.Sprintf("Choose a %s folder", m.profile.RootName)),
		pickerMutedStyle.Render(breadcrumb(level, m.profile)),
	}

	if len(level.Folders) == 0 && !m.loading {
		lines = append(lines, pickerMutedStyle.Render("  (no subfolders; press c to choose this folder)"))
	}
	for i, folder := range level.Folders {
		lines = append(lines, m.folderRow(i, folder, level))
	}
	if level.HasMore() {
		row := "  " + pickerMoreRowLabel
		if m.cursor == len(level.Folders) {
			row = pickerCursorStyle.Render("> " + pickerMoreRowLabel)
		}
		lines = append(lines, row)
	}

	if m.loading {
		lines = append(lines, pickerMutedStyle.Render("Loading..."))
	}
	if m.err != nil {
		lines = append(lines, pickerErrorStyle.Render(m.err.Error()))
	}
	lines = append(lines, "", pickerMutedStyle.Render(pickerHelpLine))
	return strings.Join(lines, "\n") + "\n"
}

func (m folderPickerModel) folderRow(i int, folder domain.FolderNode, level application.PickerLevel) string {
	check := "[ ]"
	if level.Checked == folder.ID {
		check = "[x]"
	}
	name := folder.Name
	if application.ShowsDisclosure(folder) {
		name += " /"
	}

	row := fmt.Sprintf("%s %s", check, name)
	if m.picker.OnSelectedRoute(folder) {
		row = pickerRouteStyle.Render(row)
	}
	if i == m.cursor {
		return pickerCursorStyle.Render("> ") + row
	}
	return "  " + row
}

func breadcrumb(level application.PickerLevel, profile domain.ProviderProfile) string {
	if level.Parent.ID == profile.RootID || level.Parent.Path == "" {
		return profile.RootName
	}
	return profile.RootName + level.Parent.Path
}

func runFolderPicker(ctx context.Context, in io.Reader, out io.Writer, picker *application.Picker, profile domain.ProviderProfile) (domain.FolderSelection, error) {
	p := tea.NewProgram(
		newFolderPickerModel(ctx, picker, profile),
		tea.WithInput(in),
		tea.WithOutput(out),
		tea.WithContext(ctx),
	)

	finalModel, err := p.Run()
	if err != nil {
		return domain.FolderSelection{}, err
	}

	result, ok := finalModel.(folderPickerModel)
	if !ok {
		return domain.FolderSelection{}, fmt.Errorf("unexpected final picker model type %T", finalModel)
	}
	if !result.confirmed {
		return domain.FolderSelection{}, errPickerAborted
	}
	return result.selection, nil
}
