package replay

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"
	"github.com/muesli/reflow/wordwrap"
)

var (
	pagerTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	pagerInfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	pagerLiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("10"))
)

// Pager is an interactive terminal pager for replays.
type Pager struct {
	title string
}

// NewPager creates a pager with the given title.
func NewPager(title string) *Pager {
	return &Pager{title: title}
}

// Run shows content until the user quits.
func (p *Pager) Run(content string) error {
	prog := tea.NewProgram(newPagerModel(p.title, content), tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := prog.Run()
	return err
}

// RunLive shows the output of renderFunc and re-renders it each time path
// is written.
func (p *Pager) RunLive(path string, renderFunc func() (string, error)) error {
	content, err := renderFunc()
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("failed to watch file: %w", err)
	}

	m := newPagerModel(p.title, content)
	m.live = true
	m.follow = true
	m.renderFunc = renderFunc
	m.watcher = watcher

	prog := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err = prog.Run()
	return err
}

// fileChangedMsg is sent when the watched file changes.
type fileChangedMsg struct{}

type pagerModel struct {
	viewport viewport.Model
	title    string
	content  string
	wrapped  string
	ready    bool

	live       bool
	follow     bool // stick to the bottom as the run grows
	renderFunc func() (string, error)
	watcher    *fsnotify.Watcher
	lastUpdate time.Time

	searching   bool
	searchInput textinput.Model
	query       string
	matches     []int // wrapped line numbers
	matchIndex  int
	notFound    bool
}

func newPagerModel(title, content string) *pagerModel {
	return &pagerModel{title: title, content: content}
}

func (m *pagerModel) Init() tea.Cmd {
	if m.live && m.watcher != nil {
		return m.waitForChange()
	}
	return nil
}

func (m *pagerModel) waitForChange() tea.Cmd {
	return func() tea.Msg {
		for {
			select {
			case event, ok := <-m.watcher.Events:
				if !ok {
					return nil
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					// Let the writer finish.
					time.Sleep(100 * time.Millisecond)
					return fileChangedMsg{}
				}
			case _, ok := <-m.watcher.Errors:
				if !ok {
					return nil
				}
			}
		}
	}
}

func (m *pagerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	if m.searching {
		if key, ok := msg.(tea.KeyMsg); ok {
			switch key.String() {
			case "enter":
				m.query = m.searchInput.Value()
				m.searching = false
				m.search()
				if len(m.matches) > 0 {
					m.jumpTo(0)
				}
				return m, nil
			case "esc", "ctrl+c":
				m.searching = false
				m.clearSearch()
				return m, nil
			}
		}
		var cmd tea.Cmd
		m.searchInput, cmd = m.searchInput.Update(msg)
		return m, cmd
	}

	switch msg := msg.(type) {
	case fileChangedMsg:
		m.reload()
		cmds = append(cmds, m.waitForChange())

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "esc":
			if m.query == "" {
				return m, tea.Quit
			}
			m.clearSearch()
		case "g":
			m.follow = false
			m.viewport.GotoTop()
		case "G":
			m.viewport.GotoBottom()
		case "f", "F":
			if m.live {
				m.follow = !m.follow
				if m.follow {
					m.viewport.GotoBottom()
				}
			}
		case "/":
			m.searching = true
			m.searchInput = textinput.New()
			m.searchInput.Placeholder = "Search..."
			m.searchInput.CharLimit = 100
			m.searchInput.Width = 40
			m.searchInput.SetValue(m.query)
			m.searchInput.Focus()
			return m, textinput.Blink
		case "n":
			if len(m.matches) > 0 {
				m.jumpTo((m.matchIndex + 1) % len(m.matches))
			}
		case "N":
			if len(m.matches) > 0 {
				m.jumpTo((m.matchIndex - 1 + len(m.matches)) % len(m.matches))
			}
		case "up", "k", "pgup", "b":
			m.follow = false
		}

	case tea.WindowSizeMsg:
		height := msg.Height - 2 // header and footer
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.viewport.YPosition = 1
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.setContent()
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *pagerModel) setContent() {
	m.wrapped = wrapContent(m.content, m.viewport.Width)
	m.viewport.SetContent(m.wrapped)
	if m.query != "" {
		m.search()
	}
	if m.follow {
		m.viewport.GotoBottom()
	}
}

// reload re-renders after a file change, keeping the scroll position
// unless following.
func (m *pagerModel) reload() {
	if m.renderFunc == nil {
		return
	}
	content, err := m.renderFunc()
	if err != nil {
		return
	}
	offset := m.viewport.YOffset
	m.content = content
	m.lastUpdate = time.Now()
	m.setContent()
	if !m.follow {
		m.viewport.SetYOffset(offset)
	}
}

func (m *pagerModel) search() {
	m.matches = nil
	m.matchIndex = 0
	m.notFound = false
	if m.query == "" {
		return
	}
	q := strings.ToLower(m.query)
	for i, line := range strings.Split(m.wrapped, "\n") {
		if strings.Contains(strings.ToLower(line), q) {
			m.matches = append(m.matches, i)
		}
	}
	m.notFound = len(m.matches) == 0
}

func (m *pagerModel) clearSearch() {
	m.query = ""
	m.matches = nil
	m.notFound = false
}

// jumpTo centers the given match on screen.
func (m *pagerModel) jumpTo(index int) {
	if index < 0 || index >= len(m.matches) {
		return
	}
	m.matchIndex = index
	m.follow = false
	m.viewport.SetYOffset(m.matches[index] - m.viewport.Height/2)
}

func (m *pagerModel) View() string {
	if !m.ready {
		return "\n  Loading..."
	}

	title := pagerTitleStyle.Render(m.title)
	line := strings.Repeat("─", max(0, m.viewport.Width-lipgloss.Width(title)))
	header := lipgloss.JoinHorizontal(lipgloss.Center, title, pagerInfoStyle.Render(line))

	if m.searching {
		prompt := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Render("/")
		return header + "\n" + m.viewport.View() + "\n" + prompt + m.searchInput.View()
	}

	info := fmt.Sprintf(" %3.f%% ", m.viewport.ScrollPercent()*100)
	var help string
	switch {
	case m.notFound:
		help = fmt.Sprintf(" %s │ /: search ", errorStyle.Render("Pattern not found"))
	case len(m.matches) > 0:
		help = fmt.Sprintf(" %s │ n/N: next/prev │ esc: clear ", warnStyle.Render(fmt.Sprintf("[%d/%d]", m.matchIndex+1, len(m.matches))))
	case m.live:
		state := "paused"
		if m.follow {
			state = "following"
		}
		help = fmt.Sprintf(" %s %s │ q: quit │ /: search │ f: follow │ g/G: top/bottom ", pagerLiveStyle.Render("● LIVE"), state)
	default:
		help = " q: quit │ /: search │ n/N: next/prev │ g/G: top/bottom "
	}
	fill := strings.Repeat("─", max(0, m.viewport.Width-lipgloss.Width(help)-lipgloss.Width(info)))
	footer := pagerInfoStyle.Render(help) + pagerInfoStyle.Render(fill) + pagerInfoStyle.Render(info)

	return header + "\n" + m.viewport.View() + "\n" + footer
}

// wrapContent wraps each line to width. Timeline rows keep continuation
// lines aligned under the event column.
func wrapContent(content string, width int) string {
	if width <= 0 {
		return content
	}

	var result []string
	for _, line := range strings.Split(content, "\n") {
		if lipgloss.Width(line) <= width {
			result = append(result, line)
			continue
		}

		if lastPipe := strings.LastIndex(line, "│"); lastPipe > 0 && lastPipe < len(line)-len("│") {
			start := lastPipe + len("│")
			for start < len(line) && line[start] == ' ' {
				start++
			}
			prefixWidth := lipgloss.Width(line[:start])
			contentWidth := max(width-prefixWidth, 20)

			wrapped := strings.Split(wordwrap.String(line[start:], contentWidth), "\n")
			result = append(result, line[:start]+wrapped[0])
			pad := strings.Repeat(" ", prefixWidth)
			for _, w := range wrapped[1:] {
				result = append(result, pad+w)
			}
			continue
		}

		result = append(result, strings.Split(wordwrap.String(line, width), "\n")...)
	}
	return strings.Join(result, "\n")
}
