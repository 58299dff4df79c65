package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type mode int

const (
	modeInteractive mode = iota
	modeOneShot
)

const (
	roleUser  = "user"
	roleBot   = "bot"
	roleQuiet = "quiet"
	roleError = "error"
)

type chatMessage struct {
	role    string
	content string
}

type replyMsg struct {
	replies []string
	err     error
}

type bootTickMsg struct{}

type model struct {
	ctx          context.Context
	promptFn     PromptFunc
	mode         mode
	oneShotInput string

	theme     theme
	spinner   spinner.Model
	input     textinput.Model
	viewport  viewport.Model
	messages  []chatMessage
	width     int
	height    int
	isReady   bool
	isLoading bool
	lastErr   string
	booting   bool
	bootStep  int
	followLog bool
	runtime   RuntimeInfo
	sent      int
	replies   int
	failures  int
}

func newModel(ctx context.Context, promptFn PromptFunc, runMode mode, prompt string, info RuntimeInfo) *model {
	spin := spinner.New()
	spin.Spinner = spinner.Points
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = "Try !newplanet"
	in.Focus()
	in.CharLimit = 0

	vp := viewport.New(80, 12)

	return &model{
		ctx:          ctx,
		promptFn:     promptFn,
		mode:         runMode,
		oneShotInput: prompt,
		theme:        defaultTheme(),
		spinner:      spin,
		input:        in,
		viewport:     vp,
		width:        100,
		height:       28,
		booting:      runMode == modeInteractive,
		followLog:    true,
		runtime:      info,
	}
}

func (m *model) Init() tea.Cmd {
	if m.mode == modeOneShot && strings.TrimSpace(m.oneShotInput) != "" {
		return m.submit(m.oneShotInput)
	}

	return bootTickCmd()
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.resizeComponents()
		m.refreshViewport(false)
		m.isReady = true
		return m, nil
	case bootTickMsg:
		if !m.booting {
			return m, nil
		}

		m.bootStep++
		if m.bootStep < len(bootScriptLines())+1 {
			return m, bootTickCmd()
		}

		m.booting = false
		return m, textinput.Blink
	case tea.MouseMsg:
		if m.mode == modeInteractive && !m.booting {
			m.handleViewportMouse(typed)
		}
		return m, nil
	case tea.KeyMsg:
		switch typed.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		}

		if m.booting || m.mode == modeOneShot {
			return m, nil
		}

		if handled := m.handleViewportKey(typed); handled {
			return m, nil
		}

		if typed.String() == "enter" {
			if m.isLoading {
				return m, nil
			}

			// Dispatch the raw line; triggers only match exactly.
			text := m.input.Value()
			if strings.TrimSpace(text) == "" {
				return m, nil
			}
			if isExitCommand(text) {
				return m, tea.Quit
			}

			m.input.SetValue("")
			m.followLog = true
			return m, m.submit(text)
		}
	}

	if m.mode == modeInteractive {
		m.input, cmd = m.input.Update(msg)
	}

	switch typed := msg.(type) {
	case spinner.TickMsg:
		if !m.isLoading {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd
	case replyMsg:
		m.applyReply(typed)
		if m.mode == modeOneShot {
			return m, tea.Quit
		}
	}

	return m, cmd
}

// submit records text as a user line and dispatches it.
func (m *model) submit(text string) tea.Cmd {
	m.lastErr = ""
	m.sent++
	m.messages = append(m.messages, chatMessage{role: roleUser, content: text})
	m.isLoading = true
	m.refreshViewport(true)
	return tea.Batch(m.spinner.Tick, sendPromptCmd(m.ctx, m.promptFn, text))
}

func (m *model) applyReply(reply replyMsg) {
	m.isLoading = false
	switch {
	case reply.err != nil:
		m.failures++
		m.lastErr = reply.err.Error()
		m.messages = append(m.messages, chatMessage{role: roleError, content: reply.err.Error()})
	case len(reply.replies) == 0:
		m.lastErr = ""
		m.messages = append(m.messages, chatMessage{role: roleQuiet, content: "no command matched, nothing sent"})
	default:
		m.lastErr = ""
		for _, text := range reply.replies {
			m.replies++
			m.messages = append(m.messages, chatMessage{role: roleBot, content: text})
		}
	}
	m.refreshViewport(false)
}

func (m *model) View() string {
	if !m.isReady {
		m.resizeComponents()
		m.refreshViewport(false)
	}
	if m.mode == modeOneShot {
		return m.oneShotView()
	}
	if m.booting {
		return m.bootView()
	}

	header := m.theme.header.Width(m.width - 2).Render("🪐 Planetbot Console")
	meta := m.theme.headerMeta.Render(fmt.Sprintf(
		"source:%s · planet:%s · sent:%d · replies:%d · failures:%d",
		displayOrNA(m.runtime.Source),
		displayOrNA(m.runtime.PlanetID),
		m.sent,
		m.replies,
		m.failures,
	))
	line := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("═", max(8, m.width-2)))

	status := m.theme.status.Render("💡 Enter send  ·  PgUp/PgDn scroll  ·  End jump latest  ·  🛑 Ctrl+C/Esc quit")
	if m.isLoading {
		status = m.theme.statusBusy.Render(fmt.Sprintf("%s ⚡ dispatching...", m.spinner.View()))
	}
	if m.lastErr != "" {
		status = m.theme.statusErr.Render("🚨 last command failed, nothing was sent")
	}

	parts := []string{
		header,
		meta,
		line,
		m.theme.viewport.Width(m.width - 2).Render(m.viewport.View()),
		status,
		m.theme.inputLabel.Render("👩‍🚀 You") + " " + m.theme.hint.Render("(type /exit, quit, or :q)"),
		m.theme.input.Width(m.width - 2).Render(m.input.View()),
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m *model) resizeComponents() {
	w := max(50, m.width-6)
	h := m.height - 10
	if m.mode == modeOneShot {
		h = m.height - 6
	}
	h = max(8, h)

	m.viewport.Width = w
	m.viewport.Height = h
	m.input.Width = w - 2
}

func (m *model) refreshViewport(forceBottom bool) {
	previousOffset := m.viewport.YOffset
	sections := make([]string, 0, len(m.messages))
	for _, item := range m.messages {
		sections = append(sections, m.renderMessage(item, m.viewport.Width))
	}

	m.viewport.SetContent(strings.Join(sections, "\n\n"))
	if m.followLog || forceBottom {
		m.viewport.GotoBottom()
		m.followLog = true
		return
	}

	maxOffset := max(0, m.viewport.TotalLineCount()-m.viewport.Height)
	m.viewport.SetYOffset(min(previousOffset, maxOffset))
}

func (m *model) renderMessage(item chatMessage, width int) string {
	body := strings.TrimSpace(item.content)
	switch item.role {
	case roleUser:
		return renderCard(m.theme.userTitle.Render("▛▚ [ 👩‍🚀 ] ▞▜"), m.theme.userBox.Width(width).Render(body))
	case roleBot:
		return renderCard(m.theme.botTitle.Render("▛▚ [ 🪐 ] ▞▜"), m.theme.botBox.Width(width).Render(body))
	case roleError:
		return renderCard(m.theme.errorTitle.Render("▛▚ [ERROR] ▞▜"), m.theme.errorBox.Width(width).Render(body))
	default:
		return m.theme.hint.Render("· " + body)
	}
}

func renderCard(title string, body string) string {
	return lipgloss.JoinVertical(lipgloss.Left, title, body)
}

func (m *model) oneShotView() string {
	contentWidth := max(40, m.width-6)
	parts := []string{renderCard(
		m.theme.userTitle.Render("▛▚ [SENT] ▞▜"),
		m.theme.userBox.Width(contentWidth).Render(m.oneShotInput),
	)}

	if m.isLoading {
		parts = append(parts, m.theme.statusBusy.Render(fmt.Sprintf("%s ⚡ dispatching command...", m.spinner.View())))
		return lipgloss.JoinVertical(lipgloss.Left, parts...) + "\n"
	}

	for _, item := range m.messages {
		if item.role == roleUser {
			continue
		}
		parts = append(parts, m.renderMessage(item, contentWidth))
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...) + "\n\n"
}

func (m *model) bootView() string {
	header := m.theme.header.Width(m.width - 2).Render("🪐 Planetbot Console")
	meta := m.theme.headerMeta.Render("boot sequence")
	line := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("═", max(8, m.width-2)))

	script := bootScriptLines()
	count := min(m.bootStep, len(script))
	visible := make([]string, 0, count+1)
	for i := 0; i < count; i++ {
		visible = append(visible, m.theme.bootLine.Render(script[i]))
	}
	if m.bootStep > len(script) {
		visible = append(visible, m.theme.bootDone.Render("✅ console channel online"))
	}

	body := m.theme.viewport.Width(m.width - 2).Render(strings.Join(visible, "\n"))
	return lipgloss.JoinVertical(lipgloss.Left, header, meta, line, body)
}

func bootTickCmd() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(_ time.Time) tea.Msg {
		return bootTickMsg{}
	})
}

func (m *model) handleViewportKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "pgup", "ctrl+b", "alt+up", "ctrl+up":
		m.viewport.PageUp()
		m.followLog = false
		return true
	case "pgdown", "ctrl+f", "alt+down", "ctrl+down":
		m.viewport.PageDown()
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	case "home":
		m.viewport.GotoTop()
		m.followLog = false
		return true
	case "end":
		m.viewport.GotoBottom()
		m.followLog = true
		return true
	default:
		return false
	}
}

// handleViewportMouse scrolls on wheel events and reports whether msg was one.
func (m *model) handleViewportMouse(msg tea.MouseMsg) bool {
	if msg.Action != tea.MouseActionPress {
		return false
	}

	switch msg.Button {
	case tea.MouseButtonWheelUp, tea.MouseButtonWheelDown:
		m.viewport, _ = m.viewport.Update(msg)
		m.followLog = m.viewport.AtBottom()
		return true
	default:
		return false
	}
}

func bootScriptLines() []string {
	return []string{
		"[BOOT] loading trigger table",
		"[BOOT] resolving planet source",
		"[BOOT] attaching console channel",
	}
}

func sendPromptCmd(ctx context.Context, promptFn PromptFunc, text string) tea.Cmd {
	return func() tea.Msg {
		if promptFn == nil {
			return replyMsg{err: fmt.Errorf("no dispatcher configured")}
		}
		replies, err := promptFn(ctx, text)
		return replyMsg{replies: replies, err: err}
	}
}

func displayOrNA(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "n/a"
	}

	return trimmed
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "/exit", "quit", ":q":
		return true
	default:
		return false
	}
}
