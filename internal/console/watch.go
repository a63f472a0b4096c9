package console

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tausound/server/internal/client"
)

const (
	maxLogLines    = 200
	reconnectDelay = 2 * time.Second
	healthInterval = 5 * time.Second
)

type slotView struct {
	State    string
	Last     string
	Position int64
	Duration int64
	Peak     *float64
}

type (
	reconnectMsg  struct{ kind string }
	healthTickMsg struct{}
	healthMsg     struct {
		health *client.Health
		err    error
	}
)

// Model is the watch view: one table per kind plus a rolling event log.
type Model struct {
	base   string
	token  string
	http   *client.HTTPClient
	ctx    context.Context
	cancel context.CancelFunc

	keys   KeyMap
	width  int
	height int

	clients map[string]*client.WSClient
	slots   map[string]map[int]*slotView
	health  *client.Health
	log     []string
}

// NewWatch creates the watch model for the server at base.
func NewWatch(base, token string, http *client.HTTPClient) Model {
	ctx, cancel := context.WithCancel(context.Background())
	m := Model{
		base:    base,
		token:   token,
		http:    http,
		ctx:     ctx,
		cancel:  cancel,
		keys:    DefaultKeyMap(),
		clients: make(map[string]*client.WSClient),
		slots:   make(map[string]map[int]*slotView),
	}
	for _, k := range Kinds() {
		m.slots[k] = make(map[int]*slotView)
	}
	return m
}

// Init connects every kind and starts health polling.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.fetchHealth()}
	for _, k := range Kinds() {
		cmds = append(cmds, client.Connect(m.ctx, m.base, k, m.token))
	}
	return tea.Batch(cmds...)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case client.ConnectedMsg:
		c := msg.Client
		m.clients[c.Kind()] = c
		m.appendLog(StyleOK.Render(c.Kind() + " connected"))
		return m, c.WaitFrame()

	case client.DisconnectedMsg:
		delete(m.clients, msg.Kind)
		if msg.Err != nil {
			m.appendLog(StyleDanger.Render(fmt.Sprintf("%s: %v", msg.Kind, msg.Err)))
		}
		kind := msg.Kind
		return m, tea.Tick(reconnectDelay, func(time.Time) tea.Msg { return reconnectMsg{kind: kind} })

	case reconnectMsg:
		if m.ctx.Err() != nil {
			return m, nil
		}
		return m, client.Connect(m.ctx, m.base, msg.kind, m.token)

	case client.FrameMsg:
		m.applyFrame(msg.Kind, msg.Frame)
		if c, ok := m.clients[msg.Kind]; ok {
			return m, c.WaitFrame()
		}
		return m, nil

	case healthTickMsg:
		return m, m.fetchHealth()

	case healthMsg:
		if msg.err == nil {
			m.health = msg.health
		}
		return m, tea.Tick(healthInterval, func(time.Time) tea.Msg { return healthTickMsg{} })
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		for _, c := range m.clients {
			c.Close()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Clear):
		m.log = nil
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		return m, m.fetchHealth()
	}
	return m, nil
}

func (m Model) fetchHealth() tea.Cmd {
	if m.http == nil {
		return nil
	}
	ctx, hc := m.ctx, m.http
	return func() tea.Msg {
		h, err := hc.Health(ctx)
		return healthMsg{health: h, err: err}
	}
}

func (m *Model) applyFrame(kind string, f client.Frame) {
	switch f.Type {
	case client.MsgSnapshot:
		snap, err := f.DecodeSnapshot()
		if err != nil {
			return
		}
		slots := make(map[int]*slotView, len(snap.Slots))
		for _, si := range snap.Slots {
			slots[si.Slot] = &slotView{State: si.State}
		}
		m.slots[kind] = slots

	case client.MsgEvent:
		ev, err := f.DecodeEvent()
		if err != nil {
			return
		}
		m.applyEvent(kind, ev)
	}
}

func (m *Model) applyEvent(kind string, ev client.Event) {
	slots := m.slots[kind]
	if slots == nil {
		slots = make(map[int]*slotView)
		m.slots[kind] = slots
	}

	if ev.State == "closed" {
		delete(slots, ev.Slot)
		m.appendLog(FormatEvent(kind, ev))
		return
	}

	sv, ok := slots[ev.Slot]
	if !ok {
		sv = &slotView{}
		slots[ev.Slot] = sv
	}
	sv.State = ev.State

	if strings.HasPrefix(ev.Method, "update") && len(ev.Arg) > 0 {
		var p struct {
			Position    int64    `json:"position"`
			Duration    int64    `json:"duration"`
			DBPeakLevel *float64 `json:"dbPeakLevel"`
		}
		if json.Unmarshal(ev.Arg, &p) == nil {
			sv.Position, sv.Duration, sv.Peak = p.Position, p.Duration, p.DBPeakLevel
		}
		return
	}

	sv.Last = ev.Method
	m.appendLog(FormatEvent(kind, ev))
}

func (m *Model) appendLog(line string) {
	m.log = append(m.log, time.Now().Format("15:04:05")+" "+line)
	if len(m.log) > maxLogLines {
		m.log = m.log[len(m.log)-maxLogLines:]
	}
}

// View renders the watch screen.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	if len(m.clients) == 0 {
		return m.renderDisconnected()
	}

	sections := []string{m.renderStatus()}
	for _, k := range Kinds() {
		sections = append(sections, m.renderKind(k))
	}
	sections = append(sections, m.renderLog(), StyleDimmed.Render(m.keys.footer()))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderDisconnected() string {
	box := StyleOverlay.Render(lipgloss.JoinVertical(lipgloss.Center,
		StyleDanger.Render("DISCONNECTED"),
		StyleDimmed.Render("Reconnecting to "+m.base+"..."),
	))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func (m Model) renderStatus() string {
	var parts []string
	for _, k := range Kinds() {
		if _, ok := m.clients[k]; ok {
			parts = append(parts, StyleOK.Render(k+" ●"))
		} else {
			parts = append(parts, StyleDanger.Render(k+" ○"))
		}
	}
	if h := m.health; h != nil {
		status := StyleOK.Render(h.Status)
		if h.Status != "healthy" {
			status = StyleDanger.Render(h.Status)
		}
		parts = append(parts, status,
			StyleDimmed.Render(fmt.Sprintf("up %s  rss %.1f MiB  cpu %.1f%%",
				time.Duration(h.UptimeSeconds)*time.Second,
				float64(h.Process.RSSBytes)/(1<<20),
				h.Process.CPUPercent)))
	}
	return StyleHeader.Render("tau") + "  " + strings.Join(parts, "  ")
}

func (m Model) renderKind(kind string) string {
	slots := m.slots[kind]
	header := StyleHeader.Render(fmt.Sprintf("=== %s (%d) ", strings.ToUpper(kind), len(slots)))
	if h := m.health; h != nil {
		if kr, ok := h.Kinds[kind]; ok && kr.EngineErrors > 0 {
			header += StyleDanger.Render(fmt.Sprintf(" %d engine errors", kr.EngineErrors))
		}
	}
	lines := []string{header}

	nums := make([]int, 0, len(slots))
	for n := range slots {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	for _, n := range nums {
		lines = append(lines, renderSlot(n, slots[n]))
	}
	if len(nums) == 0 {
		lines = append(lines, StyleDimmed.Render("  no live sessions"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderSlot(n int, sv *slotView) string {
	state := lipgloss.NewStyle().Foreground(StateColor(sv.State)).Width(8).Render(sv.State)
	progress := ""
	switch {
	case sv.Peak != nil:
		progress = fmt.Sprintf("%s  %6.1f dB", clock(sv.Duration), *sv.Peak)
	case sv.Duration > 0 || sv.Position > 0:
		progress = fmt.Sprintf("%s / %s", clock(sv.Position), clock(sv.Duration))
	}
	return fmt.Sprintf("  #%-3d %s %-28s %s", n, state, sv.Last, progress)
}

func (m Model) renderLog() string {
	lines := []string{StyleDimmed.Render("--- EVENTS ---")}
	room := m.height - m.usedRows()
	if room < 1 {
		room = 1
	}
	start := len(m.log) - room
	if start < 0 {
		start = 0
	}
	lines = append(lines, m.log[start:]...)
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// usedRows counts the rows taken by everything except the event log body.
func (m Model) usedRows() int {
	rows := 3 // status, log header, footer
	for _, k := range Kinds() {
		n := len(m.slots[k])
		if n == 0 {
			n = 1
		}
		rows += 1 + n
	}
	return rows
}
