package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/js-runtime/engine"
	"github.com/wippyai/js-runtime/runtime"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	outputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#D3D3D3"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// maxEntries bounds the transcript kept on screen.
const maxEntries = 50

type modelState int

const (
	stateLoading modelState = iota
	stateREPL
	stateSelectFunc
	stateRunning
)

type entry struct {
	input  string
	output []string
	result string
	err    error
}

// outputBuffer collects host.print and console output produced while a
// snippet runs.
type outputBuffer struct {
	mu    sync.Mutex
	lines []string
}

func (b *outputBuffer) add(s string) {
	b.mu.Lock()
	b.lines = append(b.lines, s)
	b.mu.Unlock()
}

func (b *outputBuffer) drain() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	lines := b.lines
	b.lines = nil
	return lines
}

func (b *outputBuffer) Log(s string)   { b.add(s) }
func (b *outputBuffer) Warn(s string)  { b.add("warn: " + s) }
func (b *outputBuffer) Error(s string) { b.add("error: " + s) }

type interactiveModel struct {
	err      error
	cfg      *runtime.Config
	rt       *runtime.Runtime
	eng      *engine.Engine
	out      *outputBuffer
	cancel   context.CancelFunc
	filename string
	builtins []string
	funcs    []string
	entries  []entry
	past     []string
	input    textinput.Model
	pastIdx  int
	selected int
	state    modelState
}

func newInteractiveModel(filename string, cfg *runtime.Config) *interactiveModel {
	ti := textinput.New()
	ti.Prompt = promptStyle.Render("js> ")
	ti.Placeholder = "expression, :funcs or :quit"
	ti.Width = 72
	ti.Focus()

	out := &outputBuffer{}
	c := *cfg
	c.Console = out

	return &interactiveModel{
		cfg:      &c,
		out:      out,
		filename: filename,
		input:    ti,
		state:    stateLoading,
	}
}

type loadedMsg struct {
	err      error
	rt       *runtime.Runtime
	eng      *engine.Engine
	builtins []string
	funcs    []string
	entry    *entry
}

type evalMsg struct {
	entry entry
	funcs []string
}

func (m *interactiveModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.load)
}

func (m *interactiveModel) load() tea.Msg {
	rt, err := newRuntime(m.cfg, m.out.add)
	if err != nil {
		return loadedMsg{err: err}
	}
	e, err := rt.NewEngine()
	if err != nil {
		rt.Close()
		return loadedMsg{err: err}
	}
	builtins, err := globalFunctions(e, nil)
	if err != nil {
		rt.Close()
		return loadedMsg{err: err}
	}

	msg := loadedMsg{rt: rt, eng: e, builtins: builtins}
	if m.filename != "" {
		data, err := os.ReadFile(m.filename)
		if err != nil {
			rt.Close()
			return loadedMsg{err: err}
		}
		ent := entry{input: "load " + m.filename}
		_, ent.err = rt.Run(context.Background(), e, engine.NewScriptSource(m.filename, string(data)))
		ent.output = m.out.drain()
		msg.entry = &ent
	}
	msg.funcs, _ = globalFunctions(e, builtins)
	return msg
}

// evaluate runs src on the REPL engine. It is only issued while no other
// evaluation is in flight, so the engine is used by one goroutine at a time.
func (m *interactiveModel) evaluate(ctx context.Context, src string) tea.Cmd {
	rt, e, builtins := m.rt, m.eng, m.builtins
	return func() tea.Msg {
		ent := entry{input: src}
		v, err := rt.Run(ctx, e, engine.NewScriptSource("<repl>", src))
		ent.output = m.out.drain()
		if err != nil {
			ent.err = err
		} else {
			ent.result = formatValue(e, v)
			v.Release()
		}
		funcs, _ := globalFunctions(e, builtins)
		return evalMsg{entry: ent, funcs: funcs}
	}
}

func (m *interactiveModel) shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	if m.rt != nil {
		m.rt.Close()
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if m.state == stateRunning && m.cancel != nil {
				m.cancel()
				return m, nil
			}
			m.shutdown()
			return m, tea.Quit

		case "ctrl+d":
			if m.state != stateRunning {
				m.shutdown()
				return m, tea.Quit
			}

		case "up":
			switch m.state {
			case stateSelectFunc:
				if m.selected > 0 {
					m.selected--
				}
				return m, nil
			case stateREPL:
				if m.pastIdx > 0 {
					m.pastIdx--
					m.input.SetValue(m.past[m.pastIdx])
					m.input.CursorEnd()
				}
				return m, nil
			}

		case "down":
			switch m.state {
			case stateSelectFunc:
				if m.selected < len(m.funcs)-1 {
					m.selected++
				}
				return m, nil
			case stateREPL:
				if m.pastIdx < len(m.past)-1 {
					m.pastIdx++
					m.input.SetValue(m.past[m.pastIdx])
					m.input.CursorEnd()
				} else {
					m.pastIdx = len(m.past)
					m.input.SetValue("")
				}
				return m, nil
			}

		case "esc":
			if m.state == stateSelectFunc {
				m.state = stateREPL
				return m, nil
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				m.input.SetValue(m.funcs[m.selected] + "(")
				m.input.CursorEnd()
				m.state = stateREPL
				return m, nil
			case stateREPL:
				return m.submit()
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.rt, m.eng = msg.rt, msg.eng
		m.builtins, m.funcs = msg.builtins, msg.funcs
		if msg.entry != nil {
			m.push(*msg.entry)
		}
		m.state = stateREPL

	case evalMsg:
		if m.cancel != nil {
			m.cancel()
			m.cancel = nil
		}
		m.push(msg.entry)
		m.funcs = msg.funcs
		m.state = stateREPL
	}

	if m.state == stateREPL {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *interactiveModel) submit() (tea.Model, tea.Cmd) {
	src := strings.TrimSpace(m.input.Value())
	m.input.SetValue("")
	if src == "" {
		return m, nil
	}
	m.past = append(m.past, src)
	m.pastIdx = len(m.past)

	switch src {
	case ":quit", ":q":
		m.shutdown()
		return m, tea.Quit
	case ":funcs":
		if len(m.funcs) == 0 {
			m.push(entry{input: src, result: "no global functions defined"})
			return m, nil
		}
		m.selected = 0
		m.state = stateSelectFunc
		return m, nil
	case ":gc":
		m.push(entry{input: src, err: m.rt.CollectGarbage(), result: "ok"})
		return m, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.state = stateRunning
	return m, m.evaluate(ctx, src)
}

func (m *interactiveModel) push(e entry) {
	m.entries = append(m.entries, e)
	if len(m.entries) > maxEntries {
		m.entries = m.entries[len(m.entries)-maxEntries:]
	}
}

func (m *interactiveModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress ctrl+c to quit.", m.err))
	}
	if m.state == stateLoading {
		return "Starting engine..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("JS Runner"))
	if m.filename != "" {
		b.WriteString(" ")
		b.WriteString(m.filename)
	}
	b.WriteString("\n\n")

	for _, e := range m.entries {
		b.WriteString(promptStyle.Render("js> "))
		b.WriteString(e.input)
		b.WriteString("\n")
		for _, line := range e.output {
			b.WriteString(outputStyle.Render(line))
			b.WriteString("\n")
		}
		switch {
		case e.err != nil:
			b.WriteString(errorStyle.Render(e.err.Error()))
			b.WriteString("\n")
		case e.result != "":
			b.WriteString(resultStyle.Render(e.result))
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")

	switch m.state {
	case stateSelectFunc:
		b.WriteString("Select a function:\n\n")
		for i, f := range m.funcs {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + f))
			} else {
				b.WriteString("  " + funcStyle.Render(f))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter insert call • esc back"))

	case stateRunning:
		b.WriteString(helpStyle.Render("running... ctrl+c interrupts"))

	default:
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter run • ↑/↓ history • :funcs pick function • :gc collect • ctrl+d quit"))
	}

	return b.String()
}

func runInteractive(filename string, cfg *runtime.Config) error {
	p := tea.NewProgram(newInteractiveModel(filename, cfg), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
