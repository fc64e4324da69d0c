package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"analyst-rag/internal/models"
	"analyst-rag/internal/rag"
	"analyst-rag/internal/response"
)

// ChatPort is the TUI-facing subset of the pipeline.
type ChatPort interface {
	Answer(ctx context.Context, query string, history []models.Turn) (*models.Answer, error)
	Summarize(ctx context.Context, source string) (string, error)
	Ingest(ctx context.Context, filePath string) (*rag.IngestResult, error)
}

var _ ChatPort = (*rag.Pipeline)(nil)

const helpText = "Ask a question, or use /ingest <path>, /summarize <file>, /next <n>, /quit."

type answerMsg struct {
	question string
	answer   *models.Answer
	err      error
}

type summaryMsg struct {
	source  string
	summary string
	err     error
}

type ingestMsg struct {
	result *rag.IngestResult
	err    error
}

// Model is the Bubble Tea model for the chat.
type Model struct {
	ctx        context.Context
	port       ChatPort
	input      textinput.Model
	viewport   viewport.Model
	transcript []string
	history    []models.Turn
	nextSteps  []string
	status     string
	busy       bool
	ready      bool
}

func New(ctx context.Context, port ChatPort) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about your documents and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{ctx: ctx, port: port, input: ti, viewport: vp, status: helpText}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

// History returns the conversation so far.
func (m Model) History() []models.Turn { return m.history }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		tw, th := transcriptBoxStyle.GetFrameSize()
		iw, ih := inputBoxStyle.GetFrameSize()
		reserved := 1 + 1 + ih + 1 // header, status, spacer
		m.viewport.Width = max(20, msg.Width-tw)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.input.Width = max(10, msg.Width-iw-lipgloss.Width(m.input.Prompt)-1)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if msg.Type == tea.KeyEnter {
			return m.submit()
		}
		if msg.Type == tea.KeyPgUp || msg.Type == tea.KeyPgDown {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.transcript = append(m.transcript, errorStyle.Render("Error: "+msg.err.Error()))
		} else {
			m.history = append(m.history, models.Turn{Question: msg.question, Answer: msg.answer.Text})
			view := response.NewView(msg.answer)
			m.nextSteps = view.NextSteps
			m.transcript = append(m.transcript, renderAnswer(view))
			m.status = helpText
		}
		m.refresh()
		return m, nil

	case summaryMsg:
		m.busy = false
		if msg.err != nil {
			m.transcript = append(m.transcript, errorStyle.Render(msg.err.Error()))
		} else {
			m.transcript = append(m.transcript, labelStyle.Render("Summary of "+msg.source+":")+"\n"+msg.summary)
		}
		m.status = helpText
		m.refresh()
		return m, nil

	case ingestMsg:
		m.busy = false
		switch {
		case msg.err != nil:
			m.transcript = append(m.transcript, errorStyle.Render(msg.err.Error()))
		case msg.result.Skipped:
			m.transcript = append(m.transcript, mutedStyle.Render("No text could be extracted from "+msg.result.Source+"."))
		default:
			m.transcript = append(m.transcript, mutedStyle.Render(fmt.Sprintf("Ingested %s (%d chunks).", msg.result.Source, msg.result.Chunks)))
		}
		m.status = helpText
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.input.Value())
	if line == "" || m.busy {
		return m, nil
	}
	m.input.Reset()

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit", "/exit":
		return m, tea.Quit
	case "/help":
		m.status = helpText
		return m, nil
	case "/ingest":
		if arg == "" {
			m.status = "Usage: /ingest <path>"
			return m, nil
		}
		m.busy, m.status = true, "Ingesting "+arg+"..."
		return m, m.ingest(arg)
	case "/summarize":
		if arg == "" {
			m.status = "Usage: /summarize <file>"
			return m, nil
		}
		m.busy, m.status = true, "Summarizing "+arg+"..."
		return m, m.summarize(arg)
	case "/next":
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 || n > len(m.nextSteps) {
			m.status = fmt.Sprintf("Pick a suggestion between 1 and %d", len(m.nextSteps))
			return m, nil
		}
		line = m.nextSteps[n-1]
	}

	m.transcript = append(m.transcript, labelStyle.Render("You: ")+line)
	m.busy, m.status = true, "Thinking..."
	m.refresh()
	return m, m.ask(line)
}

func (m Model) ask(question string) tea.Cmd {
	history := append([]models.Turn(nil), m.history...)
	return func() tea.Msg {
		ans, err := m.port.Answer(m.ctx, question, history)
		return answerMsg{question: question, answer: ans, err: err}
	}
}

func (m Model) summarize(source string) tea.Cmd {
	return func() tea.Msg {
		s, err := m.port.Summarize(m.ctx, source)
		return summaryMsg{source: source, summary: s, err: err}
	}
}

func (m Model) ingest(path string) tea.Cmd {
	return func() tea.Msg {
		res, err := m.port.Ingest(m.ctx, path)
		return ingestMsg{result: res, err: err}
	}
}

func (m *Model) refresh() {
	wrap := lipgloss.NewStyle().Width(m.viewport.Width)
	m.viewport.SetContent(wrap.Render(strings.Join(m.transcript, "\n\n")))
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Analyst Assistant")
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + transcript + "\n" + input + "\n" + status
}

func renderAnswer(v response.View) string {
	var b strings.Builder
	b.WriteString(labelStyle.Render("Assistant: "))
	switch v.Kind {
	case response.KindChart:
		b.WriteString(renderChart(v.Chart))
	case response.KindChartError:
		b.WriteString(errorStyle.Render(v.ChartError))
		b.WriteString("\n" + mutedStyle.Render(v.Answer))
	default:
		b.WriteString(v.Answer)
	}

	if sources := sourceNames(v.Sources); len(sources) > 0 {
		b.WriteString("\n" + mutedStyle.Render("Sources: "+strings.Join(sources, ", ")))
	}
	if len(v.NextSteps) > 0 {
		b.WriteString("\n" + labelStyle.Render("Suggested next steps:"))
		for i, s := range v.NextSteps {
			fmt.Fprintf(&b, "\n  %d. %s", i+1, s)
		}
	}
	return b.String()
}

func renderChart(spec *response.ChartSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s chart: %s\n", spec.ChartType, spec.Title)
	fmt.Fprintf(&b, "  %s / %s", spec.XAxis.Label, spec.YAxis.Label)
	for i, label := range spec.XAxis.Data {
		fmt.Fprintf(&b, "\n  %s: %g", label, spec.YAxis.Data[i])
	}
	return b.String()
}

func sourceNames(metadatas []map[string]string) []string {
	seen := map[string]bool{}
	var out []string
	for _, md := range metadatas {
		s := md[models.SourceKey]
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	labelStyle         = lipgloss.NewStyle().Bold(true)
	mutedStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)
