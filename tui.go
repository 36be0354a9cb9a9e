package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"rehearse/audio"
	"rehearse/clipboard"
	"rehearse/interview"
)

// TUI message types
type refreshMsg struct{}
type noticeMsg struct {
	Text string
	Err  bool
}
type opDoneMsg struct {
	Op  string
	Err error
}
type tickMsg time.Time

const (
	fieldJob = iota
	fieldResume
)

type tuiModel struct {
	coord         *interview.Coordinator
	view          interview.View
	frame         int
	width, height int

	job    string
	resume string
	field  int

	notice    string
	noticeErr bool
	copied    bool
}

var (
	tuiProgram *tea.Program
	tuiMu      sync.Mutex
	tuiQueue   = make(chan tea.Msg, 64)
)

var (
	pixelColorsListen = []string{"", "226", "220", "214", "208", "196", "160", "124", "88", "52", "236", "236", "236", "236", "255", "249"}
	pixelColorsIdle   = []string{"", "231", "224", "217", "210", "160", "124", "88", "52", "236", "236", "236", "236", "236", "255", "249"}
	pixelColorsSpeak  = []string{"", "195", "159", "123", "87", "45", "39", "33", "27", "236", "236", "236", "236", "236", "255", "249"}
	eyePalettes       [3]eyePalette
)

type eyePalette struct {
	fg [16]lipgloss.Style
	bg [16][16]lipgloss.Style
}

type eyeMode int

const (
	eyeIdle eyeMode = iota
	eyeListening
	eyeSpeaking
)

func init() {
	for mode, colors := range [][]string{pixelColorsIdle, pixelColorsListen, pixelColorsSpeak} {
		p := &eyePalettes[mode]
		for i, fg := range colors {
			if fg == "" {
				continue
			}
			p.fg[i] = lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
			for j, bg := range colors {
				if bg != "" {
					p.bg[i][j] = lipgloss.NewStyle().Foreground(lipgloss.Color(fg)).Background(lipgloss.Color(bg))
				}
			}
		}
	}
}

func NewTUIProgram(coord *interview.Coordinator, job, resume string) *tea.Program {
	m := tuiModel{coord: coord, view: coord.View(), job: job, resume: resume}
	if job != "" {
		m.field = fieldResume
	}
	p := tea.NewProgram(m, tea.WithAltScreen())
	go func() {
		for msg := range tuiQueue {
			p.Send(msg)
		}
	}()
	return p
}

// tuiSend queues msg without blocking, so coordinator callbacks may fire
// from inside Update. Refreshes dropped on a full queue are covered by the
// next tick.
func tuiSend(msg tea.Msg) {
	select {
	case tuiQueue <- msg:
	default:
	}
}

func tuiTick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

// op runs a blocking coordinator call off the UI goroutine.
func op(name string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{Op: name, Err: fn(context.Background())}
	}
}

// resumeInput treats the field as a file path when it names a readable
// file, and as pasted text otherwise.
func resumeInput(s string) interview.Resume {
	s = strings.TrimSpace(s)
	if s == "" {
		return interview.Resume{}
	}
	if !strings.ContainsRune(s, '\n') {
		if st, err := os.Stat(s); err == nil && st.Mode().IsRegular() {
			return interview.Resume{Path: s}
		}
	}
	return interview.Resume{Text: s}
}

func dropLastRune(s string) string {
	if s == "" {
		return s
	}
	_, size := utf8.DecodeLastRuneInString(s)
	return s[:len(s)-size]
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.frame++
		m = m.refresh()
		return m, tuiTick()

	case refreshMsg:
		m = m.refresh()

	case noticeMsg:
		m.notice = msg.Text
		m.noticeErr = msg.Err

	case opDoneMsg:
		if msg.Err != nil {
			m.notice = fmt.Sprintf("%s: %v", msg.Op, msg.Err)
			m.noticeErr = true
		} else {
			m.notice = ""
		}

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.view.State {
		case interview.Setup, interview.Complete:
			return m.updateSetup(msg)
		case interview.Active, interview.Submitting:
			return m.updateActive(msg)
		}
	}
	return m, nil
}

// refresh reads a fresh snapshot. Snapshots are never carried in messages
// so a late message cannot roll back typed text.
func (m tuiModel) refresh() tuiModel {
	prev := m.view.State
	m.view = m.coord.View()
	if prev != m.view.State {
		m.copied = false
	}
	return m
}

func (m tuiModel) updateSetup(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	field := &m.job
	if m.field == fieldResume {
		field = &m.resume
	}
	switch msg.Type {
	case tea.KeyTab, tea.KeyShiftTab:
		m.field = 1 - m.field
	case tea.KeyEnter:
		job, resume := m.job, resumeInput(m.resume)
		m.notice = "Starting interview..."
		m.noticeErr = false
		coord := m.coord
		return m, op("start", func(ctx context.Context) error {
			return coord.Begin(ctx, job, resume)
		})
	case tea.KeyCtrlJ:
		*field += "\n"
	case tea.KeyBackspace:
		*field = dropLastRune(*field)
	case tea.KeyCtrlU:
		*field = ""
	case tea.KeySpace:
		*field += " "
	case tea.KeyRunes:
		*field += string(msg.Runes)
	}
	return m, nil
}

func (m tuiModel) updateActive(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	coord := m.coord
	switch msg.String() {
	case "enter":
		return m, op("submit", coord.SubmitTranscript)
	case "ctrl+s":
		return m, op("skip", coord.Skip)
	case "ctrl+e":
		return m, op("finish", coord.Finish)
	case "ctrl+l":
		coord.Clear()
		return m.refresh(), nil
	case "ctrl+r":
		if m.view.Recording {
			go beepEnd()
			return m, op("recording", coord.StopRecording)
		}
		if err := coord.StartRecording(); err != nil {
			go beepError()
			m.notice = "recording: " + err.Error()
			m.noticeErr = true
			return m, nil
		}
		go beepStart()
		go watchSilence(coord, func() bool { return true })
		return m.refresh(), nil
	case "ctrl+g":
		return m, op("microphone", func(ctx context.Context) error {
			_, err := coord.NextMicrophone(ctx)
			return err
		})
	case "ctrl+t":
		return m, op("camera", func(ctx context.Context) error {
			_, err := coord.NextCamera(ctx)
			return err
		})
	case "ctrl+y":
		if err := clipboard.Copy(m.view.Answer); err != nil {
			m.notice = "copy: " + err.Error()
			m.noticeErr = true
		} else {
			m.copied = true
		}
		return m, nil
	}

	// typing commits any provisional text first
	draft := m.view.Draft + m.view.Interim
	switch msg.Type {
	case tea.KeyBackspace:
		coord.SetAnswerText(dropLastRune(draft))
	case tea.KeySpace:
		coord.SetAnswerText(draft + " ")
	case tea.KeyRunes:
		coord.SetAnswerText(draft + string(msg.Runes))
	default:
		return m, nil
	}
	return m.refresh(), nil
}

var (
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	faintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
	textStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	boldStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	goodStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	recStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	speakStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("45")).Bold(true)
	listenStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
)

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	const eyeWidth = 45
	v := m.view

	mode := eyeIdle
	level := 0.0
	switch {
	case v.Speaking:
		mode = eyeSpeaking
	case v.Listening || v.Recording:
		mode = eyeListening
		level = v.Level
	}
	eye := renderEye(m.frame, level, mode)

	var infoLines []string
	infoLines = append(infoLines, statusLine(v))
	infoLines = append(infoLines, dimStyle.Render(deviceLineText(v.Microphone, "ctrl+g")))
	infoLines = append(infoLines, dimStyle.Render("level "+levelBar(v.Level, 20)))
	camera := "camera: none"
	if v.Camera != "" {
		camera = "camera: " + v.Camera + " (ctrl+t)"
	}
	infoLines = append(infoLines, dimStyle.Render(camera))
	if v.MediaErr != nil {
		infoLines = append(infoLines, errStyle.Render("⚠ capture: "+v.MediaErr.Error()))
	}
	infoLines = append(infoLines, "", faintStyle.Render("rehearse "+version))
	for _, line := range infoLines {
		eye += line + "\n"
	}
	eyeLines := strings.Split(eye, "\n")

	panelWidth := max(m.width-eyeWidth-1, 20)
	wrapWidth := max(panelWidth-2, 10)

	var content string
	switch v.State {
	case interview.Setup, interview.Complete:
		content = m.renderSetup(wrapWidth)
	case interview.Loading:
		content = labelStyle.Render("Preparing your interview...")
	default:
		content = m.renderInterview(wrapWidth)
	}

	panel := lipgloss.NewStyle().
		Width(panelWidth).
		Height(m.height).
		PaddingLeft(1).
		Render(content)

	eyePadded := make([]string, m.height)
	for i := range eyePadded {
		if i < len(eyeLines) {
			eyePadded[i] = eyeLines[i]
		} else {
			eyePadded[i] = strings.Repeat(" ", eyeWidth-1)
		}
	}
	eyePanel := lipgloss.NewStyle().
		Width(eyeWidth - 1).
		Height(m.height).
		Render(strings.Join(eyePadded, "\n"))

	return lipgloss.JoinHorizontal(lipgloss.Top, eyePanel, panel)
}

func statusLine(v interview.View) string {
	switch {
	case v.Recording:
		return recStyle.Render("● REC")
	case v.State == interview.Submitting:
		return labelStyle.Render("… SUBMITTING")
	case v.Speaking:
		return speakStyle.Render("◆ INTERVIEWER SPEAKING")
	case v.Listening:
		return listenStyle.Render("● LISTENING")
	case v.State == interview.Complete:
		return goodStyle.Render("✓ COMPLETE")
	}
	return dimStyle.Render("○ STANDBY")
}

func deviceLineText(name, key string) string {
	if name == "" {
		return "mic: none (" + key + ")"
	}
	suffix := ""
	if audio.IsBluetooth(name) {
		suffix = " (BT!)"
	}
	return "mic: " + name + suffix + " (" + key + ")"
}

func levelBar(level float64, width int) string {
	n := int(math.Round(math.Min(level*10, 1) * float64(width)))
	return strings.Repeat("█", n) + strings.Repeat("░", width-n)
}

func (m tuiModel) noticeLine() string {
	if m.notice == "" {
		return ""
	}
	if m.noticeErr {
		return errStyle.Render(m.notice)
	}
	return labelStyle.Render(m.notice)
}

func (m tuiModel) renderSetup(width int) string {
	var b strings.Builder
	if m.view.State == interview.Complete {
		s := m.view.Session
		b.WriteString(goodStyle.Render(fmt.Sprintf("Interview complete: %d question(s) answered.", s.QuestionIndex)) + "\n")
		if s.InterviewerText != "" {
			for _, line := range wrapText(s.InterviewerText, width) {
				b.WriteString(textStyle.Render(line) + "\n")
			}
		}
		b.WriteString("\n" + labelStyle.Render("Start another interview:") + "\n\n")
	} else {
		b.WriteString(labelStyle.Render("New mock interview") + "\n\n")
	}

	fields := []struct {
		title, value string
	}{
		{"Job description", m.job},
		{"Resume (text or file path)", m.resume},
	}
	for i, f := range fields {
		marker := "  "
		style := dimStyle
		if i == m.field {
			marker = "▶ "
			style = labelStyle
		}
		b.WriteString(style.Render(marker+f.title) + "\n")
		value := f.value
		if i == m.field {
			value += "▏"
		}
		for _, line := range wrapText(value, width-2) {
			b.WriteString("  " + textStyle.Render(line) + "\n")
		}
		b.WriteString("\n")
	}

	if n := m.noticeLine(); n != "" {
		b.WriteString(n + "\n\n")
	}
	b.WriteString(boldStyle.Render("Tab") + faintStyle.Render(" switch field  ") +
		boldStyle.Render("Ctrl+J") + faintStyle.Render(" newline  ") +
		boldStyle.Render("Enter") + faintStyle.Render(" start  ") +
		boldStyle.Render("Ctrl+C") + faintStyle.Render(" quit"))
	return b.String()
}

func (m tuiModel) renderInterview(width int) string {
	v := m.view
	var b strings.Builder

	progress := fmt.Sprintf("Question %d", v.Session.QuestionIndex+1)
	if v.Session.MaxQuestions != nil {
		progress += fmt.Sprintf(" of %d", *v.Session.MaxQuestions)
	}
	b.WriteString(labelStyle.Render(progress) + "\n\n")
	for _, line := range wrapText(v.Session.InterviewerText, width) {
		b.WriteString(textStyle.Render(line) + "\n")
	}

	b.WriteString("\n" + labelStyle.Render("Your answer") + "\n")
	answer := v.Draft
	if strings.TrimSpace(answer) == "" && v.Interim == "" {
		b.WriteString(dimStyle.Render("Speak, type, or hold "+hotkeyLabel+" to record") + "\n")
	} else {
		lines := wrapText(answer, width)
		for i, line := range lines {
			b.WriteString(line)
			if i == len(lines)-1 {
				if v.Interim != "" {
					b.WriteString(" " + dimStyle.Render(v.Interim))
				}
				if m.copied {
					b.WriteString(" " + goodStyle.Render("[✓ copied]"))
				}
			}
			b.WriteString("\n")
		}
	}

	if fb := v.Feedback; fb != nil {
		b.WriteString("\n" + labelStyle.Render("Live feedback"))
		if fb.Score != nil {
			b.WriteString(labelStyle.Render(fmt.Sprintf("  score %d/100", *fb.Score)))
		}
		switch fb.Sentiment {
		case "positive":
			b.WriteString("  " + goodStyle.Render("on track"))
		case "needs_work":
			b.WriteString("  " + errStyle.Render("needs work"))
		}
		b.WriteString("\n")
		for _, tip := range fb.Tips {
			for i, line := range wrapText(tip, width-2) {
				prefix := "  "
				if i == 0 {
					prefix = "• "
				}
				b.WriteString(prefix + line + "\n")
			}
		}
	}

	switch p := v.Posture; {
	case v.PostureDisabled:
		b.WriteString("\n" + dimStyle.Render("Posture analysis unavailable for this session") + "\n")
	case p != nil && p.Error != "":
		b.WriteString("\n" + labelStyle.Render("Posture") + "\n" + errStyle.Render(p.Error) + "\n")
	case p != nil && len(p.Tips) > 0:
		b.WriteString("\n" + labelStyle.Render("Posture") + "\n")
		for _, tip := range p.Tips {
			b.WriteString("• " + tip + "\n")
		}
	}

	if n := m.noticeLine(); n != "" {
		b.WriteString("\n" + n + "\n")
	} else if v.Err != nil {
		b.WriteString("\n" + errStyle.Render(v.Err.Error()) + "\n")
	}

	b.WriteString("\n" +
		boldStyle.Render("Enter") + faintStyle.Render(" submit  ") +
		boldStyle.Render("Ctrl+R") + faintStyle.Render(" record  ") +
		boldStyle.Render("Ctrl+S") + faintStyle.Render(" skip  ") +
		boldStyle.Render("Ctrl+E") + faintStyle.Render(" finish  ") +
		boldStyle.Render("Ctrl+L") + faintStyle.Render(" clear  ") +
		boldStyle.Render("Ctrl+Y") + faintStyle.Render(" copy"))
	return b.String()
}

// renderEye draws the interviewer as a glowing eye: warm and voice
// reactive while listening, cool while speaking.
func renderEye(frame int, level float64, mode eyeMode) string {
	const charsW = 44
	const charsH = 15
	const pixW = charsW
	const pixH = charsH * 2

	centerX := float64(pixW) / 2
	centerY := float64(pixH) / 2

	var breathe float64
	switch mode {
	case eyeListening:
		breathe = math.Sin(float64(frame)*0.10)*0.03 + level*10.0 - 0.05
	case eyeSpeaking:
		breathe = math.Abs(math.Sin(float64(frame)*0.35))*0.12 - 0.04
	default:
		breathe = math.Sin(float64(frame)*0.08)*0.02 - 0.05
	}

	pixels := make([][]int, pixH)
	for i := range pixels {
		pixels[i] = make([]int, pixW)
	}

	rings := []struct {
		radius     float64
		breatheAmt float64
	}{
		{0.6, 0.10}, {1.3, 0.12}, {2.0, 0.15}, {2.8, 0.35}, {3.5, 0.40},
		{4.2, 0.38}, {5.0, 0.30}, {5.8, 0.15}, {6.5, 0.03}, {7.2, 0},
		{8.0, 0}, {10.0, 0}, {12.0, 0},
	}
	for y := range pixH {
		for x := range pixW {
			dx := float64(x) - centerX
			dy := float64(y) - centerY
			dist := math.Sqrt(dx*dx + dy*dy)
			for i, r := range rings {
				radius := math.Min(r.radius+breathe*r.breatheAmt*20, 10.0)
				if dist < radius {
					pixels[y][x] = i + 1
					break
				}
			}
		}
	}

	// glass reflections
	spots := []struct {
		ox, oy, radius float64
		color          int
	}{
		{-9 * 0.707, -9 * 0.707, 0.7, 14},
		{-7.2 * 0.707, -7.2 * 0.707, 0.4, 15},
		{0, -10, 0.8, 14},
		{0, -8.2, 0.6, 15},
		{9 * 0.707, -9 * 0.707, 0.7, 14},
		{7.2 * 0.707, -7.2 * 0.707, 0.4, 15},
		{0, -2.0, 0.6, 14},
	}
	for y := range pixH {
		for x := range pixW {
			px := float64(x) - centerX
			py := float64(y) - centerY
			for _, s := range spots {
				dx, dy := px-s.ox, py-s.oy
				rLen := math.Max(math.Hypot(s.ox, s.oy), 1)
				tx, ty := -s.oy/rLen, s.ox/rLen
				dt := dx*tx + dy*ty
				dn := dx*(-ty) + dy*tx
				if (dt*dt)/9.0+dn*dn < s.radius*s.radius {
					pixels[y][x] = s.color
				}
			}
		}
	}

	p := &eyePalettes[mode]
	var out strings.Builder
	for cy := range charsH {
		for cx := range charsW {
			top, bot := pixels[cy*2][cx], pixels[cy*2+1][cx]
			switch {
			case top == 0 && bot == 0:
				out.WriteString(" ")
			case top == bot:
				out.WriteString(p.fg[top].Render("█"))
			case bot == 0:
				out.WriteString(p.fg[top].Render("▀"))
			case top == 0:
				out.WriteString(p.fg[bot].Render("▄"))
			default:
				out.WriteString(p.bg[top][bot].Render("▀"))
			}
		}
		out.WriteString("\n")
	}
	return out.String()
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for _, para := range strings.Split(text, "\n") {
		runes := []rune(para)
		for len(runes) > width {
			splitAt := width
			for i := width; i > 0; i-- {
				if runes[i] == ' ' {
					splitAt = i
					break
				}
			}
			lines = append(lines, string(runes[:splitAt]))
			runes = []rune(strings.TrimLeft(string(runes[splitAt:]), " "))
		}
		lines = append(lines, string(runes))
	}
	return lines
}
