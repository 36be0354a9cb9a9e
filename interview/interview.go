package interview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"rehearse/api"
	"rehearse/device"
	"rehearse/feedback"
	"rehearse/log"
	"rehearse/media"
	"rehearse/playback"
	"rehearse/posture"
	"rehearse/recorder"
	"rehearse/speech"
	"rehearse/transcriber"
	"rehearse/tts"
)

// SkipAnswer is sent in place of an answer when a question is skipped.
const SkipAnswer = "skip"

var (
	ErrMissingInput   = errors.New("job description and resume are required")
	ErrEmptyAnswer    = errors.New("answer is empty")
	ErrSubmitInFlight = errors.New("an answer is already being submitted")
	ErrNotActive      = errors.New("no question is waiting for an answer")
	ErrBusy           = errors.New("an interview is already in progress")
	ErrClosed         = errors.New("interview closed")
)

type State int

const (
	Setup State = iota
	Loading
	Active
	Submitting
	Complete
)

func (s State) String() string {
	switch s {
	case Setup:
		return "setup"
	case Loading:
		return "loading"
	case Active:
		return "active"
	case Submitting:
		return "submitting"
	case Complete:
		return "complete"
	}
	return "unknown"
}

// Session mirrors the remote interview. It changes only in response to
// the service.
type Session struct {
	ID              string
	Status          string
	QuestionIndex   int
	MaxQuestions    *int
	InterviewerText string
}

// Resume is either inline text or a file to be parsed by the service.
type Resume struct {
	Text string
	Path string
}

// Service is the remote interview backend.
type Service interface {
	StartInterview(ctx context.Context, r api.StartRequest) (*api.Turn, error)
	Respond(ctx context.Context, r api.RespondRequest) (*api.Turn, error)
	ParseResume(ctx context.Context, filename string, r io.Reader) (string, error)
	feedback.Client
	posture.Analyzer
	recorder.Transcriber
}

type Config struct {
	MaxQuestions    int
	Speech          speech.Config
	Feedback        feedback.Config
	PostureInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxQuestions:    5,
		Speech:          speech.DefaultConfig(),
		Feedback:        feedback.Config{Window: feedback.DefaultWindow, MinChars: feedback.DefaultMinChars},
		PostureInterval: posture.DefaultInterval,
	}
}

// View is a snapshot for front-ends.
type View struct {
	State           State
	Session         Session
	Answer          string
	Draft           string // committed answer text, untrimmed
	Interim         string
	Listening       bool
	Speaking        bool
	Recording       bool
	Feedback        *feedback.Result
	Posture         *posture.Feedback
	PostureDisabled bool
	Microphone      string
	Camera          string
	Level           float64
	MediaErr        error
	Err             error
}

// Coordinator drives one interview at a time: it owns the session and the
// question index and wires capture, recognition, playback and coaching
// around them.
type Coordinator struct {
	cfg      Config
	svc      Service
	media    *media.Manager
	devices  *device.Selector
	buf      *speech.Buffer
	speech   *speech.Stream
	tts      *tts.Controller
	feedback *feedback.Debouncer
	posture  *posture.Monitor
	recorder *recorder.Recorder

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	session   Session
	gen       uint64
	beginning bool
	closed    bool
	err       error
	mediaErr  error
	onChange  func(View)
}

func New(cfg Config, svc Service, mgr *media.Manager, devices *device.Selector, rec transcriber.Recognizer, player playback.Player) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		cfg:     cfg,
		svc:     svc,
		media:   mgr,
		devices: devices,
		buf:     speech.NewBuffer(),
		tts:     tts.New(player),
		ctx:     ctx,
		cancel:  cancel,
	}
	c.speech = speech.NewStream(rec, c.buf, c.audioSource, cfg.Speech)
	c.feedback = feedback.New(svc, c.feedbackKey, cfg.Feedback)
	c.posture = posture.New(svc, c.frame, cfg.PostureInterval)
	c.recorder = recorder.New(svc, c.buf, c.Submit)

	if mgr.OnAcquired == nil && devices != nil {
		mgr.OnAcquired = devices.Invalidate
	}

	c.tts.OnSpeaking(func(speaking bool) {
		c.speech.SetSpeaking(speaking)
		c.changed()
	})
	c.buf.OnChange(c.answerChanged)
	c.speech.OnState(func(speech.State) { c.changed() })
	c.feedback.OnUpdate(func(*feedback.Result) { c.changed() })
	c.posture.OnUpdate(func(*posture.Feedback) { c.changed() })
	return c
}

// OnChange registers fn to receive a fresh View after every change.
func (c *Coordinator) OnChange(fn func(View)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

func (c *Coordinator) changed() {
	c.mu.Lock()
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn(c.View())
	}
}

func (c *Coordinator) View() View {
	c.mu.Lock()
	v := View{
		State:    c.state,
		Session:  c.session,
		MediaErr: c.mediaErr,
		Err:      c.err,
	}
	c.mu.Unlock()

	v.Answer = c.buf.Text()
	v.Draft = c.buf.Final()
	v.Interim = c.buf.Interim()
	v.Listening = c.speech.Listening()
	v.Speaking = c.tts.Speaking()
	v.Recording = c.recorder.Recording()
	v.Feedback = c.feedback.Latest()
	v.Posture = c.posture.Latest()
	v.PostureDisabled = c.posture.Disabled()

	stream := c.media.Stream()
	if a := stream.Audio(); a != nil {
		v.Microphone = a.DeviceName()
		v.Level = a.Level()
	}
	if vt := stream.Video(); vt != nil {
		v.Camera = vt.CameraName()
	}
	return v
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Buffer exposes the answer transcript for the current question.
func (c *Coordinator) Buffer() *speech.Buffer { return c.buf }

// Open acquires the microphone and camera for the interview screen.
// Failure is recorded for the view but never blocks the interview.
func (c *Coordinator) Open(ctx context.Context) {
	_, err := c.media.Start(ctx, c.media.Selection())
	if err != nil {
		log.Warnf("media capture unavailable: %v", err)
	}
	c.mu.Lock()
	c.mediaErr = err
	c.mu.Unlock()
	c.changed()
}

// Begin starts a new interview. A resume file is parsed by the service
// first; any failure leaves the coordinator in Setup.
func (c *Coordinator) Begin(ctx context.Context, jobDescription string, resume Resume) error {
	jobDescription = strings.TrimSpace(jobDescription)
	resumeText := strings.TrimSpace(resume.Text)
	if jobDescription == "" || (resumeText == "" && resume.Path == "") {
		return ErrMissingInput
	}

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.beginning || (c.state != Setup && c.state != Complete):
		c.mu.Unlock()
		return ErrBusy
	}
	c.beginning = true
	c.state = Setup
	c.err = nil
	c.mu.Unlock()
	c.changed()

	if resume.Path != "" {
		text, err := c.parseResume(ctx, resume.Path)
		if err != nil {
			return c.failBegin(fmt.Errorf("parse resume: %w", err))
		}
		resumeText = text
	}

	// fresh per-session state
	c.resetQuestion()
	c.posture.Reset()
	c.feedback.SetSession("")

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.gen++
	gen := c.gen
	c.state = Loading
	c.session = Session{}
	c.mu.Unlock()
	c.changed()

	turn, err := c.svc.StartInterview(ctx, api.StartRequest{
		JobDescription: jobDescription,
		Resume:         resumeText,
		MaxQuestions:   c.cfg.MaxQuestions,
	})
	if err == nil && turn.SessionID == "" {
		err = errors.New("service returned no session id")
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return ErrClosed
	}
	c.beginning = false
	if err != nil {
		c.state = Setup
		c.err = err
		c.mu.Unlock()
		c.changed()
		return fmt.Errorf("start interview: %w", err)
	}
	c.session = Session{ID: turn.SessionID}
	c.applyTurnLocked(turn)
	complete := c.completeLocked()
	sess := c.session
	if complete {
		c.state = Complete
	} else {
		c.state = Active
	}
	c.mu.Unlock()

	log.SessionStart(sess.ID, c.maxQuestions(sess))
	if complete {
		c.endSession(sess)
		c.speak(turn)
		c.changed()
		return nil
	}

	c.feedback.SetSession(sess.ID)
	c.posture.SetSession(sess.ID)
	c.speak(turn)
	c.speech.Activate()
	c.posture.Start()
	c.changed()
	return nil
}

func (c *Coordinator) failBegin(err error) error {
	c.mu.Lock()
	c.beginning = false
	c.state = Setup
	c.err = err
	c.mu.Unlock()
	c.changed()
	return err
}

func (c *Coordinator) parseResume(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	text, err := c.svc.ParseResume(ctx, filepath.Base(path), f)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%s: %w", filepath.Base(path), ErrMissingInput)
	}
	return text, nil
}

// Submit sends answer for the current question.
func (c *Coordinator) Submit(ctx context.Context, answer string) error {
	return c.respond(ctx, strings.TrimSpace(answer), false)
}

// SubmitTranscript submits the visible answer transcript.
func (c *Coordinator) SubmitTranscript(ctx context.Context) error {
	return c.Submit(ctx, c.buf.Text())
}

func (c *Coordinator) Skip(ctx context.Context) error {
	return c.respond(ctx, SkipAnswer, false)
}

// Finish skips the current question and asks the service to wrap up.
func (c *Coordinator) Finish(ctx context.Context) error {
	return c.respond(ctx, SkipAnswer, true)
}

func (c *Coordinator) respond(ctx context.Context, text string, end bool) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.state == Submitting:
		c.mu.Unlock()
		return ErrSubmitInFlight
	case c.state != Active:
		c.mu.Unlock()
		return ErrNotActive
	case text == "":
		c.mu.Unlock()
		return ErrEmptyAnswer
	}
	c.state = Submitting
	c.err = nil
	gen := c.gen
	sess := c.session
	c.mu.Unlock()
	c.changed()

	log.Submission(sess.ID, sess.QuestionIndex, text)
	turn, err := c.svc.Respond(ctx, api.RespondRequest{
		SessionID:     sess.ID,
		CandidateText: text,
		EndInterview:  end,
	})

	c.mu.Lock()
	if gen != c.gen || c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if err != nil {
		c.state = Active
		c.err = err
		c.mu.Unlock()
		log.Warnf("submit failed for question %d: %v", sess.QuestionIndex, err)
		c.changed()
		return fmt.Errorf("submit answer: %w", err)
	}
	c.applyTurnLocked(turn)
	complete := end || c.completeLocked()
	if complete {
		c.state = Complete
	} else {
		c.state = Active
	}
	sess = c.session
	c.mu.Unlock()

	c.resetQuestion()
	if complete {
		c.endSession(sess)
	}
	c.speak(turn)
	c.changed()
	return nil
}

// applyTurnLocked folds a service response into the session. The question
// index only moves forward.
func (c *Coordinator) applyTurnLocked(turn *api.Turn) {
	if turn.SessionID != "" {
		c.session.ID = turn.SessionID
	}
	if turn.Status != "" {
		c.session.Status = turn.Status
	}
	if turn.QuestionCount > c.session.QuestionIndex {
		c.session.QuestionIndex = turn.QuestionCount
	} else if turn.QuestionCount < c.session.QuestionIndex {
		log.Warnf("ignoring question index %d behind current %d", turn.QuestionCount, c.session.QuestionIndex)
	}
	if turn.MaxQuestions != nil {
		n := *turn.MaxQuestions
		c.session.MaxQuestions = &n
	} else if c.session.MaxQuestions == nil && c.cfg.MaxQuestions > 0 {
		n := c.cfg.MaxQuestions
		c.session.MaxQuestions = &n
	}
	c.session.InterviewerText = turn.InterviewerText
}

func (c *Coordinator) completeLocked() bool {
	if c.session.Status == api.StatusComplete {
		return true
	}
	return c.session.MaxQuestions != nil && c.session.QuestionIndex >= *c.session.MaxQuestions
}

func (c *Coordinator) maxQuestions(s Session) int {
	if s.MaxQuestions != nil {
		return *s.MaxQuestions
	}
	return c.cfg.MaxQuestions
}

// endSession stops per-session activity after the last question.
func (c *Coordinator) endSession(sess Session) {
	c.speech.Deactivate()
	c.posture.Reset()
	c.feedback.Reset()
	c.feedback.SetSession("")
	c.recorder.Discard()
	log.SessionEnd(sess.ID, sess.QuestionIndex)
}

// speak plays the interviewer's audio, if the turn carried any.
func (c *Coordinator) speak(turn *api.Turn) {
	payload, err := turn.Audio()
	if err != nil {
		log.Warnf("interviewer audio: %v", err)
		return
	}
	if len(payload) == 0 {
		return
	}
	if err := c.tts.Play(c.ctx, payload); err != nil {
		log.Warnf("interviewer audio: %v", err)
	}
}

// resetQuestion clears everything tied to the current question.
func (c *Coordinator) resetQuestion() {
	c.recorder.Discard()
	c.buf.Clear()
	c.feedback.Reset()
}

// Clear discards the answer composed so far.
func (c *Coordinator) Clear() {
	c.resetQuestion()
	c.changed()
}

// SetAnswerText replaces the answer with a typed edit.
func (c *Coordinator) SetAnswerText(text string) {
	c.buf.SetText(text)
}

func (c *Coordinator) answerChanged() {
	c.mu.Lock()
	sess, st := c.session, c.state
	c.mu.Unlock()
	if st == Active || st == Submitting {
		key := feedback.Key{Question: sess.QuestionIndex, Generation: c.buf.Generation()}
		c.feedback.Update(key, sess.InterviewerText, c.buf.Text())
	}
	c.changed()
}

func (c *Coordinator) feedbackKey() feedback.Key {
	c.mu.Lock()
	q := c.session.QuestionIndex
	c.mu.Unlock()
	return feedback.Key{Question: q, Generation: c.buf.Generation()}
}

func (c *Coordinator) audioSource() speech.AudioSource {
	if a := c.media.Stream().Audio(); a != nil {
		return a
	}
	return nil
}

// frame gates posture analysis: only while a question is open and the
// camera is delivering.
func (c *Coordinator) frame() ([]byte, bool) {
	c.mu.Lock()
	active := c.state == Active
	c.mu.Unlock()
	if !active {
		return nil, false
	}
	vt := c.media.Stream().Video()
	if vt == nil {
		return nil, false
	}
	img, err := vt.Frame()
	if err != nil {
		log.Debugf("posture: no frame: %v", err)
		return nil, false
	}
	return img, true
}

// StartRecording begins a push-to-talk answer.
func (c *Coordinator) StartRecording() error {
	if c.State() != Active {
		return ErrNotActive
	}
	if err := c.recorder.Start(c.media.Stream()); err != nil {
		return err
	}
	c.changed()
	return nil
}

// StopRecording finishes the push-to-talk answer, transcribes it and
// submits the text.
func (c *Coordinator) StopRecording(ctx context.Context) error {
	a, err := c.recorder.Stop()
	c.changed()
	if err != nil {
		return err
	}
	if _, err := c.recorder.Submit(ctx, a); err != nil {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		c.changed()
		return err
	}
	return nil
}

// ListenMicrophone subscribes fn to live microphone PCM. ok is false when
// no microphone track is open.
func (c *Coordinator) ListenMicrophone(fn func(pcm []byte)) (cancel func(), ok bool) {
	a := c.media.Stream().Audio()
	if a == nil {
		return func() {}, false
	}
	return a.Subscribe(fn), true
}

// CancelRecording drops the push-to-talk answer without submitting it.
func (c *Coordinator) CancelRecording() {
	c.recorder.Discard()
	c.changed()
}

// NextMicrophone switches capture to the next known microphone.
func (c *Coordinator) NextMicrophone(ctx context.Context) (*device.Ref, error) {
	sel := c.media.Selection()
	next := c.devices.NextMicrophone(ctx, sel.Microphone)
	if next == nil {
		return nil, fmt.Errorf("microphone: %w", media.ErrNoDevices)
	}
	sel.Microphone = next
	return next, c.reselect(ctx, sel)
}

// NextCamera switches capture to the next known camera.
func (c *Coordinator) NextCamera(ctx context.Context) (*device.Ref, error) {
	sel := c.media.Selection()
	next := c.devices.NextCamera(ctx, sel.Camera)
	if next == nil {
		return nil, fmt.Errorf("camera: %w", media.ErrNoDevices)
	}
	sel.Camera = next
	return next, c.reselect(ctx, sel)
}

func (c *Coordinator) reselect(ctx context.Context, sel device.Selection) error {
	// the recorder and recognizer hold subscriptions on the old track
	c.recorder.Discard()
	_, err := c.media.SetSelection(ctx, sel)
	if err != nil {
		log.Warnf("switching devices: %v", err)
	}
	c.mu.Lock()
	c.mediaErr = err
	st := c.state
	c.mu.Unlock()
	if st == Active || st == Submitting {
		c.speech.Deactivate()
		c.speech.Activate()
	}
	c.changed()
	return err
}

// Close tears the interview screen down. Late responses are dropped.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.gen++
	sess, st := c.session, c.state
	c.mu.Unlock()

	c.speech.Close()
	c.posture.Stop()
	c.feedback.Stop()
	c.tts.Stop()
	c.recorder.Discard()
	c.media.Stop()
	c.cancel()
	if sess.ID != "" && st != Complete {
		log.SessionEnd(sess.ID, sess.QuestionIndex)
	}
}
