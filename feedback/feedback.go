package feedback

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"rehearse/api"
	"rehearse/debounce"
	"rehearse/log"
)

const (
	DefaultWindow   = 800 * time.Millisecond
	DefaultMinChars = 10
	requestTimeout  = 15 * time.Second
)

// Key ties feedback to the question and transcript generation it was
// requested for.
type Key struct {
	Question   int
	Generation uint64
}

type Result struct {
	Key       Key
	Tips      []string
	Score     *int
	Sentiment string
}

type Client interface {
	LiveFeedback(ctx context.Context, r api.LiveFeedbackRequest) (*api.LiveFeedback, error)
}

type request struct {
	key       Key
	sessionID string
	question  string
	answer    string
}

type Config struct {
	Window   time.Duration
	MinChars int
}

// Debouncer requests coaching tips for the answer being composed, at most
// once per quiet window, and keeps only the newest response for the
// current key.
type Debouncer struct {
	client   Client
	current  func() Key
	minChars int
	deb      *debounce.Trailing[request]

	mu       sync.Mutex
	session  string
	issued   uint64
	applied  uint64
	latest   *Result
	stopped  bool
	ctx      context.Context
	cancel   context.CancelFunc
	onUpdate func(*Result)
}

func New(client Client, current func() Key, cfg Config) *Debouncer {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MinChars <= 0 {
		cfg.MinChars = DefaultMinChars
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Debouncer{
		client:   client,
		current:  current,
		minChars: cfg.MinChars,
		ctx:      ctx,
		cancel:   cancel,
	}
	d.deb = debounce.New(cfg.Window, d.send)
	return d
}

// OnUpdate registers fn to run whenever Latest changes.
func (d *Debouncer) OnUpdate(fn func(*Result)) {
	d.mu.Lock()
	d.onUpdate = fn
	d.mu.Unlock()
}

func (d *Debouncer) SetSession(id string) {
	d.mu.Lock()
	d.session = id
	d.mu.Unlock()
}

// Update schedules a request for answer. Short answers, or updates
// without a session, cancel whatever is pending.
func (d *Debouncer) Update(key Key, question, answer string) {
	d.mu.Lock()
	session, stopped := d.session, d.stopped
	d.mu.Unlock()
	if stopped {
		return
	}
	if session == "" || utf8.RuneCountInString(answer) < d.minChars {
		d.deb.Cancel()
		return
	}
	d.deb.Trigger(request{key: key, sessionID: session, question: question, answer: answer})
}

func (d *Debouncer) send(req request) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.issued++
	seq := d.issued
	ctx := d.ctx
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	resp, err := d.client.LiveFeedback(ctx, api.LiveFeedbackRequest{
		SessionID: req.sessionID,
		Question:  req.question,
		Answer:    req.answer,
	})
	if err != nil {
		if ctx.Err() == nil {
			log.Warnf("live feedback: %v", err)
		}
		return
	}
	d.apply(seq, req.key, resp)
}

func (d *Debouncer) apply(seq uint64, key Key, resp *api.LiveFeedback) {
	if resp == nil || len(resp.Tips) == 0 {
		return
	}
	if d.current != nil && d.current() != key {
		log.Debugf("live feedback: discarding response for question %d gen %d", key.Question, key.Generation)
		return
	}

	d.mu.Lock()
	if d.stopped || seq < d.applied {
		d.mu.Unlock()
		return
	}
	d.applied = seq
	d.latest = &Result{Key: key, Tips: resp.Tips, Score: resp.Score, Sentiment: resp.Sentiment}
	latest, fn := d.latest, d.onUpdate
	d.mu.Unlock()

	if fn != nil {
		fn(latest)
	}
}

// Pending reports whether a request is waiting for its quiet window.
func (d *Debouncer) Pending() bool {
	return d.deb.Pending()
}

func (d *Debouncer) Latest() *Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.latest
}

// Reset drops the displayed result and any pending request. In-flight
// responses issued before the reset are ignored.
func (d *Debouncer) Reset() {
	d.deb.Cancel()
	d.mu.Lock()
	d.latest = nil
	d.applied = d.issued + 1
	d.issued = d.applied
	fn := d.onUpdate
	d.mu.Unlock()
	if fn != nil {
		fn(nil)
	}
}

// Stop cancels pending and in-flight work for good.
func (d *Debouncer) Stop() {
	d.deb.Stop()
	d.mu.Lock()
	d.stopped = true
	d.session = ""
	d.mu.Unlock()
	d.cancel()
}
