package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	deepgramURL       = "wss://api.deepgram.com/v1/listen"
	deepgramKeepAlive = 5 * time.Second
	dialTimeout       = 10 * time.Second
)

type Deepgram struct {
	apiKey   string
	endpoint string
	dialer   *websocket.Dialer
}

func NewDeepgram(apiKey string) *Deepgram {
	return &Deepgram{
		apiKey:   apiKey,
		endpoint: deepgramURL,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: dialTimeout,
		},
	}
}

// WithEndpoint points the recognizer at a different websocket URL.
func (d *Deepgram) WithEndpoint(endpoint string) *Deepgram {
	d.endpoint = endpoint
	return d
}

func (d *Deepgram) Name() string { return "deepgram" }

func (d *Deepgram) Start(ctx context.Context, cfg Config) (Session, error) {
	ws, err := d.dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newStreamSession(ws, cfg.NoSpeechTimeout, deepgramKeepAlive), nil
}

func (d *Deepgram) listenURL(cfg Config) (string, error) {
	endpoint, err := url.Parse(d.endpoint)
	if err != nil {
		return "", err
	}

	q := endpoint.Query()
	model := cfg.Model
	if model == "" {
		model = "nova-3"
	}
	q.Set("model", model)
	q.Set("encoding", "linear16")
	q.Set("interim_results", "true")
	q.Set("punctuate", "false")
	if cfg.SampleRate > 0 {
		q.Set("sample_rate", fmt.Sprintf("%d", cfg.SampleRate))
	}
	if cfg.Channels > 0 {
		q.Set("channels", fmt.Sprintf("%d", cfg.Channels))
	}
	if cfg.Language != "" {
		q.Set("language", cfg.Language)
	}
	endpoint.RawQuery = q.Encode()
	return endpoint.String(), nil
}

func (d *Deepgram) dial(ctx context.Context, cfg Config) (*deepgramStreamSession, error) {
	u, err := d.listenURL(cfg)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+d.apiKey)

	conn, resp, err := d.dialer.DialContext(ctx, u, headers)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, &Error{Kind: KindNotAllowed, Err: fmt.Errorf("deepgram: %s", resp.Status)}
		}
		return nil, &Error{Kind: KindNetwork, Err: err}
	}
	return &deepgramStreamSession{conn: conn}, nil
}

type deepgramStreamResponse struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type deepgramStreamSession struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (s *deepgramStreamSession) write(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(messageType, data)
}

func (s *deepgramStreamSession) Send(pcm []byte) error {
	return s.write(websocket.BinaryMessage, pcm)
}

func (s *deepgramStreamSession) KeepAlive() error {
	return s.write(websocket.TextMessage, []byte(`{"type":"KeepAlive"}`))
}

func (s *deepgramStreamSession) CloseSend() error {
	return s.write(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
}

func (s *deepgramStreamSession) Recv() (streamUpdate, error) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return streamUpdate{Closed: true}, nil
			}
			return streamUpdate{}, err
		}

		var resp deepgramStreamResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return streamUpdate{}, err
		}
		if resp.Type != "" && resp.Type != "Results" {
			// Metadata, SpeechStarted, UtteranceEnd
			continue
		}

		transcript := ""
		if len(resp.Channel.Alternatives) > 0 {
			transcript = resp.Channel.Alternatives[0].Transcript
		}
		return streamUpdate{
			Transcript: strings.TrimSpace(transcript),
			IsFinal:    resp.IsFinal,
		}, nil
	}
}

func (s *deepgramStreamSession) Close() error {
	s.writeMu.Lock()
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()
	return s.conn.Close()
}
