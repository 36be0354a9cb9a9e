package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"

	"rehearse/encoder"
	"rehearse/log"
)

const (
	StatusInProgress = "in_progress"
	StatusComplete   = "complete"

	SentimentPositive  = "positive"
	SentimentNeedsWork = "needs_work"
)

// Error is a non-2xx response from the interview service.
type Error struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %d %s", e.Endpoint, e.StatusCode, e.Message)
}

func IsStatus(err error, code int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

type StartRequest struct {
	JobDescription string `json:"job_description"`
	Resume         string `json:"resume"`
	MaxQuestions   int    `json:"max_questions,omitempty"`
}

type RespondRequest struct {
	SessionID     string `json:"session_id"`
	CandidateText string `json:"candidate_text"`
	EndInterview  bool   `json:"end_interview"`
}

// Turn is the interviewer's side of one exchange.
type Turn struct {
	SessionID       string `json:"session_id"`
	InterviewerText string `json:"interviewer_text"`
	Status          string `json:"status"`
	QuestionCount   int    `json:"question_count"`
	MaxQuestions    *int   `json:"max_questions"`
	AudioBase64     string `json:"audio_base64"`
}

// Audio decodes the synthesized speech payload, if any.
func (t *Turn) Audio() ([]byte, error) {
	if t.AudioBase64 == "" {
		return nil, nil
	}
	data := t.AudioBase64
	// some deployments send a data URL
	if i := strings.Index(data, ";base64,"); i >= 0 {
		data = data[i+len(";base64,"):]
	}
	return base64.StdEncoding.DecodeString(data)
}

type LiveFeedbackRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
}

type LiveFeedback struct {
	Tips      []string `json:"tips"`
	Score     *int     `json:"score,omitempty"`
	Sentiment string   `json:"sentiment,omitempty"`
}

type postureRequest struct {
	SessionID   string `json:"session_id"`
	ImageBase64 string `json:"image_base64"`
}

// PostureResult carries either tips or an error description.
type PostureResult struct {
	Tips  []string
	Error string
}

type postureResponse struct {
	Feedback *struct {
		Tips  []string `json:"tips"`
		Error string   `json:"error"`
	} `json:"feedback"`
	Error string `json:"error"`
}

type Client struct {
	baseURL string
	token   string
	http    *TracedClient
}

func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    NewTracedClient(timeout),
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

// Warm pre-establishes a connection to the service.
func (c *Client) Warm(ctx context.Context) {
	c.http.WarmConnection(ctx, c.baseURL+"/")
}

// Ping checks that the service answers HTTP at all and returns the
// round-trip time. Any status code counts as reachable.
func (c *Client) Ping(ctx context.Context) (*NetworkMetrics, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ping %s: %w", c.baseURL, err)
	}
	return resp.Metrics, nil
}

func (c *Client) StartInterview(ctx context.Context, r StartRequest) (*Turn, error) {
	var turn Turn
	if err := c.postJSON(ctx, "/interview/start", r, &turn); err != nil {
		return nil, err
	}
	return &turn, nil
}

func (c *Client) Respond(ctx context.Context, r RespondRequest) (*Turn, error) {
	var turn Turn
	if err := c.postJSON(ctx, "/interview/respond", r, &turn); err != nil {
		return nil, err
	}
	return &turn, nil
}

func (c *Client) LiveFeedback(ctx context.Context, r LiveFeedbackRequest) (*LiveFeedback, error) {
	var fb LiveFeedback
	if err := c.postJSON(ctx, "/interview/live-feedback", r, &fb); err != nil {
		return nil, err
	}
	return &fb, nil
}

func (c *Client) AnalyzePosture(ctx context.Context, sessionID, imageBase64 string) (*PostureResult, error) {
	var resp postureResponse
	req := postureRequest{SessionID: sessionID, ImageBase64: imageBase64}
	if err := c.postJSON(ctx, "/mock-interview/analyze", req, &resp); err != nil {
		return nil, err
	}
	out := &PostureResult{Error: resp.Error}
	if resp.Feedback != nil {
		out.Tips = resp.Feedback.Tips
		if resp.Feedback.Error != "" {
			out.Error = resp.Feedback.Error
		}
	}
	if out.Error != "" {
		out.Tips = nil
	}
	return out, nil
}

func (c *Client) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	var resp struct {
		Transcript string `json:"transcript"`
	}
	if err := c.postFile(ctx, "/speech/transcribe", "audio"+encoder.Extension(mimeType), mimeType, bytes.NewReader(audio), &resp); err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Transcript), nil
}

func (c *Client) ParseResume(ctx context.Context, filename string, r io.Reader) (string, error) {
	var resp struct {
		ResumeText string `json:"resume_text"`
	}
	if err := c.postFile(ctx, "/interview/parse-resume", filename, "", r, &resp); err != nil {
		return "", err
	}
	return resp.ResumeText, nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", endpoint, err)
	}
	return c.do(ctx, endpoint, "application/json", bytes.NewReader(data), out)
}

func (c *Client) postFile(ctx context.Context, endpoint, filename, contentType string, r io.Reader, out any) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	var part io.Writer
	var err error
	if contentType != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
		h.Set("Content-Type", contentType)
		part, err = writer.CreatePart(h)
	} else {
		part, err = writer.CreateFormFile("file", filename)
	}
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("%s: read file: %w", endpoint, err)
	}
	writer.Close()

	return c.do(ctx, endpoint, writer.FormDataContentType(), &body, out)
}

func (c *Client) do(ctx context.Context, endpoint, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}

	log.Request(log.RequestMetrics{
		Endpoint:   endpoint,
		RequestID:  requestID,
		StatusCode: resp.StatusCode,
		TTFBMs:     float64(resp.Metrics.TTFB.Microseconds()) / 1000,
		TotalMs:    float64(resp.Metrics.Total.Microseconds()) / 1000,
		ConnReused: resp.Metrics.ConnReused,
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", endpoint, err)
	}
	return nil
}

// errorMessage pulls a human-readable message out of an error body.
func errorMessage(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, key := range []string{"detail", "error", "message"} {
			switch v := payload[key].(type) {
			case string:
				if v != "" {
					return v
				}
			case nil:
			default:
				if b, err := json.Marshal(v); err == nil {
					return string(b)
				}
			}
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return msg
}
