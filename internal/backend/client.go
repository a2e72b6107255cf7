package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

var (
	ErrEmptyText  = errors.New("backend: empty text")
	ErrEmptyAudio = errors.New("backend: empty audio response")
	ErrBadStatus  = errors.New("backend: unexpected status")
)

// StatusError carries the HTTP status of a failed call. It matches ErrBadStatus.
type StatusError struct {
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend %s status %d", e.Path, e.Status)
	}
	return fmt.Sprintf("backend %s status %d: %s", e.Path, e.Status, e.Body)
}

func (e *StatusError) Is(target error) bool { return target == ErrBadStatus }

// Retryable reports whether a failure is worth retrying: transport errors,
// rate limits and server-side failures are; client errors are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrEmptyText) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status == http.StatusTooManyRequests || se.Status >= 500
	}
	return true
}

// Client talks to the NextStep backend (chat, speech, catalog endpoints).
type Client struct {
	baseURL *url.URL
	client  *http.Client
}

func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend url %q must be absolute", baseURL)
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: u,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) BaseURL() string { return c.baseURL.String() }

// Chat sends one user message. An empty category is sent as null.
func (c *Client) Chat(ctx context.Context, message, category string) (ChatResponse, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return ChatResponse{}, ErrEmptyText
	}
	req := ChatRequest{Message: message}
	if category = strings.TrimSpace(category); category != "" {
		req.Category = &category
	}
	var out ChatResponse
	if err := c.doJSON(ctx, http.MethodPost, "/chat", req, &out); err != nil {
		return ChatResponse{}, err
	}
	return out, nil
}

// Synthesize returns the audio bytes and MIME type produced by POST /tts.
func (c *Client) Synthesize(ctx context.Context, text, voice, model string) ([]byte, string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, "", ErrEmptyText
	}
	payload, err := sonic.Marshal(SpeechRequest{Text: text, Voice: voice, Model: model})
	if err != nil {
		return nil, "", fmt.Errorf("marshal request: %w", err)
	}
	res, err := c.do(ctx, http.MethodPost, "/tts", bytes.NewReader(payload))
	if err != nil {
		return nil, "", err
	}
	defer res.Body.Close()
	return readAudio(res)
}

// FetchAudio downloads a pre-generated clip referenced by a chat response's audio_url.
func (c *Client) FetchAudio(ctx context.Context, ref string) ([]byte, string, error) {
	target, err := c.resolve(ref)
	if err != nil {
		return nil, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	res, err := c.send(req, ref)
	if err != nil {
		return nil, "", err
	}
	defer res.Body.Close()
	return readAudio(res)
}

func (c *Client) Voices(ctx context.Context) ([]Voice, error) {
	var out struct {
		Voices []Voice `json:"voices"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/voices", nil, &out); err != nil {
		return nil, err
	}
	return out.Voices, nil
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	err := c.doJSON(ctx, http.MethodGet, "/health", nil, &out)
	return out, err
}

func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	var out struct {
		Categories []Category `json:"categories"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/categories", nil, &out); err != nil {
		return nil, err
	}
	return out.Categories, nil
}

func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var out Stats
	err := c.doJSON(ctx, http.MethodGet, "/stats", nil, &out)
	return out, err
}

// Overview gathers health, categories and stats. Individual failures are
// recorded in Overview.Errors rather than failing the whole call.
func (c *Client) Overview(ctx context.Context) Overview {
	var ov Overview
	if h, err := c.Health(ctx); err == nil {
		ov.Health = &h
	} else {
		ov.Errors = append(ov.Errors, err.Error())
	}
	if cats, err := c.Categories(ctx); err == nil {
		ov.Categories = cats
	} else {
		ov.Errors = append(ov.Errors, err.Error())
	}
	if st, err := c.Stats(ctx); err == nil {
		ov.Stats = &st
	} else {
		ov.Errors = append(ov.Errors, err.Error())
	}
	return ov
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := sonic.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}
	res, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, path)
}

func (c *Client) send(req *http.Request, path string) (*http.Response, error) {
	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send %s: %w", path, err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		defer res.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, &StatusError{Path: path, Status: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return res, nil
}

func (c *Client) resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("backend: empty audio url")
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse audio url: %w", err)
	}
	// The backend builds these URLs without escaping the response text.
	if u.RawQuery != "" {
		u.RawQuery = u.Query().Encode()
	}
	return c.baseURL.ResolveReference(u).String(), nil
}

func readAudio(res *http.Response) ([]byte, string, error) {
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read audio: %w", err)
	}
	if len(data) == 0 {
		return nil, "", ErrEmptyAudio
	}
	mime := strings.TrimSpace(strings.Split(res.Header.Get("Content-Type"), ";")[0])
	if mime == "" || !strings.HasPrefix(mime, "audio/") {
		mime = "audio/mpeg"
	}
	return data, mime, nil
}
