// Package llamacpp drives a llama.cpp server over its native HTTP API.
package llamacpp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/samcharles93/parley/internal/engine"
	"github.com/samcharles93/parley/internal/logger"
)

type completionRequest struct {
	Prompt        []int   `json:"prompt"`
	NPredict      int     `json:"n_predict,omitempty"`
	Temperature   float64 `json:"temperature,omitempty"`
	TopK          int     `json:"top_k,omitempty"`
	TopP          float64 `json:"top_p,omitempty"`
	MinP          float64 `json:"min_p,omitempty"`
	RepeatPenalty float64 `json:"repeat_penalty,omitempty"`
	RepeatLastN   int     `json:"repeat_last_n,omitempty"`
	Seed          int64   `json:"seed,omitempty"`
	Stream        bool    `json:"stream"`
	ReturnTokens  bool    `json:"return_tokens"`
	CachePrompt   bool    `json:"cache_prompt"`
}

type streamChunk struct {
	Content string      `json:"content"`
	Tokens  []int       `json:"tokens"`
	Stop    bool        `json:"stop"`
	Error   *chunkError `json:"error,omitempty"`
}

type chunkError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Client talks to one llama.cpp server.
type Client struct {
	baseURL string
	http    *http.Client
	stream  *http.Client
	log     logger.Logger
}

type Option func(*Client)

// WithTimeout bounds the non-streaming endpoints.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
		c.stream = hc
	}
}

func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		// Generation can run for minutes; the request context bounds it.
		stream: &http.Client{},
		log:    logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health returns nil once the server has a model loaded.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("llama.cpp health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return nil
}

// Generate streams /completion with token ids enabled. Every id of every
// chunk is yielded in arrival order.
func (c *Client) Generate(ctx context.Context, req engine.Request) iter.Seq2[int, error] {
	return func(yield func(int, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		body, err := json.Marshal(completionRequest{
			Prompt:        req.Prompt,
			NPredict:      req.MaxTokens,
			Temperature:   req.Sampling.Temperature,
			TopK:          req.Sampling.TopK,
			TopP:          req.Sampling.TopP,
			MinP:          req.Sampling.MinP,
			RepeatPenalty: req.Sampling.RepeatPenalty,
			RepeatLastN:   req.Sampling.RepeatLastN,
			Seed:          req.Sampling.Seed,
			Stream:        true,
			ReturnTokens:  true,
			CachePrompt:   true,
		})
		if err != nil {
			yield(0, fmt.Errorf("marshal completion request: %w", err))
			return
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/completion", bytes.NewReader(body))
		if err != nil {
			yield(0, err)
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "text/event-stream")

		resp, err := c.stream.Do(httpReq)
		if err != nil {
			yield(0, fmt.Errorf("llama.cpp completion: %w", err))
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			yield(0, statusError(resp))
			return
		}

		c.log.Debug("completion stream opened", "prompt_tokens", len(req.Prompt), "max_tokens", req.MaxTokens)
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			line := scanner.Text()
			data, ok := strings.CutPrefix(line, "data: ")
			if !ok {
				continue
			}
			var chunk streamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				yield(0, fmt.Errorf("decode stream chunk: %w", err))
				return
			}
			if chunk.Error != nil {
				yield(0, fmt.Errorf("llama.cpp: %s (%d)", chunk.Error.Message, chunk.Error.Code))
				return
			}
			for _, id := range chunk.Tokens {
				if !yield(id, nil) {
					return
				}
			}
			if chunk.Stop {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(0, fmt.Errorf("read completion stream: %w", err))
		}
	}
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("llama.cpp %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error chunkError `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error.Message != "" {
		return fmt.Errorf("llama.cpp returned %d: %s", resp.StatusCode, payload.Error.Message)
	}
	return fmt.Errorf("llama.cpp returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
