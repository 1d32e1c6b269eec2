package image

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/dmorgan81/painterbot/internal/config"
	"github.com/dmorgan81/painterbot/internal/failure"
	"github.com/dmorgan81/painterbot/internal/log"
	"github.com/dmorgan81/painterbot/internal/prompt"
	"github.com/samber/do"
)

const maxResponseBytes = 32 << 20

type Synthesizer struct {
	Client      *http.Client
	Backend     Backend
	Normalizer  *Normalizer
	Model       string
	Backoff     time.Duration
	MaxAttempts int
}

func NewSynthesizer(i *do.Injector) (*Synthesizer, error) {
	cfg := do.MustInvoke[config.Config](i)
	return &Synthesizer{
		Client:      do.MustInvoke[*http.Client](i),
		Backend:     do.MustInvoke[Backend](i),
		Normalizer:  NewNormalizer(cfg.Fields),
		Model:       cfg.ImageModel,
		Backoff:     cfg.Backoff,
		MaxAttempts: cfg.MaxAttempts,
	}, nil
}

// Synthesize submits the prompt, retrying only on 429 with a constant backoff, and returns
// the first image the normalizer recognizes. Every call is a fresh request.
func (s *Synthesizer) Synthesize(ctx context.Context, p prompt.Translated) (Result, error) {
	if strings.TrimSpace(p.Text) == "" {
		return Result{}, failure.New(failure.InvalidInput, "prompt is empty", nil)
	}

	log := log.FromContextOrDiscard(ctx).WithGroup("synthesizer").With("backend", s.Backend.Name(), "model", s.Model)
	log.Info("generating image")

	params := Params{
		Model:          s.Model,
		Prompt:         p.Text,
		N:              Count,
		Size:           Size,
		ResponseFormat: B64Format,
	}

	attempts := 0
	var body []byte
	op := func() error {
		attempts++
		data, status, err := s.send(ctx, params)
		if err != nil {
			return backoff.Permanent(&failure.Error{
				Kind:     failure.SynthesisFailed,
				Message:  "request failed",
				Attempts: attempts,
				Cause:    err,
			})
		}
		switch {
		case status == http.StatusTooManyRequests:
			return &failure.Error{Kind: failure.RateLimited, Message: errorMessage(data), Status: status}
		case status < 200 || status > 299:
			return backoff.Permanent(&failure.Error{
				Kind:     failure.SynthesisFailed,
				Message:  errorMessage(data),
				Status:   status,
				Attempts: attempts,
			})
		}
		body = data
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.Backoff), uint64(max(s.MaxAttempts, 1)-1)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		log.Info("rate limited, backing off", "attempt", attempts, "wait", wait.String())
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if errors.Is(err, failure.ErrRateLimited) {
			return Result{}, &failure.Error{
				Kind:     failure.SynthesisFailed,
				Message:  "rate limit retries exhausted",
				Status:   http.StatusTooManyRequests,
				Attempts: attempts,
				Cause:    err,
			}
		}
		if failure.KindOf(err) == "" {
			err = &failure.Error{Kind: failure.SynthesisFailed, Message: "cancelled", Attempts: attempts, Cause: err}
		}
		return Result{}, err
	}

	res, err := s.Normalizer.Normalize(body)
	if err != nil {
		return Result{}, err
	}
	log.Info("received image", "encoding", string(res.Encoding), "attempts", attempts)
	return res, nil
}

func (s *Synthesizer) send(ctx context.Context, params Params) ([]byte, int, error) {
	req, err := s.Backend.NewRequest(ctx, params)
	if err != nil {
		return nil, 0, err
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return data, resp.StatusCode, nil
}

// errorMessage digs the vendor message out of an error body, falling back to the body itself.
func errorMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
		Error   struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil {
		if e.Error.Message != "" {
			return e.Error.Message
		}
		if e.Message != "" {
			return e.Message
		}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "empty response"
	}
	return truncate(msg, 500)
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
