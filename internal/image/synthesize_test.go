package image

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/dmorgan81/painterbot/internal/config"
	"github.com/dmorgan81/painterbot/internal/failure"
	"github.com/dmorgan81/painterbot/internal/prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	handler http.HandlerFunc
	calls   atomic.Int32
	server  *httptest.Server
}

func newFakeBackend(t *testing.T, handler http.HandlerFunc) *fakeBackend {
	f := &fakeBackend{handler: handler}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		f.handler(w, r)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeBackend) synthesizer() *Synthesizer {
	return &Synthesizer{
		Client:      f.server.Client(),
		Backend:     &OpenAIBackend{Endpoint: f.server.URL, Key: "sk-test"},
		Normalizer:  NewNormalizer(config.DefaultFields()),
		Model:       "wanx-v1",
		Backoff:     time.Millisecond,
		MaxAttempts: 3,
	}
}

func reply(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

var corgi = prompt.Translated{Text: "a corgi running on grass, sunny, photography"}

func TestSynthesizeSendsFixedParams(t *testing.T) {
	var got Params
	var auth string
	backend := newFakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		reply(http.StatusOK, `{"data":[{"b64_json":"QUJD"}]}`)(w, r)
	})

	res, err := backend.synthesizer().Synthesize(context.Background(), corgi)
	require.NoError(t, err)

	assert.Equal(t, Result{Encoding: Base64, Data: "QUJD", MimeType: "image/png"}, res)
	assert.Equal(t, Params{
		Model:          "wanx-v1",
		Prompt:         corgi.Text,
		N:              1,
		Size:           "1024x1024",
		ResponseFormat: "b64_json",
	}, got)
	assert.Equal(t, "Bearer sk-test", auth)
}

func TestSynthesizeAlwaysRateLimited(t *testing.T) {
	backend := newFakeBackend(t, reply(http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`))

	_, err := backend.synthesizer().Synthesize(context.Background(), corgi)

	var ferr *failure.Error
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, failure.SynthesisFailed, ferr.Kind)
	assert.Equal(t, http.StatusTooManyRequests, ferr.Status)
	assert.Equal(t, 3, ferr.Attempts)
	assert.ErrorIs(t, err, failure.ErrRateLimited)
	assert.Equal(t, int32(3), backend.calls.Load())
}

func TestSynthesizeRecoversAfterRateLimit(t *testing.T) {
	var n atomic.Int32
	backend := newFakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if n.Add(1) < 3 {
			reply(http.StatusTooManyRequests, ``)(w, r)
			return
		}
		reply(http.StatusOK, `{"data":[{"b64_json":"QUJD"}]}`)(w, r)
	})

	res, err := backend.synthesizer().Synthesize(context.Background(), corgi)
	require.NoError(t, err)
	assert.Equal(t, "QUJD", res.Data)
	assert.Equal(t, int32(3), backend.calls.Load())
}

func TestSynthesizeNoRetryOnServerError(t *testing.T) {
	backend := newFakeBackend(t, reply(http.StatusInternalServerError, `{"code":"InternalError","message":"model overloaded"}`))

	_, err := backend.synthesizer().Synthesize(context.Background(), corgi)

	var ferr *failure.Error
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, failure.SynthesisFailed, ferr.Kind)
	assert.Equal(t, http.StatusInternalServerError, ferr.Status)
	assert.Equal(t, "model overloaded", ferr.Message)
	assert.Equal(t, 1, ferr.Attempts)
	assert.NotErrorIs(t, err, failure.ErrRateLimited)
	assert.Equal(t, int32(1), backend.calls.Load())
}

func TestSynthesizeInvalidPayload(t *testing.T) {
	backend := newFakeBackend(t, reply(http.StatusOK, `{"data":[{"b64_json":"not base64!!"}]}`))

	res, err := backend.synthesizer().Synthesize(context.Background(), corgi)
	assert.Equal(t, failure.InvalidPayload, failure.KindOf(err))
	assert.Empty(t, res.Reference())
}

func TestSynthesizeUnrecognizedShape(t *testing.T) {
	backend := newFakeBackend(t, reply(http.StatusOK, `{"created":1,"data":[{"revised_prompt":"x"}]}`))

	_, err := backend.synthesizer().Synthesize(context.Background(), corgi)

	var ferr *failure.Error
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, failure.ResponseShapeUnrecognized, ferr.Kind)
	assert.Equal(t, []string{"created", "data", "data[0].revised_prompt"}, ferr.Present)
}

func TestSynthesizeIsNotCached(t *testing.T) {
	backend := newFakeBackend(t, reply(http.StatusOK, `{"data":[{"b64_json":"QUJD"}]}`))
	s := backend.synthesizer()

	first, err := s.Synthesize(context.Background(), corgi)
	require.NoError(t, err)
	second, err := s.Synthesize(context.Background(), corgi)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(2), backend.calls.Load())
}

func TestSynthesizeHonoursCancellation(t *testing.T) {
	backend := newFakeBackend(t, reply(http.StatusTooManyRequests, ``))
	s := backend.synthesizer()
	s.Backoff = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := s.Synthesize(ctx, corgi)
	assert.Equal(t, failure.SynthesisFailed, failure.KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), backend.calls.Load())
}

func TestSynthesizeRejectsEmptyPrompt(t *testing.T) {
	backend := newFakeBackend(t, reply(http.StatusOK, `{}`))

	_, err := backend.synthesizer().Synthesize(context.Background(), prompt.Translated{})
	assert.Equal(t, failure.InvalidInput, failure.KindOf(err))
	assert.Zero(t, backend.calls.Load())
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "quota exceeded", errorMessage([]byte(`{"error":{"message":"quota exceeded"}}`)))
	assert.Equal(t, "bad prompt", errorMessage([]byte(`{"code":"InvalidParameter","message":"bad prompt"}`)))
	assert.Equal(t, "empty response", errorMessage([]byte("  ")))

	long := errorMessage([]byte(strings.Repeat("图", 600)))
	assert.True(t, utf8.ValidString(long))
	assert.Equal(t, strings.Repeat("图", 500)+"...", long)
}
