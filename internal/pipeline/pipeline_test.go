package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/dmorgan81/painterbot/internal/failure"
	"github.com/dmorgan81/painterbot/internal/image"
	"github.com/dmorgan81/painterbot/internal/prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTranslator struct {
	text  string
	err   error
	calls int
	got   string
}

func (s *stubTranslator) Translate(_ context.Context, source string) (prompt.Translated, error) {
	s.calls++
	s.got = source
	return prompt.Translated{Text: s.text}, s.err
}

type stubSynthesizer struct {
	res   image.Result
	err   error
	calls int
	got   prompt.Translated
}

func (s *stubSynthesizer) Synthesize(_ context.Context, p prompt.Translated) (image.Result, error) {
	s.calls++
	s.got = p
	return s.res, s.err
}

func TestGenerateEndToEnd(t *testing.T) {
	tr := &stubTranslator{text: "a corgi running on grass, sunny, photography"}
	sy := &stubSynthesizer{res: image.Result{Encoding: image.Base64, Data: "iVBORw0KGgo=", MimeType: "image/png"}}

	out, err := New(tr, sy).Generate(context.Background(), Request{SourceText: "一只柯基犬在草地上奔跑"})
	require.NoError(t, err)

	assert.Equal(t, "![generated](data:image/png;base64,iVBORw0KGgo=)", out.Markdown)
	assert.Equal(t, "a corgi running on grass, sunny, photography", out.Prompt)
	assert.Equal(t, "一只柯基犬在草地上奔跑", tr.got)
	assert.Equal(t, prompt.Translated{Text: out.Prompt}, sy.got)
}

func TestGenerateURLResult(t *testing.T) {
	tr := &stubTranslator{text: "a cat"}
	sy := &stubSynthesizer{res: image.Result{Encoding: image.URL, Data: "https://cdn.example.com/a.png", MimeType: "image/png"}}

	out, err := New(tr, sy).Generate(context.Background(), Request{SourceText: "猫"})
	require.NoError(t, err)
	assert.Equal(t, "![generated](https://cdn.example.com/a.png)", out.Markdown)
	assert.Equal(t, "https://cdn.example.com/a.png", out.Reference)
}

func TestGenerateRejectsBlankInput(t *testing.T) {
	tr := &stubTranslator{}
	sy := &stubSynthesizer{}

	_, err := New(tr, sy).Generate(context.Background(), Request{SourceText: "   "})
	assert.Equal(t, failure.InvalidInput, failure.KindOf(err))
	assert.Zero(t, tr.calls)
	assert.Zero(t, sy.calls)
}

func TestGenerateStopsAfterTranslationFailure(t *testing.T) {
	tr := &stubTranslator{err: failure.New(failure.UpstreamServiceError, "no choices", nil)}
	sy := &stubSynthesizer{}

	out, err := New(tr, sy).Generate(context.Background(), Request{SourceText: "猫"})
	assert.Equal(t, failure.UpstreamServiceError, failure.KindOf(err))
	assert.Zero(t, sy.calls)
	assert.Equal(t, Output{}, out)
}

func TestGeneratePropagatesSynthesisFailure(t *testing.T) {
	cause := &failure.Error{Kind: failure.SynthesisFailed, Message: "boom", Status: 500}
	tr := &stubTranslator{text: "a cat"}
	sy := &stubSynthesizer{err: cause}

	out, err := New(tr, sy).Generate(context.Background(), Request{SourceText: "猫"})
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, Output{}, out)
}
