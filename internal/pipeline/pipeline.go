// Package pipeline composes the translator and the synthesizer into one generate call.
package pipeline

import (
	"context"
	"strings"

	"github.com/dmorgan81/painterbot/internal/failure"
	"github.com/dmorgan81/painterbot/internal/image"
	"github.com/dmorgan81/painterbot/internal/log"
	"github.com/dmorgan81/painterbot/internal/prompt"
	"github.com/samber/do"
)

type Request struct {
	SourceText string `json:"text"`
}

type Output struct {
	Markdown  string
	Reference string
	Prompt    string
	Result    image.Result
}

type Translator interface {
	Translate(context.Context, string) (prompt.Translated, error)
}

type Synthesizer interface {
	Synthesize(context.Context, prompt.Translated) (image.Result, error)
}

type Pipeline struct {
	translator  Translator
	synthesizer Synthesizer
}

func NewPipeline(i *do.Injector) (*Pipeline, error) {
	return &Pipeline{
		translator:  do.MustInvoke[*prompt.Translator](i),
		synthesizer: do.MustInvoke[*image.Synthesizer](i),
	}, nil
}

func New(t Translator, s Synthesizer) *Pipeline {
	return &Pipeline{translator: t, synthesizer: s}
}

// Generate translates the request and renders it. Stages run strictly in order and any
// failure ends the request without a partial result.
func (p *Pipeline) Generate(ctx context.Context, req Request) (Output, error) {
	if strings.TrimSpace(req.SourceText) == "" {
		return Output{}, failure.New(failure.InvalidInput, "source text is empty", nil)
	}

	log := log.FromContextOrDiscard(ctx).WithGroup("pipeline")
	log.Info("generating")

	translated, err := p.translator.Translate(ctx, req.SourceText)
	if err != nil {
		return Output{}, err
	}

	res, err := p.synthesizer.Synthesize(ctx, translated)
	if err != nil {
		return Output{}, err
	}

	ref := res.Reference()
	return Output{
		Markdown:  Markdown(ref),
		Reference: ref,
		Prompt:    translated.Text,
		Result:    res,
	}, nil
}

func Markdown(ref string) string {
	return "![generated](" + ref + ")"
}
