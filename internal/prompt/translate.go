// Package prompt turns a free-form request into a single image-generation prompt.
package prompt

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmorgan81/painterbot/internal/failure"
	"github.com/dmorgan81/painterbot/internal/log"
	"github.com/samber/do"
	"github.com/tmc/langchaingo/llms"
)

// Instruction is sent ahead of every request.
const Instruction = "You are a senior graphic designer. Condense the request below into one English " +
	"Stable Diffusion prompt. Separate style keywords with commas. Do not explain anything; " +
	"output only the prompt itself."

// Translated is a comma-delimited keyword prompt. It is opaque text.
type Translated struct {
	Text string
}

// Model is the part of a langchaingo chat model the translator uses.
type Model interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

type Translator struct {
	model Model
}

func NewTranslator(i *do.Injector) (*Translator, error) {
	return &Translator{model: do.MustInvoke[Model](i)}, nil
}

func NewTranslatorWithModel(model Model) *Translator {
	return &Translator{model: model}
}

// Translate issues a single completion call and returns the first choice, trimmed. It does not
// retry.
func (t *Translator) Translate(ctx context.Context, sourceText string) (Translated, error) {
	if strings.TrimSpace(sourceText) == "" {
		return Translated{}, failure.New(failure.InvalidInput, "source text is empty", nil)
	}

	log := log.FromContextOrDiscard(ctx).WithGroup("translator")
	log.Info("translating request", "chars", len([]rune(sourceText)))

	content := fmt.Sprintf("%s\n\nRequest: %s", Instruction, sourceText)
	resp, err := t.model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, content),
	})
	if err != nil {
		return Translated{}, failure.New(failure.UpstreamServiceError, "completion call failed", err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return Translated{}, failure.New(failure.UpstreamServiceError, "completion returned no choices", nil)
	}

	text := strings.TrimSpace(resp.Choices[0].Content)
	if text == "" {
		return Translated{}, failure.New(failure.UpstreamServiceError, "completion returned empty content", nil)
	}

	log.Info("translated request", "prompt", text)
	return Translated{Text: text}, nil
}
