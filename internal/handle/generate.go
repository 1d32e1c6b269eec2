package handle

import (
	"context"
	"errors"
	"time"

	"github.com/dmorgan81/painterbot/internal/failure"
	"github.com/dmorgan81/painterbot/internal/image"
	"github.com/dmorgan81/painterbot/internal/log"
	"github.com/dmorgan81/painterbot/internal/pipeline"
	"github.com/dmorgan81/painterbot/internal/store"
	"github.com/google/uuid"
	"github.com/samber/do"
	"github.com/samber/lo"
)

type GenerateInput struct {
	Text    string `json:"text"`
	Publish bool   `json:"publish,omitempty"`
}

type ErrorOutput struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

type GenerateOutput struct {
	Markdown string       `json:"markdown,omitempty"`
	Image    string       `json:"image,omitempty"`
	Prompt   string       `json:"prompt,omitempty"`
	URL      string       `json:"url,omitempty"`
	Error    *ErrorOutput `json:"error,omitempty"`
}

type Generator interface {
	Generate(context.Context, pipeline.Request) (pipeline.Output, error)
}

type GenerateHandler struct {
	generator   Generator
	uploader    store.Uploader
	invalidator store.Invalidator
	prefix      string
	siteURL     string
	model       string
}

func NewGenerateHandler(i *do.Injector) (*GenerateHandler, error) {
	return &GenerateHandler{
		generator:   do.MustInvoke[*pipeline.Pipeline](i),
		uploader:    do.MustInvoke[store.Uploader](i),
		invalidator: do.MustInvoke[store.Invalidator](i),
		prefix:      do.MustInvokeNamed[string](i, "image_prefix"),
		siteURL:     do.MustInvokeNamed[string](i, "site_url"),
		model:       do.MustInvokeNamed[string](i, "image_model"),
	}, nil
}

// Handle runs one generation. Pipeline failures come back as an Error value in the output;
// only publishing problems are returned as errors.
func (h *GenerateHandler) Handle(ctx context.Context, input GenerateInput) (GenerateOutput, error) {
	log := log.FromContextOrDiscard(ctx).WithGroup("GenerateHandler").With("publish", input.Publish)
	log.Info("handling generate invocation")

	out, err := h.generator.Generate(ctx, pipeline.Request{SourceText: input.Text})
	if err != nil {
		if e := errorOutput(err); e != nil {
			log.Info("generation failed", "kind", e.Kind)
			return GenerateOutput{Error: e}, nil
		}
		return GenerateOutput{}, err
	}

	result := GenerateOutput{
		Markdown: out.Markdown,
		Image:    out.Reference,
		Prompt:   out.Prompt,
	}
	if !input.Publish {
		return result, nil
	}

	if out.Result.Encoding == image.URL {
		result.URL = out.Reference
		return result, nil
	}
	result.URL, err = h.publish(ctx, input.Text, out)
	return result, err
}

func (h *GenerateHandler) publish(ctx context.Context, source string, out pipeline.Output) (string, error) {
	data, err := out.Result.Decode()
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	name := h.prefix + id + ".png"
	err = h.uploader.Upload(ctx, store.UploadParams{
		Name:        name,
		Data:        data,
		ContentType: out.Result.MimeType,
		Metadata: map[string]string{
			store.MetaSource:    source,
			store.MetaPrompt:    out.Prompt,
			store.MetaModel:     h.model,
			store.MetaRequestID: id,
			store.MetaDate:      time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", err
	}

	if err := h.invalidator.Invalidate(ctx, []string{"/" + name, "/" + feedName}); err != nil {
		return "", err
	}
	return lo.Ternary(h.siteURL == "", name, trimSlash(h.siteURL)+"/"+name), nil
}

func errorOutput(err error) *ErrorOutput {
	var ferr *failure.Error
	if !errors.As(err, &ferr) {
		return nil
	}
	return &ErrorOutput{
		Kind:   string(ferr.Kind),
		Reason: ferr.Reason(),
		Detail: ferr.Error(),
	}
}
