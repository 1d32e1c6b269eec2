package inject

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/dmorgan81/painterbot/internal/config"
	"github.com/dmorgan81/painterbot/internal/feed"
	"github.com/dmorgan81/painterbot/internal/handle"
	"github.com/dmorgan81/painterbot/internal/image"
	"github.com/dmorgan81/painterbot/internal/log"
	"github.com/dmorgan81/painterbot/internal/page"
	"github.com/dmorgan81/painterbot/internal/param"
	"github.com/dmorgan81/painterbot/internal/pipeline"
	"github.com/dmorgan81/painterbot/internal/prompt"
	"github.com/dmorgan81/painterbot/internal/store"
	"github.com/samber/do"
	"github.com/samber/lo"
	"github.com/tmc/langchaingo/llms/openai"
)

// Setup registers every provider. Getenv is used for all environment lookups so the graph can
// be built in tests.
func Setup(ctx context.Context, getenv func(string) string) *do.Injector {
	log := log.FromContextOrDiscard(ctx)

	injector := do.NewWithOpts(&do.InjectorOpts{
		Logf: func(format string, args ...any) {
			log.Debug(fmt.Sprintf(format, args...))
		},
	})
	do.Provide[aws.Config](injector, func(i *do.Injector) (aws.Config, error) {
		return awsconfig.LoadDefaultConfig(ctx)
	})
	do.Provide[*ssm.Client](injector, func(i *do.Injector) (*ssm.Client, error) {
		return ssm.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.Provide[*s3.Client](injector, func(i *do.Injector) (*s3.Client, error) {
		return s3.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.Provide[*cloudfront.Client](injector, func(i *do.Injector) (*cloudfront.Client, error) {
		return cloudfront.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.Provide[*http.Client](injector, func(i *do.Injector) (*http.Client, error) {
		return &http.Client{Timeout: do.MustInvoke[config.Config](i).Timeout}, nil
	})

	do.Provide[param.Fetcher](injector, func(i *do.Injector) (param.Fetcher, error) {
		if getenv("SECRETS_SOURCE") == "env" {
			return &param.EnvFetcher{Environ: os.Environ}, nil
		}
		return param.NewParameterStoreFetcher(i)
	})
	do.Provide[config.Config](injector, func(i *do.Injector) (config.Config, error) {
		return config.Load(ctx, do.MustInvoke[param.Fetcher](i), getenv)
	})

	do.Provide[prompt.Model](injector, func(i *do.Injector) (prompt.Model, error) {
		cfg := do.MustInvoke[config.Config](i)
		return openai.New(
			openai.WithToken(cfg.ChatAPIKey),
			openai.WithBaseURL(cfg.ChatEndpoint),
			openai.WithModel(cfg.ChatModel),
			openai.WithHTTPClient(do.MustInvoke[*http.Client](i)),
		)
	})
	do.Provide[*prompt.Translator](injector, prompt.NewTranslator)
	do.Provide[image.Backend](injector, image.NewBackend)
	do.Provide[*image.Synthesizer](injector, image.NewSynthesizer)
	do.Provide[*pipeline.Pipeline](injector, pipeline.NewPipeline)

	do.Provide[store.Uploader](injector, store.NewUploader)
	do.Provide[store.Invalidator](injector, store.NewInvalidator)
	do.Provide[*page.Templator](injector, page.NewTemplator)
	do.Provide[*feed.Generator](injector, feed.NewS3Generator)

	do.ProvideNamedValue[string](injector, "bucket", getenv("BUCKET"))
	do.ProvideNamedValue[string](injector, "distribution", getenv("DISTRIBUTION"))
	do.ProvideNamedValue[string](injector, "output_dir", lo.Ternary(getenv("OUTPUT_DIR") == "", "out", getenv("OUTPUT_DIR")))
	do.ProvideNamedValue[string](injector, "image_prefix", lo.Ternary(getenv("IMAGE_PREFIX") == "", "images/", getenv("IMAGE_PREFIX")))
	do.ProvideNamedValue[string](injector, "site_url", getenv("SITE_URL"))
	do.ProvideNamed[string](injector, "image_model", func(i *do.Injector) (string, error) {
		return do.MustInvoke[config.Config](i).ImageModel, nil
	})

	do.Provide[*handle.GenerateHandler](injector, handle.NewGenerateHandler)
	do.Provide[*handle.HtmlHandler](injector, handle.NewHtmlHandler)
	do.Provide[*handle.FeedHandler](injector, handle.NewFeedHandler)
	do.Provide[*handle.Server](injector, handle.NewServer)

	return injector
}
