package handle

import (
	"context"

	"github.com/dmorgan81/painterbot/internal/feed"
	"github.com/dmorgan81/painterbot/internal/log"
	"github.com/dmorgan81/painterbot/internal/store"
	"github.com/samber/do"
)

const feedName = feed.Name

type FeedGenerator interface {
	Generate(context.Context) ([]byte, error)
}

type FeedHandler struct {
	generator   FeedGenerator
	uploader    store.Uploader
	invalidator store.Invalidator
}

func NewFeedHandler(i *do.Injector) (*FeedHandler, error) {
	return &FeedHandler{
		generator:   do.MustInvoke[*feed.Generator](i),
		uploader:    do.MustInvoke[store.Uploader](i),
		invalidator: do.MustInvoke[store.Invalidator](i),
	}, nil
}

// Handle rebuilds the gallery feed and republishes it.
func (h *FeedHandler) Handle(ctx context.Context) error {
	log := log.FromContextOrDiscard(ctx).WithGroup("FeedHandler")
	log.Info("handling feed invocation")

	rss, err := h.generator.Generate(ctx)
	if err != nil {
		return err
	}
	if err := h.uploader.Upload(ctx, store.UploadParams{
		Name:        feedName,
		Data:        rss,
		ContentType: "application/rss+xml",
	}); err != nil {
		return err
	}
	return h.invalidator.Invalidate(ctx, []string{"/" + feedName})
}
