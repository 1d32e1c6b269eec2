// Package feed builds an RSS gallery of published images.
package feed

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmorgan81/painterbot/internal/log"
	"github.com/dmorgan81/painterbot/internal/store"
	"github.com/gorilla/feeds"
	"github.com/samber/do"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// Name is the object key the feed is published under.
const Name = "feed.xml"

// ObjectAPI is the slice of the S3 client the feed needs.
type ObjectAPI interface {
	s3.ListObjectsV2APIClient
	HeadObject(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type Generator struct {
	client  ObjectAPI
	bucket  string
	prefix  string
	siteURL string
}

func NewS3Generator(i *do.Injector) (*Generator, error) {
	return &Generator{
		client:  do.MustInvoke[*s3.Client](i),
		bucket:  do.MustInvokeNamed[string](i, "bucket"),
		prefix:  do.MustInvokeNamed[string](i, "image_prefix"),
		siteURL: do.MustInvokeNamed[string](i, "site_url"),
	}, nil
}

func NewGenerator(client ObjectAPI, bucket, prefix, siteURL string) *Generator {
	return &Generator{client, bucket, prefix, siteURL}
}

func (g *Generator) Generate(ctx context.Context) ([]byte, error) {
	log := log.FromContextOrDiscard(ctx).WithGroup("feed").With("bucket", g.bucket, "prefix", g.prefix)
	log.Info("generating rss feed")

	feed := feeds.Feed{
		Title:       "painterbot",
		Description: "Pictures painted from one-line descriptions",
		Link:        &feeds.Link{Href: g.siteURL},
		Updated:     time.Now(),
	}

	pager := s3.NewListObjectsV2Paginator(g.client, &s3.ListObjectsV2Input{
		Bucket: &g.bucket,
		Prefix: &g.prefix,
	})

	var mu sync.Mutex
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(8)
	for pager.HasMorePages() {
		page, err := pager.NextPage(gctx)
		if err != nil {
			if werr := group.Wait(); werr != nil {
				return nil, werr
			}
			return nil, err
		}

		objs := lo.Filter(page.Contents, func(o s3types.Object, _ int) bool {
			return strings.HasSuffix(*o.Key, ".png")
		})

		for _, obj := range objs {
			key := *obj.Key
			group.Go(func() error {
				out, err := g.client.HeadObject(gctx, &s3.HeadObjectInput{
					Bucket: &g.bucket,
					Key:    &key,
				})
				if err != nil {
					return err
				}

				meta := store.ReadMetadata(out.Metadata)
				item := &feeds.Item{
					Id:          meta[store.MetaRequestID],
					Title:       meta[store.MetaPrompt],
					Description: meta[store.MetaSource],
					Link:        &feeds.Link{Href: strings.TrimSuffix(g.siteURL, "/") + "/" + key},
					Updated:     lo.FromPtr(out.LastModified),
				}
				mu.Lock()
				feed.Add(item)
				mu.Unlock()
				return nil
			})
		}
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	feed.Sort(func(a, b *feeds.Item) bool {
		return a.Updated.After(b.Updated)
	})
	rss, err := feed.ToRss()
	return []byte(rss), err
}
