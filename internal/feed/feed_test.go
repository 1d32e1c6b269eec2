package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmorgan81/painterbot/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string]map[string]string
	times   map[string]time.Time
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	out := &s3.ListObjectsV2Output{}
	for k := range f.objects {
		out.Contents = append(out.Contents, s3types.Object{Key: aws.String(k)})
	}
	out.Contents = append(out.Contents, s3types.Object{Key: aws.String(aws.ToString(in.Prefix) + "notes.txt")})
	return out, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	key := aws.ToString(in.Key)
	return &s3.HeadObjectOutput{
		Metadata:     f.objects[key],
		LastModified: aws.Time(f.times[key]),
	}, nil
}

func TestGenerate(t *testing.T) {
	older := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(24 * time.Hour)
	client := &fakeS3{
		objects: map[string]map[string]string{
			"images/a.png": store.ASCIIMetadata(map[string]string{
				store.MetaPrompt:    "a corgi running on grass",
				store.MetaSource:    "一只柯基犬在草地上奔跑",
				store.MetaRequestID: "a",
			}),
			"images/b.png": {store.MetaPrompt: "a cat on a sofa", store.MetaRequestID: "b"},
		},
		times: map[string]time.Time{"images/a.png": older, "images/b.png": newer},
	}

	rss, err := NewGenerator(client, "bucket", "images/", "https://painter.example/").Generate(context.Background())
	require.NoError(t, err)

	out := string(rss)
	assert.Contains(t, out, "<title>a corgi running on grass</title>")
	assert.Contains(t, out, "一只柯基犬在草地上奔跑")
	assert.Contains(t, out, "https://painter.example/images/b.png")
	assert.NotContains(t, out, "notes.txt")
	assert.Less(t, strings.Index(out, "a cat on a sofa"), strings.Index(out, "a corgi running on grass"), "newest first")
}

// pagedS3 serves pages of one object each and fails every HeadObject. Later pages only arrive
// once the caller has given up or after a long delay.
type pagedS3 struct {
	pages int
	lists atomic.Int32
}

func (f *pagedS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	n := int(f.lists.Add(1))
	if n > 1 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
	out := &s3.ListObjectsV2Output{
		Contents: []s3types.Object{{Key: aws.String(fmt.Sprintf("images/%d.png", n))}},
	}
	if n < f.pages {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(fmt.Sprint(n))
	}
	return out, nil
}

func (f *pagedS3) HeadObject(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return nil, errors.New("access denied")
}

func TestGenerateStopsListingAfterHeadFailure(t *testing.T) {
	client := &pagedS3{pages: 10}

	start := time.Now()
	_, err := NewGenerator(client, "bucket", "images/", "").Generate(context.Background())

	assert.ErrorContains(t, err, "access denied")
	assert.Equal(t, int32(2), client.lists.Load())
	assert.Less(t, time.Since(start), 5*time.Second)
}
