package handle

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmorgan81/painterbot/internal/log"
	"github.com/dmorgan81/painterbot/internal/page"
	"github.com/dmorgan81/painterbot/internal/store"
	"github.com/samber/do"
)

var urlRegexp = regexp.MustCompile(`^https://.+\.amazonaws\.com/(?P<key>.+?)\.html(?:\?.*)?$`)

type objectContext struct {
	Url   string `json:"inputS3Url"`
	Route string `json:"outputRoute"`
	Token string `json:"outputToken"`
}

// HtmlRequest is the S3 Object Lambda event for GET requests on "<id>.html".
type HtmlRequest struct {
	Id         string        `json:"xAmzRequestId"`
	GetContext objectContext `json:"getObjectContext"`
}

// ObjectLambdaAPI is the part of the S3 client the page renderer needs.
type ObjectLambdaAPI interface {
	HeadObject(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	WriteGetObjectResponse(context.Context, *s3.WriteGetObjectResponseInput, ...func(*s3.Options)) (*s3.WriteGetObjectResponseOutput, error)
}

// HtmlHandler renders the result page of a published image on demand, from the metadata
// stored with the PNG.
type HtmlHandler struct {
	client    ObjectLambdaAPI
	bucket    string
	siteURL   string
	templator *page.Templator
}

func NewHtmlHandler(i *do.Injector) (*HtmlHandler, error) {
	return &HtmlHandler{
		client:    do.MustInvoke[*s3.Client](i),
		bucket:    do.MustInvokeNamed[string](i, "bucket"),
		siteURL:   do.MustInvokeNamed[string](i, "site_url"),
		templator: do.MustInvoke[*page.Templator](i),
	}, nil
}

func (h *HtmlHandler) Handle(ctx context.Context, request HtmlRequest) error {
	log := log.FromContextOrDiscard(ctx).WithGroup("HtmlHandler").With("request", request.Id)
	matches := urlRegexp.FindStringSubmatch(request.GetContext.Url)
	if matches == nil {
		return fmt.Errorf("unexpected object url %q", request.GetContext.Url)
	}
	object := matches[urlRegexp.SubexpIndex("key")] + ".png"
	log.Info("handling object lambda request", "object", object)

	out, err := h.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(object),
	})
	if err != nil {
		return err
	}

	meta := store.ReadMetadata(out.Metadata)
	html, err := h.templator.Template(ctx, page.Params{
		Source: meta[store.MetaSource],
		Prompt: meta[store.MetaPrompt],
		Image:  trimSlash(h.siteURL) + "/" + object,
	})
	if err != nil {
		return err
	}

	_, err = h.client.WriteGetObjectResponse(ctx, &s3.WriteGetObjectResponseInput{
		RequestRoute: aws.String(request.GetContext.Route),
		RequestToken: aws.String(request.GetContext.Token),

		Body:          bytes.NewReader(html),
		ContentLength: aws.Int64(int64(len(html))),
		ContentType:   aws.String("text/html; charset=utf-8"),
		LastModified:  out.LastModified,
		StatusCode:    aws.Int32(200),
	})
	return err
}

func trimSlash(s string) string {
	return strings.TrimSuffix(s, "/")
}
