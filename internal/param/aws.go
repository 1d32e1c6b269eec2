package param

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/dmorgan81/painterbot/internal/log"
	"github.com/samber/do"
	"github.com/samber/lo"
)

// ParameterAPI is the part of the SSM client the fetcher needs.
type ParameterAPI interface {
	ssm.GetParametersByPathAPIClient
	GetParameter(context.Context, *ssm.GetParameterInput, ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

type ParameterStoreFetcher struct {
	client ParameterAPI
}

func NewParameterStoreFetcherWithClient(client ParameterAPI) *ParameterStoreFetcher {
	return &ParameterStoreFetcher{client: client}
}

func NewParameterStoreFetcher(i *do.Injector) (Fetcher, error) {
	return &ParameterStoreFetcher{client: do.MustInvoke[*ssm.Client](i)}, nil
}

func (f *ParameterStoreFetcher) Fetch(ctx context.Context, path string) (string, error) {
	log := log.FromContextOrDiscard(ctx).WithGroup("parameter store").With("path", path)
	log.Info("fetching single parameter")

	out, err := f.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(path),
		WithDecryption: aws.Bool(true),
	})
	var notFound *types.ParameterNotFound
	if errors.As(err, &notFound) {
		return "", fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", path, err)
	}
	value := aws.ToString(out.Parameter.Value)
	if value == "" {
		return "", fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return value, nil
}

func (f *ParameterStoreFetcher) FetchAll(ctx context.Context, path string) ([]string, error) {
	log := log.FromContextOrDiscard(ctx).WithGroup("parameter store").With("path", path)
	log.Info("fetching all parameters")

	var params []types.Parameter
	pager := ssm.NewGetParametersByPathPaginator(f.client, &ssm.GetParametersByPathInput{
		Path:           aws.String(path),
		WithDecryption: aws.Bool(true),
	})
	for pager.HasMorePages() {
		out, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", path, err)
		}
		params = append(params, out.Parameters...)
	}

	// GetParametersByPath has no defined order; list position matters to callers.
	sort.Slice(params, func(i, j int) bool {
		return aws.ToString(params[i].Name) < aws.ToString(params[j].Name)
	})
	return lo.Map(params, func(p types.Parameter, _ int) string {
		return aws.ToString(p.Value)
	}), nil
}
