package param

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dmorgan81/painterbot/internal/log"
	"github.com/samber/lo"
)

// EnvFetcher resolves parameters from environment variables, for running outside AWS. A path
// is mapped to a variable name by upper-casing it and replacing separators with underscores,
// so "/painterbot/chat-api-key" reads PAINTERBOT_CHAT_API_KEY.
type EnvFetcher struct {
	Environ func() []string
}

func VarName(path string) string {
	name := strings.Trim(path, "/")
	name = strings.NewReplacer("/", "_", "-", "_", ".", "_").Replace(name)
	return strings.ToUpper(name)
}

func (f *EnvFetcher) lookup() map[string]string {
	return lo.Associate(f.Environ(), func(kv string) (string, string) {
		k, v, _ := strings.Cut(kv, "=")
		return k, v
	})
}

func (f *EnvFetcher) Fetch(ctx context.Context, path string) (string, error) {
	name := VarName(path)
	log.FromContextOrDiscard(ctx).WithGroup("env").Info("fetching single parameter", "var", name)

	if v := f.lookup()[name]; v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%s (%s): %w", path, name, ErrNotFound)
}

// FetchAll returns the values of every variable under the path's prefix, ordered by name.
func (f *EnvFetcher) FetchAll(ctx context.Context, path string) ([]string, error) {
	prefix := VarName(path) + "_"
	log.FromContextOrDiscard(ctx).WithGroup("env").Info("fetching all parameters", "prefix", prefix)

	vars := lo.PickBy(f.lookup(), func(k, v string) bool {
		return strings.HasPrefix(k, prefix) && v != ""
	})
	names := lo.Keys(vars)
	sort.Strings(names)
	return lo.Map(names, func(k string, _ int) string { return vars[k] }), nil
}
