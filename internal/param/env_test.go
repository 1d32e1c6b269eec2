package param

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func environ(kv ...string) func() []string {
	return func() []string { return kv }
}

func TestVarName(t *testing.T) {
	assert.Equal(t, "PAINTERBOT_CHAT_API_KEY", VarName("/painterbot/chat-api-key"))
	assert.Equal(t, "TENANT_ID", VarName("tenant.id"))
}

func TestEnvFetcherFetch(t *testing.T) {
	f := &EnvFetcher{Environ: environ("PAINTERBOT_CHAT_API_KEY=sk-1", "EMPTY=")}
	ctx := context.Background()

	v, err := f.Fetch(ctx, "/painterbot/chat-api-key")
	require.NoError(t, err)
	assert.Equal(t, "sk-1", v)

	_, err = f.Fetch(ctx, "/empty")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.Fetch(ctx, "/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEnvFetcherFetchAll(t *testing.T) {
	f := &EnvFetcher{Environ: environ(
		"PAINTERBOT_STYLES_B=watercolor",
		"PAINTERBOT_STYLES_A=photography",
		"PAINTERBOT_STYLESHEET=ignored",
		"OTHER=x",
	)}

	values, err := f.FetchAll(context.Background(), "/painterbot/styles")
	require.NoError(t, err)
	assert.Equal(t, []string{"photography", "watercolor"}, values)
}
