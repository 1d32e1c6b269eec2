package image

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dmorgan81/painterbot/internal/config"
	"github.com/google/uuid"
	"github.com/samber/do"
)

func NewBackend(i *do.Injector) (Backend, error) {
	cfg := do.MustInvoke[config.Config](i)
	switch cfg.ImageBackend {
	case config.BackendOpenAI:
		return &OpenAIBackend{Endpoint: cfg.ImageEndpoint, Key: cfg.ChatAPIKey}, nil
	case config.BackendSigned:
		return &SignedBackend{Endpoint: cfg.ImageEndpoint, Key: cfg.ImageAPIKey, TenantID: cfg.TenantID}, nil
	}
	return nil, fmt.Errorf("unknown image backend %q", cfg.ImageBackend)
}

func newJSONRequest(ctx context.Context, endpoint string, params Params) (*http.Request, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// OpenAIBackend speaks the synchronous OpenAI images API: one POST, image inline in the reply.
type OpenAIBackend struct {
	Endpoint string
	Key      string
}

func (*OpenAIBackend) Name() string { return config.BackendOpenAI }

func (b *OpenAIBackend) NewRequest(ctx context.Context, params Params) (*http.Request, error) {
	req, err := newJSONRequest(ctx, b.Endpoint, params)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+b.Key)
	return req, nil
}

// SignedBackend speaks a vendor-native protocol that wants the tenant and a per-request
// signature next to the bearer token.
type SignedBackend struct {
	Endpoint string
	Key      string
	TenantID string

	Now   func() time.Time
	NewID func() string
}

func (*SignedBackend) Name() string { return config.BackendSigned }

func (b *SignedBackend) NewRequest(ctx context.Context, params Params) (*http.Request, error) {
	req, err := newJSONRequest(ctx, b.Endpoint, params)
	if err != nil {
		return nil, err
	}

	now, newID := time.Now, uuid.NewString
	if b.Now != nil {
		now = b.Now
	}
	if b.NewID != nil {
		newID = b.NewID
	}
	timestamp := strconv.FormatInt(now().Unix(), 10)
	requestID := newID()

	req.Header.Set("Authorization", "Bearer "+b.Key)
	req.Header.Set("X-Group-Id", b.TenantID)
	req.Header.Set("X-Request-Id", requestID)
	req.Header.Set("X-Timestamp", timestamp)
	req.Header.Set("X-Signature", Sign(b.Key, timestamp, requestID, b.TenantID, params.Model, params.Prompt))
	return req, nil
}

// Sign is hex(sha256(secret + timestamp + requestID + tenantID + model + prompt)).
func Sign(secret, timestamp, requestID, tenantID, model, prompt string) string {
	sum := sha256.Sum256([]byte(secret + timestamp + requestID + tenantID + model + prompt))
	return hex.EncodeToString(sum[:])
}
