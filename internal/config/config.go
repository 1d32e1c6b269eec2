// Package config assembles the read-only settings shared by the translator and the synthesizer.
package config

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dmorgan81/painterbot/internal/log"
	"github.com/dmorgan81/painterbot/internal/param"
)

const (
	BackendOpenAI = "openai"
	BackendSigned = "signed"
)

// Fields lists where the image backends put their payloads. Vendors have moved these
// between protocol versions, so they are data rather than code.
type Fields struct {
	Results []string
	Base64  []string
	URL     []string
}

func DefaultFields() Fields {
	return Fields{
		Results: []string{"data", "output.results", "results"},
		Base64:  []string{"b64_json", "b64_image", "base64"},
		URL:     []string{"url", "image_url"},
	}
}

type Config struct {
	ChatAPIKey  string
	ImageAPIKey string
	TenantID    string

	ChatEndpoint  string
	ChatModel     string
	ImageEndpoint string
	ImageModel    string
	ImageBackend  string

	Timeout     time.Duration
	Backoff     time.Duration
	MaxAttempts int

	Fields Fields
}

var ErrMissingSecret = errors.New("missing required secret")

// Load reads plain settings from getenv and the three secrets through the fetcher. The
// environment names the parameter paths (CHAT_API_KEY_PARAM, IMAGE_API_KEY_PARAM,
// TENANT_ID_PARAM). A missing secret is an error; the process should not start without it.
func Load(ctx context.Context, fetcher param.Fetcher, getenv func(string) string) (Config, error) {
	log := log.FromContextOrDiscard(ctx).WithGroup("config")
	log.Info("loading configuration")

	env := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		ChatEndpoint:  env("CHAT_ENDPOINT", "https://dashscope.aliyuncs.com/compatible-mode/v1"),
		ChatModel:     env("CHAT_MODEL", "qwen-max"),
		ImageEndpoint: env("IMAGE_ENDPOINT", "https://dashscope.aliyuncs.com/compatible-mode/v1/images/generations"),
		ImageModel:    env("IMAGE_MODEL", "wanx-v1"),
		ImageBackend:  env("IMAGE_BACKEND", BackendOpenAI),
		Fields:        DefaultFields(),
	}

	var err error
	if cfg.Timeout, err = time.ParseDuration(env("REQUEST_TIMEOUT", "60s")); err != nil {
		return Config{}, fmt.Errorf("REQUEST_TIMEOUT: %w", err)
	}
	if cfg.Backoff, err = time.ParseDuration(env("RATE_LIMIT_BACKOFF", "2s")); err != nil {
		return Config{}, fmt.Errorf("RATE_LIMIT_BACKOFF: %w", err)
	}
	if cfg.MaxAttempts, err = strconv.Atoi(env("MAX_ATTEMPTS", "3")); err != nil {
		return Config{}, fmt.Errorf("MAX_ATTEMPTS: %w", err)
	}

	secrets := []struct {
		env string
		dst *string
	}{
		{"CHAT_API_KEY_PARAM", &cfg.ChatAPIKey},
		{"IMAGE_API_KEY_PARAM", &cfg.ImageAPIKey},
		{"TENANT_ID_PARAM", &cfg.TenantID},
	}
	for _, s := range secrets {
		path := getenv(s.env)
		if path == "" {
			return Config{}, fmt.Errorf("%w: %s is not set", ErrMissingSecret, s.env)
		}
		v, err := fetcher.Fetch(ctx, path)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %v", ErrMissingSecret, err)
		}
		*s.dst = v
	}

	if path := getenv("FIELDS_PARAM"); path != "" {
		if cfg.Fields, err = loadFields(ctx, fetcher, path); err != nil {
			return Config{}, err
		}
	}

	return cfg, cfg.Validate()
}

// loadFields overrides the default field lists with whatever is stored under path/results,
// path/base64 and path/url. Empty lists keep the defaults.
func loadFields(ctx context.Context, fetcher param.Fetcher, path string) (Fields, error) {
	fields := DefaultFields()
	for name, dst := range map[string]*[]string{
		"results": &fields.Results,
		"base64":  &fields.Base64,
		"url":     &fields.URL,
	} {
		values, err := fetcher.FetchAll(ctx, path+"/"+name)
		if err != nil {
			return Fields{}, fmt.Errorf("loading %s field names: %w", name, err)
		}
		if len(values) > 0 {
			*dst = values
		}
	}
	return fields, nil
}

func (c Config) Validate() error {
	switch {
	case c.ChatAPIKey == "", c.ImageAPIKey == "", c.TenantID == "":
		return ErrMissingSecret
	case c.ImageBackend != BackendOpenAI && c.ImageBackend != BackendSigned:
		return fmt.Errorf("unknown image backend %q", c.ImageBackend)
	case c.MaxAttempts < 1:
		return fmt.Errorf("max attempts must be positive, got %d", c.MaxAttempts)
	case c.Timeout <= 0:
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	case c.Backoff < 0:
		return fmt.Errorf("backoff must not be negative, got %s", c.Backoff)
	}
	return nil
}
