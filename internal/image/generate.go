// Package image submits prompts to a text-to-image backend and normalizes what comes back.
package image

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
)

const (
	Size      = "1024x1024"
	Count     = 1
	MimeType  = "image/png"
	B64Format = "b64_json"
)

// Params is the body of a synthesis request. Size and count are fixed.
type Params struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format,omitempty"`
}

// Backend builds the outbound request for one protocol family.
type Backend interface {
	Name() string
	NewRequest(context.Context, Params) (*http.Request, error)
}

type Encoding string

const (
	Base64 Encoding = "base64"
	URL    Encoding = "url"
)

// Result is one generated image, either inline base64 or a link.
type Result struct {
	Encoding Encoding
	Data     string
	MimeType string
}

var ErrNotInline = errors.New("image result is a URL, not inline data")

// Reference returns something an <img> or markdown image can point at.
func (r Result) Reference() string {
	switch {
	case r.Data == "":
		return ""
	case r.Encoding == URL:
		return r.Data
	}
	return "data:" + r.MimeType + ";base64," + r.Data
}

// Decode returns the image bytes of a base64 result. URL results have to be fetched by the
// caller instead.
func (r Result) Decode() ([]byte, error) {
	if r.Encoding != Base64 {
		return nil, ErrNotInline
	}
	return base64.StdEncoding.DecodeString(r.Data)
}
