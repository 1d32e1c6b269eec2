// Package store publishes generated images so they can be downloaded later.
package store

import (
	"context"
	"mime"
	"os"
	"path/filepath"

	"github.com/dmorgan81/painterbot/internal/log"
	"github.com/samber/lo"
)

type UploadParams struct {
	Name        string
	Data        []byte
	ContentType string
	Metadata    map[string]string
}

type Uploader interface {
	Upload(context.Context, UploadParams) error
}

// Metadata keys written next to every published image.
const (
	MetaSource    = "source"
	MetaPrompt    = "prompt"
	MetaModel     = "model"
	MetaRequestID = "request-id"
	MetaDate      = "date"
)

// ASCIIMetadata makes values safe for S3 user metadata, which only carries US-ASCII.
// Non-ASCII text such as the source request becomes an RFC 2047 encoded word.
func ASCIIMetadata(m map[string]string) map[string]string {
	return lo.MapValues(m, func(v string, _ string) string {
		return mime.BEncoding.Encode("UTF-8", v)
	})
}

// ReadMetadata reverses ASCIIMetadata.
func ReadMetadata(m map[string]string) map[string]string {
	var dec mime.WordDecoder
	return lo.MapValues(m, func(v string, _ string) string {
		if s, err := dec.DecodeHeader(v); err == nil {
			return s
		}
		return v
	})
}

// FileUploader writes into Dir, for running without a bucket.
type FileUploader struct {
	Dir string
}

func (u *FileUploader) Upload(ctx context.Context, params UploadParams) error {
	path := filepath.Join(u.Dir, filepath.Base(params.Name))
	log.FromContextOrDiscard(ctx).WithGroup("file").Info("writing", "file", path)
	if err := os.MkdirAll(u.Dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, params.Data, 0o600)
}
