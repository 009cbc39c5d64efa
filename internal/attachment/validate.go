// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package attachment validates and stores inbound message files and
// normalizes inline base64 images embedded in email HTML.
package attachment

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/leasehub/ingestion/internal/models"
)

// DefaultInlineImageSize is the bounding box, in pixels, inline images are
// scaled down to.
const DefaultInlineImageSize = 650

// DefaultExtensions are the file extensions accepted for storage.
var DefaultExtensions = []string{"doc", "docx", "pdf", "png", "gif", "jpg", "jpeg", "tiff"}

// DefaultContentTypes are the MIME types accepted for storage.
var DefaultContentTypes = []string{
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/pdf",
	"image/png",
	"image/gif",
	"image/jpeg",
	"image/jpg",
	"image/tiff",
}

// Options configures a Pipeline. Zero values take the defaults.
type Options struct {
	Extensions      []string
	ContentTypes    []string
	InlineImageSize int
}

// Pipeline validates, stores and rewrites message attachments.
type Pipeline struct {
	storage    Storage
	extensions map[string]bool
	types      map[string]bool
	maxDim     int
	now        func() time.Time
}

// NewPipeline creates a pipeline writing accepted files to storage.
func NewPipeline(storage Storage, opts Options) *Pipeline {
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	types := opts.ContentTypes
	if len(types) == 0 {
		types = DefaultContentTypes
	}
	maxDim := opts.InlineImageSize
	if maxDim <= 0 {
		maxDim = DefaultInlineImageSize
	}

	p := &Pipeline{
		storage:    storage,
		extensions: make(map[string]bool, len(exts)),
		types:      make(map[string]bool, len(types)),
		maxDim:     maxDim,
		now:        time.Now,
	}
	for _, e := range exts {
		p.extensions[strings.ToLower(strings.TrimPrefix(e, "."))] = true
	}
	for _, t := range types {
		p.types[mediaType(t)] = true
	}
	return p
}

// IsValid reports whether both the extension and the content type of a are
// on the allow-list.
func (p *Pipeline) IsValid(a models.Attachment) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(a.Filename), "."))
	return p.extensions[ext] && p.types[mediaType(a.ContentType)]
}

// ValidateAndStore writes every valid, non-empty attachment to
// <tenantID>/documents/<uuid> and returns the stored references in input
// order. Invalid and empty files are logged and skipped. A storage failure
// fails the whole batch.
func (p *Pipeline) ValidateAndStore(ctx context.Context, tenantID string, attachments []models.Attachment) ([]models.StoredFile, error) {
	if len(attachments) == 0 {
		return nil, nil
	}

	results := make([]*models.StoredFile, len(attachments))
	g, gctx := errgroup.WithContext(ctx)

	for i, a := range attachments {
		if !p.IsValid(a) {
			slog.WarnContext(ctx, "attachment rejected",
				"filename", a.Filename,
				"content_type", a.ContentType,
			)
			continue
		}
		if len(a.Content) == 0 {
			slog.WarnContext(ctx, "attachment has no content, skipping", "filename", a.Filename)
			continue
		}

		i, a := i, a
		g.Go(func() error {
			key := fmt.Sprintf("%s/documents/%s", tenantID, uuid.NewString())
			path, err := p.storage.Put(gctx, key, a.Content, a.ContentType)
			if err != nil {
				return fmt.Errorf("store attachment %q: %w", a.Filename, err)
			}
			results[i] = &models.StoredFile{OriginalName: a.Filename, Path: path}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	stored := make([]models.StoredFile, 0, len(results))
	for _, r := range results {
		if r != nil {
			stored = append(stored, *r)
		}
	}
	return stored, nil
}

// mediaType lowercases a content type and drops its parameters.
func mediaType(ct string) string {
	mt, _, _ := strings.Cut(ct, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}
