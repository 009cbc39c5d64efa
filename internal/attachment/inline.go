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

package attachment

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"log/slog"
	"math"
	"regexp"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"

	"github.com/leasehub/ingestion/internal/models"
)

var inlineImageRe = regexp.MustCompile(`data:image/([A-Za-z0-9.+\-]+);base64,([A-Za-z0-9+/=]+)`)

// ProcessInlineImages walks every base64 data URI image in html in document
// order. Each image not already present in attachments is synthesized as
// image-<index>-<timestamp>.<subtype>, where index counts occurrences, and
// only those synthesized attachments are returned. Images larger than the
// inline bound are scaled down in place when that shrinks the payload. An
// occurrence that cannot be decoded or resized is logged and left as it was.
func (p *Pipeline) ProcessInlineImages(ctx context.Context, messageID, html string, attachments []models.Attachment) (string, []models.Attachment) {
	matches := inlineImageRe.FindAllStringSubmatchIndex(html, -1)
	if len(matches) == 0 {
		return html, nil
	}

	var added []models.Attachment
	var b strings.Builder
	b.Grow(len(html))
	last := 0

	for idx, m := range matches {
		start, end := m[0], m[1]
		subtype := strings.ToLower(html[m[2]:m[3]])
		data := html[m[4]:m[5]]

		b.WriteString(html[last:start])
		last = end

		raw, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			slog.WarnContext(ctx, "inline image is not valid base64",
				"message_id", messageID,
				"offset", start,
				"error", err,
			)
			b.WriteString(html[start:end])
			continue
		}

		if !containsContent(attachments, raw) && !containsContent(added, raw) {
			added = append(added, models.Attachment{
				Filename:    fmt.Sprintf("image-%d-%s.%s", idx, p.now().UTC().Format("2006-01-02T15:04:05.000Z"), subtype),
				ContentType: "image/" + subtype,
				Content:     raw,
			})
		}

		resized, changed, err := resizeToFit(raw, subtype, p.maxDim)
		if err != nil {
			slog.WarnContext(ctx, "inline image resize failed",
				"message_id", messageID,
				"subtype", subtype,
				"error", err,
			)
			b.WriteString(html[start:end])
			continue
		}
		if !changed {
			b.WriteString(html[start:end])
			continue
		}
		b.WriteString("data:image/" + html[m[2]:m[3]] + ";base64,")
		b.WriteString(base64.StdEncoding.EncodeToString(resized))
	}
	b.WriteString(html[last:])

	return b.String(), added
}

func containsContent(attachments []models.Attachment, content []byte) bool {
	for _, a := range attachments {
		if bytes.Equal(a.Content, content) {
			return true
		}
	}
	return false
}

// resizeToFit scales an encoded image so that neither side exceeds maxDim,
// keeping the aspect ratio. Images already inside the bound, formats without
// an encoder, and re-encodings no smaller than the original are returned
// unchanged.
func resizeToFit(raw []byte, subtype string, maxDim int) ([]byte, bool, error) {
	encode, ok := encoders[subtype]
	if !ok {
		return raw, false, nil
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", subtype, err)
	}

	bounds := src.Bounds()
	w, h, ok := fitInside(bounds.Dx(), bounds.Dy(), maxDim)
	if !ok {
		return raw, false, nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := encode(&buf, dst); err != nil {
		return nil, false, fmt.Errorf("encode %s: %w", subtype, err)
	}
	if buf.Len() >= len(raw) {
		return raw, false, nil
	}
	return buf.Bytes(), true, nil
}

// fitInside returns the largest size inside a maxDim square with the same
// aspect ratio as w x h. ok is false when no shrinking is needed.
func fitInside(w, h, maxDim int) (int, int, bool) {
	if w <= maxDim && h <= maxDim {
		return w, h, false
	}
	scale := math.Min(float64(maxDim)/float64(w), float64(maxDim)/float64(h))
	nw := max(1, int(math.Round(float64(w)*scale)))
	nh := max(1, int(math.Round(float64(h)*scale)))
	return nw, nh, true
}

type encoderFunc func(buf *bytes.Buffer, img image.Image) error

var encoders = map[string]encoderFunc{
	"png": func(buf *bytes.Buffer, img image.Image) error { return png.Encode(buf, img) },
	"jpeg": func(buf *bytes.Buffer, img image.Image) error {
		return jpeg.Encode(buf, img, &jpeg.Options{Quality: 85})
	},
	"jpg": func(buf *bytes.Buffer, img image.Image) error {
		return jpeg.Encode(buf, img, &jpeg.Options{Quality: 85})
	},
	"gif":  func(buf *bytes.Buffer, img image.Image) error { return gif.Encode(buf, img, nil) },
	"tiff": func(buf *bytes.Buffer, img image.Image) error { return tiff.Encode(buf, img, nil) },
}
