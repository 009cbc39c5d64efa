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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Storage persists attachment bytes under a key and returns the stored path.
type Storage interface {
	Put(ctx context.Context, key string, content []byte, contentType string) (string, error)
}

// FileStorage writes attachments below a root directory.
type FileStorage struct {
	root string
}

// NewFileStorage creates a storage rooted at dir.
func NewFileStorage(dir string) *FileStorage {
	return &FileStorage{root: dir}
}

// Put writes content to <root>/<key>, creating parent directories.
func (s *FileStorage) Put(ctx context.Context, key string, content []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}

	path := filepath.Join(s.root, filepath.Clean("/"+key))
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("create attachment dir: %w", err)
	}
	if err := os.WriteFile(path, content, 0o640); err != nil {
		return "", fmt.Errorf("write attachment: %w", err)
	}
	return path, nil
}
