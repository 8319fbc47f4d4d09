package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/AzielCF/az-post/posts/domain"
)

// FileMirror keeps a JSON document with the latest snapshot of every post.
// Writes go to a temp file first and are renamed into place.
type FileMirror struct {
	path string
	mu   sync.Mutex
}

func NewFileMirror(path string) *FileMirror {
	return &FileMirror{path: path}
}

type mirrorDocument struct {
	Posts []domain.Post `json:"posts"`
}

func (m *FileMirror) Apply(ctx context.Context, post domain.Post) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.load()
	if err != nil {
		return err
	}

	replaced := false
	for i := range doc.Posts {
		if doc.Posts[i].ID == post.ID {
			// stale snapshots never overwrite newer ones
			if doc.Posts[i].UpdatedAt.After(post.UpdatedAt) {
				return nil
			}
			doc.Posts[i] = post
			replaced = true
			break
		}
	}
	if !replaced {
		doc.Posts = append(doc.Posts, post)
	}
	sort.SliceStable(doc.Posts, func(i, j int) bool {
		if doc.Posts[i].TenantID != doc.Posts[j].TenantID {
			return doc.Posts[i].TenantID < doc.Posts[j].TenantID
		}
		return doc.Posts[i].Sequence < doc.Posts[j].Sequence
	})
	return m.store(doc)
}

// Snapshot returns every mirrored post.
func (m *FileMirror) Snapshot() ([]domain.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, err := m.load()
	if err != nil {
		return nil, err
	}
	return doc.Posts, nil
}

func (m *FileMirror) load() (*mirrorDocument, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &mirrorDocument{}, nil
		}
		return nil, fmt.Errorf("read mirror: %w", err)
	}
	doc := &mirrorDocument{}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("decode mirror: %w", err)
	}
	return doc, nil
}

func (m *FileMirror) store(doc *mirrorDocument) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(m.path), ".posts-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), m.path)
}
