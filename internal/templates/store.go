package templates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aiox-platform/mailgate/internal/store"
)

const (
	contentPrefix = "template:"
	metaPrefix    = "template_meta:"
)

var ErrNotFound = errors.New("template not found")

// Store persists templates in the shared key-value store.
type Store struct {
	kv  store.KV
	now func() time.Time
}

func NewStore(kv store.KV) *Store {
	return &Store{kv: kv, now: time.Now}
}

// Save creates or replaces a template. CreatedAt survives updates.
func (s *Store) Save(ctx context.Context, id, content, description string) (*Template, error) {
	subject, body, err := ParseContent(content)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	meta := Metadata{Description: description, CreatedAt: now, UpdatedAt: now}
	if prev, err := s.meta(ctx, id); err == nil && !prev.CreatedAt.IsZero() {
		meta.CreatedAt = prev.CreatedAt
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if err := s.kv.Put(ctx, contentPrefix+id, []byte(content), 0); err != nil {
		return nil, fmt.Errorf("saving template %s: %w", id, err)
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encoding template metadata: %w", err)
	}
	if err := s.kv.Put(ctx, metaPrefix+id, data, 0); err != nil {
		return nil, fmt.Errorf("saving template metadata %s: %w", id, err)
	}

	return &Template{
		ID:          id,
		Subject:     subject,
		Body:        body,
		Content:     content,
		Description: meta.Description,
		CreatedAt:   meta.CreatedAt,
		UpdatedAt:   meta.UpdatedAt,
	}, nil
}

// Get returns the template or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Template, error) {
	raw, err := s.kv.Get(ctx, contentPrefix+id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting template %s: %w", id, err)
	}

	t := &Template{ID: id, Content: string(raw)}
	if subject, body, err := ParseContent(t.Content); err == nil {
		t.Subject, t.Body = subject, body
	}

	meta, err := s.meta(ctx, id)
	switch {
	case err == nil:
		t.Description, t.CreatedAt, t.UpdatedAt = meta.Description, meta.CreatedAt, meta.UpdatedAt
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}
	return t, nil
}

// List returns every template sorted by ID.
func (s *Store) List(ctx context.Context) ([]Template, error) {
	keys, err := s.kv.List(ctx, contentPrefix)
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}

	out := make([]Template, 0, len(keys))
	for _, key := range keys {
		t, err := s.Get(ctx, strings.TrimPrefix(key, contentPrefix))
		if errors.Is(err, ErrNotFound) {
			// Expired or deleted between List and Get.
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Delete removes a template and its metadata. Missing templates return ErrNotFound.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.kv.Get(ctx, contentPrefix+id); errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	} else if err != nil {
		return fmt.Errorf("getting template %s: %w", id, err)
	}
	if err := s.kv.Delete(ctx, contentPrefix+id); err != nil {
		return fmt.Errorf("deleting template %s: %w", id, err)
	}
	if err := s.kv.Delete(ctx, metaPrefix+id); err != nil {
		return fmt.Errorf("deleting template metadata %s: %w", id, err)
	}
	return nil
}

func (s *Store) meta(ctx context.Context, id string) (*Metadata, error) {
	raw, err := s.kv.Get(ctx, metaPrefix+id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("getting template metadata %s: %w", id, err)
	}
	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decoding template metadata %s: %w", id, err)
	}
	return &m, nil
}
