package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"file_broker/server/fileman/domain"
	"file_broker/server/fileman/repository"
)

type memRepo struct {
	mu        sync.Mutex
	rows      map[string]domain.FileRecord
	insertErr error
}

func newMemRepo() *memRepo {
	return &memRepo{rows: map[string]domain.FileRecord{}}
}

func matches(item domain.FileRecord, f repository.Filter) bool {
	if f.ID != "" && item.ID != f.ID {
		return false
	}
	if f.OwnerID != "" && item.OwnerID != f.OwnerID {
		return false
	}
	if f.Status != "" && item.Status != f.Status {
		return false
	}
	if f.Deleted != nil && item.Deleted != *f.Deleted {
		return false
	}
	if !f.CreatedBefore.IsZero() && !item.CreatedAt.Before(f.CreatedBefore) {
		return false
	}
	return true
}

func (r *memRepo) Insert(_ context.Context, item domain.FileRecord) (domain.FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return domain.FileRecord{}, r.insertErr
	}
	if _, ok := r.rows[item.ID]; ok {
		return domain.FileRecord{}, errors.New("duplicate id")
	}
	r.rows[item.ID] = item
	return item, nil
}

func (r *memRepo) GetOne(_ context.Context, f repository.Filter) (domain.FileRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.rows {
		if matches(item, f) {
			return item, true, nil
		}
	}
	return domain.FileRecord{}, false, nil
}

func (r *memRepo) GetMany(_ context.Context, f repository.Filter, order repository.Order, skip, limit int) ([]domain.FileRecord, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]domain.FileRecord, 0)
	for _, item := range r.rows {
		if matches(item, f) {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if order.Desc {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	total := len(items)
	if skip >= total {
		return []domain.FileRecord{}, total, nil
	}
	items = items[skip:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items, total, nil
}

func (r *memRepo) Update(_ context.Context, f repository.Filter, p repository.Patch) (domain.FileRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, item := range r.rows {
		if !matches(item, f) {
			continue
		}
		if p.Status != nil {
			item.Status = *p.Status
		}
		if p.Deleted != nil {
			item.Deleted = *p.Deleted
		}
		item.UpdatedAt = p.UpdatedAt
		r.rows[id] = item
		return item, true, nil
	}
	return domain.FileRecord{}, false, nil
}

func (r *memRepo) Delete(_ context.Context, f repository.Filter) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, item := range r.rows {
		if matches(item, f) {
			delete(r.rows, id)
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) get(id string) (domain.FileRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.rows[id]
	return item, ok
}

func (r *memRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

type memStore struct {
	mu          sync.Mutex
	objects     map[string]bool
	uploadErr   error
	downloadErr error
	deleteErr   error
	deleted     []string
	lastTTL     time.Duration
}

func newMemStore() *memStore {
	return &memStore{objects: map[string]bool{}}
}

func (s *memStore) CreateUploadGrant(_ context.Context, path string) (string, error) {
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	return "https://objects.test/upload/" + path + "?sig=put", nil
}

func (s *memStore) CreateDownloadGrant(_ context.Context, path string, ttl time.Duration) (string, error) {
	if s.downloadErr != nil {
		return "", s.downloadErr
	}
	s.mu.Lock()
	s.lastTTL = ttl
	s.mu.Unlock()
	return "https://objects.test/download/" + path + "?sig=get", nil
}

func (s *memStore) DeleteObject(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, path)
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.objects, path)
	return nil
}

// put simulates the client PUT against a signed upload URL.
func (s *memStore) put(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = true
}

func (s *memStore) has(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[path]
}

type publishedEvent struct {
	ownerID string
	event   string
	payload FileEvent
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ownerID, event string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	fe, _ := payload.(FileEvent)
	p.events = append(p.events, publishedEvent{ownerID: ownerID, event: event, payload: fe})
	return p.err
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.event)
	}
	return out
}
