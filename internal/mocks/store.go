package mocks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"pereval-backend/internal/models"
)

// MemoryImageStore is an in-memory blob store. Set FailOn to make the
// n-th Save call of a test fail, to exercise rollback paths.
type MemoryImageStore struct {
	mu      sync.Mutex
	Objects map[string][]byte
	FailOn  int // 1-based index of the Save call that fails; 0 = never
	calls   int
}

// NewMemoryImageStore creates an empty in-memory image store.
func NewMemoryImageStore() *MemoryImageStore {
	return &MemoryImageStore{Objects: map[string][]byte{}}
}

// Save stores the bytes under the key and returns the key as the path.
func (s *MemoryImageStore) Save(_ context.Context, key string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.FailOn != 0 && s.calls >= s.FailOn {
		return "", errors.New("blob store unavailable")
	}
	s.Objects[key] = data
	return key, nil
}

// MemoryStore is an in-memory SubmissionStore that mirrors the
// transactional semantics of the pgx implementation: a create either
// lands completely or leaves the maps untouched, users are deduplicated
// by email, and the status gate guards Update and SetStatus.
type MemoryStore struct {
	mu     sync.Mutex
	images *MemoryImageStore

	Users    map[string]*models.User // keyed by email
	Perevals map[int64]*models.Pereval

	nextUserID    int64
	nextPerevalID int64
	nextRowID     int64
}

// NewMemoryStore creates an empty in-memory store writing image bytes to
// the given blob store.
func NewMemoryStore(images *MemoryImageStore) *MemoryStore {
	return &MemoryStore{
		images:   images,
		Users:    map[string]*models.User{},
		Perevals: map[int64]*models.Pereval{},
	}
}

func (s *MemoryStore) Create(ctx context.Context, sub *models.Submission) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Resolve the user but do not commit a new one until the end.
	user, userIsNew := s.Users[sub.User.Email], false
	if user == nil {
		u := sub.User
		u.ID = s.nextUserID + 1
		user, userIsNew = &u, true
	}

	now := time.Now().UTC()
	p := &models.Pereval{
		ID:          s.nextPerevalID + 1,
		DateAdded:   now,
		BeautyTitle: sub.BeautyTitle,
		Title:       sub.Title,
		OtherTitles: sub.OtherTitles,
		Connect:     sub.Connect,
		AddTime:     sub.AddTime,
		User:        *user,
		Coords:      sub.Coords,
		Level:       sub.Level,
		Status:      models.StatusNew,
		Images:      []models.Image{},
	}
	rowID := s.nextRowID + 1
	p.Coords.ID = rowID

	for _, img := range sub.Images {
		rowID++
		path, err := s.images.Save(ctx, fmt.Sprintf("pereval/%d", rowID), img.Data)
		if err != nil {
			// Nothing was committed yet, so the rollback is implicit.
			return 0, fmt.Errorf("failed to store image %q: %w", img.Title, err)
		}
		p.Images = append(p.Images, models.Image{
			ID:        rowID,
			DateAdded: now,
			Path:      path,
			Title:     img.Title,
		})
	}

	if userIsNew {
		s.nextUserID++
		s.Users[user.Email] = user
	}
	s.nextPerevalID++
	s.nextRowID = rowID
	s.Perevals[p.ID] = p
	return p.ID, nil
}

func (s *MemoryStore) Update(_ context.Context, id int64, patch *models.PerevalPatch) (models.UpdateOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.Perevals[id]
	if !ok {
		return models.UpdateNotFound, nil
	}
	if p.Status != models.StatusNew {
		return models.UpdateRefused, nil
	}

	p.BeautyTitle = patch.BeautyTitle
	p.Title = patch.Title
	p.OtherTitles = patch.OtherTitles
	p.Connect = patch.Connect
	p.AddTime = patch.AddTime
	p.Level = patch.Level
	return models.UpdateApplied, nil
}

func (s *MemoryStore) SetStatus(_ context.Context, id int64, status string) (models.UpdateOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.Perevals[id]
	if !ok {
		return models.UpdateNotFound, nil
	}
	if p.Status != models.StatusNew {
		return models.UpdateRefused, nil
	}
	p.Status = status
	return models.UpdateApplied, nil
}

func (s *MemoryStore) GetByID(_ context.Context, id int64) (*models.Pereval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.Perevals[id]
	if !ok {
		return nil, nil
	}
	return clonePereval(p), nil
}

func (s *MemoryStore) ListByUserEmail(_ context.Context, email string) ([]*models.Pereval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	perevals := []*models.Pereval{}
	for _, p := range s.Perevals {
		if p.User.Email == email {
			perevals = append(perevals, clonePereval(p))
		}
	}
	sort.Slice(perevals, func(i, j int) bool { return perevals[i].ID < perevals[j].ID })
	return perevals, nil
}

func clonePereval(p *models.Pereval) *models.Pereval {
	c := *p
	c.Images = append([]models.Image{}, p.Images...)
	return &c
}
