package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"pereval-backend/internal/models"
	"pereval-backend/internal/repository"
)

// ValidationError marks a client-fault input problem, detected before
// any write is attempted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

var difficultyCodes = map[string]bool{
	"1A": true, "1B": true,
	"2A": true, "2B": true,
	"3A": true, "3B": true,
}

// SubmitRequest is the inbound create payload. Image data arrives
// base64-encoded.
type SubmitRequest struct {
	BeautyTitle string         `json:"beauty_title"`
	Title       string         `json:"title"`
	OtherTitles string         `json:"other_titles"`
	Connect     string         `json:"connect"`
	AddTime     *time.Time     `json:"add_time,omitempty"`
	User        models.User    `json:"user"`
	Coords      models.Coords  `json:"coords"`
	Level       models.Level   `json:"level"`
	Images      []ImageRequest `json:"images"`
}

// ImageRequest is one inbound image attachment.
type ImageRequest struct {
	Data  string `json:"data"`
	Title string `json:"title"`
}

// PerevalService validates submissions and drives the store.
type PerevalService struct {
	store repository.SubmissionStore
}

// NewPerevalService creates a new pereval service.
func NewPerevalService(store repository.SubmissionStore) *PerevalService {
	return &PerevalService{store: store}
}

// Submit validates a create payload, decodes its images and persists it.
// Returns the new pereval id.
func (s *PerevalService) Submit(ctx context.Context, req *SubmitRequest) (int64, error) {
	if err := validateSubmit(req); err != nil {
		return 0, err
	}

	sub := &models.Submission{
		BeautyTitle: req.BeautyTitle,
		Title:       req.Title,
		OtherTitles: req.OtherTitles,
		Connect:     req.Connect,
		AddTime:     req.AddTime,
		User:        req.User,
		Coords:      req.Coords,
		Level:       req.Level,
	}

	for i, img := range req.Images {
		data, err := base64.StdEncoding.DecodeString(img.Data)
		if err != nil {
			return 0, &ValidationError{
				Field:  fmt.Sprintf("images[%d].data", i),
				Reason: "not valid base64",
			}
		}
		sub.Images = append(sub.Images, models.ImageUpload{Data: data, Title: img.Title})
	}

	return s.store.Create(ctx, sub)
}

// Update applies an owner edit to a record that is still pending
// moderation.
func (s *PerevalService) Update(ctx context.Context, id int64, patch *models.PerevalPatch) (models.UpdateOutcome, error) {
	if patch.Title == "" {
		return 0, &ValidationError{Field: "title", Reason: "required"}
	}
	if err := validateLevel(&patch.Level); err != nil {
		return 0, err
	}
	return s.store.Update(ctx, id, patch)
}

// Moderate moves a record from "new" to an accepted or rejected state.
func (s *PerevalService) Moderate(ctx context.Context, id int64, status string) (models.UpdateOutcome, error) {
	if status != models.StatusAccepted && status != models.StatusRejected {
		return 0, &ValidationError{
			Field:  "status",
			Reason: fmt.Sprintf("must be %q or %q", models.StatusAccepted, models.StatusRejected),
		}
	}
	return s.store.SetStatus(ctx, id, status)
}

// Get returns a hydrated record, or (nil, nil) when the id is unknown.
func (s *PerevalService) Get(ctx context.Context, id int64) (*models.Pereval, error) {
	return s.store.GetByID(ctx, id)
}

// ListByEmail returns every record submitted under the given email.
func (s *PerevalService) ListByEmail(ctx context.Context, email string) ([]*models.Pereval, error) {
	if email == "" {
		return nil, &ValidationError{Field: "user__email", Reason: "required"}
	}
	return s.store.ListByUserEmail(ctx, email)
}

func validateSubmit(req *SubmitRequest) error {
	if req.Title == "" {
		return &ValidationError{Field: "title", Reason: "required"}
	}
	if req.User.Email == "" {
		return &ValidationError{Field: "user.email", Reason: "required"}
	}
	if !strings.Contains(req.User.Email, "@") {
		return &ValidationError{Field: "user.email", Reason: "not a valid email address"}
	}
	if req.User.Fam == "" {
		return &ValidationError{Field: "user.fam", Reason: "required"}
	}
	if req.User.Name == "" {
		return &ValidationError{Field: "user.name", Reason: "required"}
	}
	if req.User.Phone == "" {
		return &ValidationError{Field: "user.phone", Reason: "required"}
	}
	if req.Coords.Latitude < -90 || req.Coords.Latitude > 90 {
		return &ValidationError{Field: "coords.latitude", Reason: "must be within [-90, 90]"}
	}
	if req.Coords.Longitude < -180 || req.Coords.Longitude > 180 {
		return &ValidationError{Field: "coords.longitude", Reason: "must be within [-180, 180]"}
	}
	if req.Coords.Height < 0 {
		return &ValidationError{Field: "coords.height", Reason: "must not be negative"}
	}
	if err := validateLevel(&req.Level); err != nil {
		return err
	}
	for i, img := range req.Images {
		if img.Data == "" {
			return &ValidationError{
				Field:  fmt.Sprintf("images[%d].data", i),
				Reason: "required",
			}
		}
	}
	return nil
}

func validateLevel(level *models.Level) error {
	for field, code := range map[string]*string{
		"level.winter": level.Winter,
		"level.summer": level.Summer,
		"level.autumn": level.Autumn,
		"level.spring": level.Spring,
	} {
		if code != nil && !difficultyCodes[*code] {
			return &ValidationError{Field: field, Reason: "unknown difficulty code"}
		}
	}
	return nil
}
