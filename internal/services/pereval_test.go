package services_test

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"pereval-backend/internal/mocks"
	"pereval-backend/internal/models"
	"pereval-backend/internal/services"
)

func strPtr(s string) *string { return &s }

func validRequest() *services.SubmitRequest {
	return &services.SubmitRequest{
		BeautyTitle: "пер. ",
		Title:       "Pkhiya",
		OtherTitles: "Triev",
		Connect:     "",
		User: models.User{
			Email: "qwerty@mail.ru",
			Fam:   "Pashkov",
			Name:  "Vasily",
			Otc:   "Ivanovich",
			Phone: "+7 555 55 55",
		},
		Coords: models.Coords{Latitude: 45.3842, Longitude: 7.1525, Height: 1200},
		Level: models.Level{
			Winter: nil,
			Summer: strPtr("1A"),
			Autumn: strPtr("1A"),
			Spring: nil,
		},
		Images: []services.ImageRequest{
			{Data: base64.StdEncoding.EncodeToString([]byte("first image bytes")), Title: "Седловина"},
			{Data: base64.StdEncoding.EncodeToString([]byte("second image bytes")), Title: "Подъём"},
		},
	}
}

func newService() (*services.PerevalService, *mocks.MemoryStore, *mocks.MemoryImageStore) {
	images := mocks.NewMemoryImageStore()
	store := mocks.NewMemoryStore(images)
	return services.NewPerevalService(store), store, images
}

func TestSubmitRoundTrip(t *testing.T) {
	svc, _, images := newService()
	ctx := context.Background()

	req := validRequest()
	id, err := svc.Submit(ctx, req)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	p, err := svc.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if p == nil {
		t.Fatal("Get returned nil for a freshly created record")
	}

	if p.User.Email != req.User.Email {
		t.Errorf("user email = %q, want %q", p.User.Email, req.User.Email)
	}
	if p.Coords.Latitude != req.Coords.Latitude || p.Coords.Longitude != req.Coords.Longitude || p.Coords.Height != req.Coords.Height {
		t.Errorf("coords = %+v, want %+v", p.Coords, req.Coords)
	}
	if p.Status != models.StatusNew {
		t.Errorf("status = %q, want %q", p.Status, models.StatusNew)
	}
	if len(p.Images) != 2 {
		t.Fatalf("expected 2 images, got %d", len(p.Images))
	}
	for i, img := range p.Images {
		if img.Title != req.Images[i].Title {
			t.Errorf("image %d title = %q, want %q", i, img.Title, req.Images[i].Title)
		}
		if img.Path == "" {
			t.Errorf("image %d has no stored path", i)
		}
	}
	if len(images.Objects) != 2 {
		t.Errorf("expected 2 blobs stored, got %d", len(images.Objects))
	}
}

func TestSubmitReusesUserByEmail(t *testing.T) {
	svc, store, _ := newService()
	ctx := context.Background()

	first := validRequest()
	id1, err := svc.Submit(ctx, first)
	if err != nil {
		t.Fatalf("first Submit failed: %v", err)
	}

	second := validRequest()
	second.User.Fam = "Different"
	second.User.Name = "Person"
	id2, err := svc.Submit(ctx, second)
	if err != nil {
		t.Fatalf("second Submit failed: %v", err)
	}

	if len(store.Users) != 1 {
		t.Fatalf("expected 1 user row, got %d", len(store.Users))
	}

	p1, _ := svc.Get(ctx, id1)
	p2, _ := svc.Get(ctx, id2)
	if p1.User.ID != p2.User.ID {
		t.Errorf("records link to different users: %d vs %d", p1.User.ID, p2.User.ID)
	}
	// The stored contact fields stay as first submitted.
	if p2.User.Fam != first.User.Fam {
		t.Errorf("user fam = %q, want %q", p2.User.Fam, first.User.Fam)
	}
}

func TestSubmitRollsBackOnImageFailure(t *testing.T) {
	images := mocks.NewMemoryImageStore()
	images.FailOn = 2 // second image write fails
	store := mocks.NewMemoryStore(images)
	svc := services.NewPerevalService(store)
	ctx := context.Background()

	if _, err := svc.Submit(ctx, validRequest()); err == nil {
		t.Fatal("expected Submit to fail when an image write fails")
	}

	if len(store.Perevals) != 0 {
		t.Errorf("expected 0 pereval rows after rollback, got %d", len(store.Perevals))
	}
	if len(store.Users) != 0 {
		t.Errorf("expected 0 user rows after rollback, got %d", len(store.Users))
	}
}

func TestSubmitRollbackKeepsExistingUser(t *testing.T) {
	images := mocks.NewMemoryImageStore()
	store := mocks.NewMemoryStore(images)
	svc := services.NewPerevalService(store)
	ctx := context.Background()

	if _, err := svc.Submit(ctx, validRequest()); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	images.FailOn = 3 // next image write fails
	if _, err := svc.Submit(ctx, validRequest()); err == nil {
		t.Fatal("expected Submit to fail when an image write fails")
	}

	if len(store.Users) != 1 {
		t.Errorf("pre-existing user should survive the rollback, got %d rows", len(store.Users))
	}
	if len(store.Perevals) != 1 {
		t.Errorf("expected only the first record to remain, got %d", len(store.Perevals))
	}
}

func TestSubmitCoordinateBounds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*services.SubmitRequest)
	}{
		{"latitude above range", func(r *services.SubmitRequest) { r.Coords.Latitude = 91 }},
		{"longitude below range", func(r *services.SubmitRequest) { r.Coords.Longitude = -181 }},
		{"negative height", func(r *services.SubmitRequest) { r.Coords.Height = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, images := newService()

			req := validRequest()
			tt.mutate(req)

			_, err := svc.Submit(context.Background(), req)
			var vErr *services.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if len(store.Perevals) != 0 || len(store.Users) != 0 || len(images.Objects) != 0 {
				t.Error("validation failure must not persist anything")
			}
		})
	}
}

func TestSubmitMissingRequiredFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*services.SubmitRequest)
	}{
		{"missing title", func(r *services.SubmitRequest) { r.Title = "" }},
		{"missing email", func(r *services.SubmitRequest) { r.User.Email = "" }},
		{"malformed email", func(r *services.SubmitRequest) { r.User.Email = "not-an-email" }},
		{"missing phone", func(r *services.SubmitRequest) { r.User.Phone = "" }},
		{"unknown difficulty code", func(r *services.SubmitRequest) { r.Level.Summer = strPtr("5C") }},
		{"bad image encoding", func(r *services.SubmitRequest) { r.Images[0].Data = "%%% not base64 %%%" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newService()

			req := validRequest()
			tt.mutate(req)

			_, err := svc.Submit(context.Background(), req)
			var vErr *services.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if len(store.Perevals) != 0 {
				t.Error("validation failure must not persist anything")
			}
		})
	}
}

func TestUpdateAppliesPatchWholesale(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()

	id, err := svc.Submit(ctx, validRequest())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	patch := &models.PerevalPatch{
		Title:       "Pkhiya (updated)",
		BeautyTitle: "пер. ",
		OtherTitles: "",
		Connect:     "connects two valleys",
		Level:       models.Level{Winter: strPtr("2A")},
	}
	outcome, err := svc.Update(ctx, id, patch)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if outcome != models.UpdateApplied {
		t.Fatalf("outcome = %v, want applied", outcome)
	}

	p, _ := svc.Get(ctx, id)
	if p.Title != patch.Title {
		t.Errorf("title = %q, want %q", p.Title, patch.Title)
	}
	if p.Connect != patch.Connect {
		t.Errorf("connect = %q, want %q", p.Connect, patch.Connect)
	}
	if p.Status != models.StatusNew {
		t.Errorf("status after update = %q, want %q", p.Status, models.StatusNew)
	}
	// Seasonal ratings are replaced wholesale: summer/autumn were set
	// before and the patch omitted them.
	if p.Level.Summer != nil || p.Level.Autumn != nil {
		t.Error("omitted seasonal ratings should be cleared by the patch")
	}
	if p.Level.Winter == nil || *p.Level.Winter != "2A" {
		t.Errorf("winter = %v, want 2A", p.Level.Winter)
	}
}

func TestUpdateRefusedAfterModeration(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()

	id, err := svc.Submit(ctx, validRequest())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	outcome, err := svc.Moderate(ctx, id, models.StatusAccepted)
	if err != nil || outcome != models.UpdateApplied {
		t.Fatalf("Moderate = (%v, %v), want applied", outcome, err)
	}

	before, _ := svc.Get(ctx, id)

	patch := &models.PerevalPatch{Title: "should not land"}
	outcome, err = svc.Update(ctx, id, patch)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if outcome != models.UpdateRefused {
		t.Fatalf("outcome = %v, want refused", outcome)
	}

	after, _ := svc.Get(ctx, id)
	if after.Title != before.Title {
		t.Errorf("title changed on a refused update: %q -> %q", before.Title, after.Title)
	}
	if after.Status != models.StatusAccepted {
		t.Errorf("status = %q, want %q", after.Status, models.StatusAccepted)
	}
}

func TestModerateOutcomes(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()

	id, err := svc.Submit(ctx, validRequest())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if _, err := svc.Moderate(ctx, id, "banana"); err == nil {
		t.Error("expected validation error for an unknown status")
	}

	outcome, err := svc.Moderate(ctx, 424242, models.StatusRejected)
	if err != nil || outcome != models.UpdateNotFound {
		t.Errorf("Moderate on unknown id = (%v, %v), want not found", outcome, err)
	}

	if outcome, _ = svc.Moderate(ctx, id, models.StatusRejected); outcome != models.UpdateApplied {
		t.Fatalf("outcome = %v, want applied", outcome)
	}
	// Terminal state: a second transition is refused.
	if outcome, _ = svc.Moderate(ctx, id, models.StatusAccepted); outcome != models.UpdateRefused {
		t.Errorf("second transition outcome = %v, want refused", outcome)
	}
}

func TestGetAndUpdateNotFound(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()

	p, err := svc.Get(ctx, 9999999)
	if err != nil {
		t.Fatalf("Get returned an error for an unknown id: %v", err)
	}
	if p != nil {
		t.Error("Get should return nil for an unknown id")
	}

	outcome, err := svc.Update(ctx, 9999999, &models.PerevalPatch{Title: "x"})
	if err != nil {
		t.Fatalf("Update returned an error for an unknown id: %v", err)
	}
	if outcome != models.UpdateNotFound {
		t.Errorf("outcome = %v, want not found", outcome)
	}
}

func TestListByEmail(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()

	empty, err := svc.ListByEmail(ctx, "nobody@example.com")
	if err != nil {
		t.Fatalf("ListByEmail failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected empty list, got %d records", len(empty))
	}

	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := svc.Submit(ctx, validRequest())
		if err != nil {
			t.Fatalf("Submit %d failed: %v", i, err)
		}
		ids = append(ids, id)
	}

	listed, err := svc.ListByEmail(ctx, "qwerty@mail.ru")
	if err != nil {
		t.Fatalf("ListByEmail failed: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("expected 3 records, got %d", len(listed))
	}
	for i, p := range listed {
		if p.ID != ids[i] {
			t.Errorf("record %d id = %d, want %d", i, p.ID, ids[i])
		}
		got, _ := svc.Get(ctx, p.ID)
		if got.Title != p.Title || got.User.Email != p.User.Email || len(got.Images) != len(p.Images) {
			t.Errorf("listed record %d differs from Get result", p.ID)
		}
	}

	if _, err := svc.ListByEmail(ctx, ""); err == nil {
		t.Error("expected validation error for an empty email")
	}
}
