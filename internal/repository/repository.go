package repository

import (
	"context"

	"pereval-backend/internal/models"
)

// SubmissionStore is the transactional persistence layer for pass
// submissions. Create and the status-gated writes each run as a single
// atomic unit: either every row lands or none do.
type SubmissionStore interface {
	// Create persists a submission (user get-or-create, coords, pereval
	// record, images) and returns the new pereval id.
	Create(ctx context.Context, sub *models.Submission) (int64, error)

	// Update applies a patch to a record that is still in status "new".
	// The returned outcome distinguishes not-found, refused (already
	// moderated) and applied.
	Update(ctx context.Context, id int64, patch *models.PerevalPatch) (models.UpdateOutcome, error)

	// SetStatus moves a record out of status "new" to accepted or
	// rejected. Same outcome semantics as Update.
	SetStatus(ctx context.Context, id int64, status string) (models.UpdateOutcome, error)

	// GetByID returns a fully hydrated record, or (nil, nil) when no
	// record has that id.
	GetByID(ctx context.Context, id int64) (*models.Pereval, error)

	// ListByUserEmail returns every record submitted under the given
	// email, each fully hydrated. Unknown email yields an empty slice.
	ListByUserEmail(ctx context.Context, email string) ([]*models.Pereval, error)
}
