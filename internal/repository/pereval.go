package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"pereval-backend/internal/models"
	"pereval-backend/internal/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PerevalRepository is the pgx-backed SubmissionStore. Image bytes go to
// the injected blob store from inside the database transaction, so a
// failed blob write aborts the whole create.
type PerevalRepository struct {
	db     *pgxpool.Pool
	images storage.ImageStore
}

// NewPerevalRepository creates a new pereval repository.
func NewPerevalRepository(db *pgxpool.Pool, images storage.ImageStore) *PerevalRepository {
	return &PerevalRepository{db: db, images: images}
}

const perevalColumns = `
	p.id, p.date_added, p.beauty_title, p.title, p.other_titles, p.connect, p.add_time,
	p.winter, p.summer, p.autumn, p.spring, p.status,
	u.id, u.email, u.fam, u.name, u.otc, u.phone,
	c.id, c.latitude, c.longitude, c.height`

const perevalJoins = `
	FROM pereval_added p
	JOIN users u ON u.id = p.user_id
	JOIN coords c ON c.id = p.coord_id`

// Create persists the submission in one transaction. A pre-existing user
// row for the same email is reused; everything else is inserted fresh.
func (r *PerevalRepository) Create(ctx context.Context, sub *models.Submission) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	userID, err := getOrCreateUser(ctx, tx, &sub.User)
	if err != nil {
		return 0, err
	}

	var coordID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO coords (latitude, longitude, height)
		VALUES ($1, $2, $3)
		RETURNING id
	`, sub.Coords.Latitude, sub.Coords.Longitude, sub.Coords.Height).Scan(&coordID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert coords: %w", err)
	}

	now := time.Now().UTC()

	var perevalID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO pereval_added
			(date_added, beauty_title, title, other_titles, connect, add_time,
			 user_id, coord_id, winter, summer, autumn, spring, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`, now, sub.BeautyTitle, sub.Title, sub.OtherTitles, sub.Connect, sub.AddTime,
		userID, coordID,
		sub.Level.Winter, sub.Level.Summer, sub.Level.Autumn, sub.Level.Spring,
		models.StatusNew).Scan(&perevalID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert pereval: %w", err)
	}

	for _, img := range sub.Images {
		// An orphaned object left in the bucket by a later rollback is
		// harmless; no database row will reference it.
		path, err := r.images.Save(ctx, objectKey(img.Data), img.Data)
		if err != nil {
			return 0, fmt.Errorf("failed to store image %q: %w", img.Title, err)
		}

		var imageID int64
		err = tx.QueryRow(ctx, `
			INSERT INTO pereval_images (date_added, img, title)
			VALUES ($1, $2, $3)
			RETURNING id
		`, now, path, img.Title).Scan(&imageID)
		if err != nil {
			return 0, fmt.Errorf("failed to insert image %q: %w", img.Title, err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO pereval_images_added (pereval_id, image_id)
			VALUES ($1, $2)
		`, perevalID, imageID)
		if err != nil {
			return 0, fmt.Errorf("failed to link image %q: %w", img.Title, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit submission: %w", err)
	}

	return perevalID, nil
}

// Update replaces the editable fields of a record still in status "new".
// The patch is applied wholesale: absent seasonal ratings and add_time
// overwrite the stored values with NULL.
func (r *PerevalRepository) Update(ctx context.Context, id int64, patch *models.PerevalPatch) (models.UpdateOutcome, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	outcome, err := lockStatus(ctx, tx, id)
	if err != nil || outcome != models.UpdateApplied {
		return outcome, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE pereval_added
		SET beauty_title = $1, title = $2, other_titles = $3, connect = $4,
		    add_time = $5, winter = $6, summer = $7, autumn = $8, spring = $9
		WHERE id = $10
	`, patch.BeautyTitle, patch.Title, patch.OtherTitles, patch.Connect,
		patch.AddTime,
		patch.Level.Winter, patch.Level.Summer, patch.Level.Autumn, patch.Level.Spring,
		id)
	if err != nil {
		return 0, fmt.Errorf("failed to update pereval %d: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit update: %w", err)
	}

	return models.UpdateApplied, nil
}

// SetStatus performs the moderation transition new -> accepted|rejected.
func (r *PerevalRepository) SetStatus(ctx context.Context, id int64, status string) (models.UpdateOutcome, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	outcome, err := lockStatus(ctx, tx, id)
	if err != nil || outcome != models.UpdateApplied {
		return outcome, err
	}

	_, err = tx.Exec(ctx, `UPDATE pereval_added SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return 0, fmt.Errorf("failed to set status of pereval %d: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit status change: %w", err)
	}

	return models.UpdateApplied, nil
}

// GetByID returns a hydrated record, or (nil, nil) when the id is unknown.
func (r *PerevalRepository) GetByID(ctx context.Context, id int64) (*models.Pereval, error) {
	row := r.db.QueryRow(ctx, `SELECT`+perevalColumns+perevalJoins+` WHERE p.id = $1`, id)

	p, err := scanPereval(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pereval %d: %w", id, err)
	}

	if err := r.loadImages(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ListByUserEmail returns every record submitted under the given email.
func (r *PerevalRepository) ListByUserEmail(ctx context.Context, email string) ([]*models.Pereval, error) {
	rows, err := r.db.Query(ctx, `SELECT`+perevalColumns+perevalJoins+` WHERE u.email = $1 ORDER BY p.id`, email)
	if err != nil {
		return nil, fmt.Errorf("failed to list perevals for %s: %w", email, err)
	}
	defer rows.Close()

	perevals := []*models.Pereval{}
	for rows.Next() {
		p, err := scanPereval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pereval: %w", err)
		}
		perevals = append(perevals, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating perevals: %w", err)
	}

	for _, p := range perevals {
		if err := r.loadImages(ctx, p); err != nil {
			return nil, err
		}
	}
	return perevals, nil
}

// getOrCreateUser resolves the submitting user by email inside the
// transaction, inserting a new row only on miss.
func getOrCreateUser(ctx context.Context, tx pgx.Tx, user *models.User) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, user.Email).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up user %s: %w", user.Email, err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO users (email, fam, name, otc, phone)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, user.Email, user.Fam, user.Name, user.Otc, user.Phone).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create user %s: %w", user.Email, err)
	}
	return id, nil
}

// lockStatus reads the record's status under FOR UPDATE and decides
// whether a gated write may proceed. UpdateApplied here means "go ahead".
func lockStatus(ctx context.Context, tx pgx.Tx, id int64) (models.UpdateOutcome, error) {
	var status string
	err := tx.QueryRow(ctx, `SELECT status FROM pereval_added WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.UpdateNotFound, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read status of pereval %d: %w", id, err)
	}
	if status != models.StatusNew {
		return models.UpdateRefused, nil
	}
	return models.UpdateApplied, nil
}

// scanPereval maps one joined row onto the entity. All row access goes
// through here so the column order lives in exactly one place next to
// perevalColumns.
func scanPereval(row pgx.Row) (*models.Pereval, error) {
	var p models.Pereval
	err := row.Scan(
		&p.ID, &p.DateAdded, &p.BeautyTitle, &p.Title, &p.OtherTitles, &p.Connect, &p.AddTime,
		&p.Level.Winter, &p.Level.Summer, &p.Level.Autumn, &p.Level.Spring, &p.Status,
		&p.User.ID, &p.User.Email, &p.User.Fam, &p.User.Name, &p.User.Otc, &p.User.Phone,
		&p.Coords.ID, &p.Coords.Latitude, &p.Coords.Longitude, &p.Coords.Height,
	)
	if err != nil {
		return nil, err
	}
	p.Images = []models.Image{}
	return &p, nil
}

func (r *PerevalRepository) loadImages(ctx context.Context, p *models.Pereval) error {
	rows, err := r.db.Query(ctx, `
		SELECT i.id, i.date_added, i.img, i.title
		FROM pereval_images i
		JOIN pereval_images_added pia ON pia.image_id = i.id
		WHERE pia.pereval_id = $1
		ORDER BY i.id
	`, p.ID)
	if err != nil {
		return fmt.Errorf("failed to get images of pereval %d: %w", p.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var img models.Image
		if err := rows.Scan(&img.ID, &img.DateAdded, &img.Path, &img.Title); err != nil {
			return fmt.Errorf("failed to scan image: %w", err)
		}
		p.Images = append(p.Images, img)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating images: %w", err)
	}
	return nil
}

// objectKey builds a fresh blob key. The extension follows the sniffed
// content type rather than assuming jpeg.
func objectKey(data []byte) string {
	var ext string
	switch http.DetectContentType(data) {
	case "image/jpeg":
		ext = ".jpg"
	case "image/png":
		ext = ".png"
	case "image/gif":
		ext = ".gif"
	default:
		ext = ".bin"
	}
	return fmt.Sprintf("pereval/%s%s", uuid.New().String(), ext)
}
