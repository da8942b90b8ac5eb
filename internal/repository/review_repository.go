package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/mindwell/internal/apperr"
	"github.com/iliyamo/mindwell/internal/model"
)

const reviewColumns = "id, therapist_user_id, patient_user_id, title, content, disorder_name, specialty, created_at"

// ReviewRepo persists reviews. There is no update or delete path.
type ReviewRepo struct{ db *sql.DB }

func NewReviewRepo(db *sql.DB) *ReviewRepo { return &ReviewRepo{db: db} }

func scanReview(s rowScanner) (*model.Review, error) {
	var v model.Review
	if err := s.Scan(&v.ID, &v.TherapistUserID, &v.PatientUserID, &v.Title, &v.Content, &v.DisorderName, &v.Specialty, &v.CreatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *ReviewRepo) Create(ctx context.Context, v *model.Review) error {
	res, err := r.db.ExecContext(ctx, `INSERT INTO reviews
		(therapist_user_id, patient_user_id, title, content, disorder_name, specialty, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		v.TherapistUserID, v.PatientUserID, v.Title, v.Content, v.DisorderName, v.Specialty, v.CreatedAt)
	if err != nil {
		if isMissingReference(err) {
			return apperr.NotFound("user referenced by review")
		}
		return fmt.Errorf("insert review: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("review last insert id: %w", err)
	}
	v.ID = uint64(id)
	return nil
}

func (r *ReviewRepo) GetByID(ctx context.Context, id uint64) (*model.Review, error) {
	v, err := scanReview(r.db.QueryRowContext(ctx, "SELECT "+reviewColumns+" FROM reviews WHERE id=?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("review %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get review %d: %w", id, err)
	}
	return v, nil
}

func (r *ReviewRepo) List(ctx context.Context, f model.ReviewFilter) ([]model.Review, error) {
	where := []string{}
	args := []any{}
	if f.DisorderName != "" {
		where = append(where, "disorder_name = ?")
		args = append(args, f.DisorderName)
	}
	if f.PatientUserID != 0 {
		where = append(where, "patient_user_id = ?")
		args = append(args, f.PatientUserID)
	}
	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+reviewColumns+" FROM reviews WHERE "+cond+" ORDER BY created_at DESC, id DESC", args...)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	out := []model.Review{}
	for rows.Next() {
		v, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}
