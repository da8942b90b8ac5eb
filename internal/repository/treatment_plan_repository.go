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

const planColumns = `id, patient_user_id, therapist_user_id, disorder_name, plan_text,
	duration_weeks, status, created_at, updated_at`

// PlanRepo persists treatment plans.
type PlanRepo struct{ db *sql.DB }

func NewPlanRepo(db *sql.DB) *PlanRepo { return &PlanRepo{db: db} }

func scanPlan(s rowScanner) (*model.TreatmentPlan, error) {
	var (
		p      model.TreatmentPlan
		status string
	)
	err := s.Scan(&p.ID, &p.PatientUserID, &p.TherapistUserID, &p.DisorderName, &p.PlanText,
		&p.DurationWeeks, &status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Status = model.PlanStatus(status)
	return &p, nil
}

// Create inserts p only if its disorder exists. The existence check and the
// insert are a single statement, so a concurrent disorder delete either
// happens first (not found) or after (orphaned label).
func (r *PlanRepo) Create(ctx context.Context, p *model.TreatmentPlan) error {
	res, err := r.db.ExecContext(ctx, `INSERT INTO treatment_plans
		(patient_user_id, therapist_user_id, disorder_name, plan_text, duration_weeks, status, created_at, updated_at)
		SELECT ?, ?, d.name, ?, ?, ?, ?, ? FROM disorders d WHERE d.name = ?`,
		p.PatientUserID, p.TherapistUserID, p.PlanText, p.DurationWeeks, string(p.Status),
		p.CreatedAt, p.UpdatedAt, p.DisorderName)
	if err != nil {
		if isMissingReference(err) {
			return apperr.NotFound("user referenced by treatment plan")
		}
		return fmt.Errorf("insert treatment plan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("treatment plan rows affected: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("disorder %q", p.DisorderName)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("treatment plan last insert id: %w", err)
	}
	p.ID = uint64(id)
	return nil
}

// GetByID fetches a plan by id.
func (r *PlanRepo) GetByID(ctx context.Context, id uint64) (*model.TreatmentPlan, error) {
	p, err := scanPlan(r.db.QueryRowContext(ctx,
		"SELECT "+planColumns+" FROM treatment_plans WHERE id=?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("treatment plan %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get treatment plan %d: %w", id, err)
	}
	return p, nil
}

// List returns plans matching f, newest first.
func (r *PlanRepo) List(ctx context.Context, f model.PlanFilter) ([]model.TreatmentPlan, error) {
	where := []string{}
	args := []any{}
	if f.PatientUserID != 0 {
		where = append(where, "patient_user_id = ?")
		args = append(args, f.PatientUserID)
	}
	if f.TherapistUserID != 0 {
		where = append(where, "therapist_user_id = ?")
		args = append(args, f.TherapistUserID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+planColumns+" FROM treatment_plans WHERE "+cond+" ORDER BY created_at DESC, id DESC", args...)
	if err != nil {
		return nil, fmt.Errorf("list treatment plans: %w", err)
	}
	defer rows.Close()

	out := []model.TreatmentPlan{}
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan treatment plan: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// Transition locks the plan row, runs fn and persists the new status.
func (r *PlanRepo) Transition(ctx context.Context, id uint64, fn func(p *model.TreatmentPlan) error) (*model.TreatmentPlan, error) {
	var out *model.TreatmentPlan
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		p, err := scanPlan(tx.QueryRowContext(ctx,
			"SELECT "+planColumns+" FROM treatment_plans WHERE id=? FOR UPDATE", id))
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("treatment plan %d", id)
		}
		if err != nil {
			return fmt.Errorf("lock treatment plan %d: %w", id, err)
		}
		if err := fn(p); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE treatment_plans SET status=?, updated_at=? WHERE id=?",
			string(p.Status), p.UpdatedAt, p.ID); err != nil {
			return fmt.Errorf("update treatment plan %d: %w", id, err)
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
