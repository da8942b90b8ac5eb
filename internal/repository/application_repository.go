package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/mindwell/internal/apperr"
	"github.com/iliyamo/mindwell/internal/model"
)

const applicationColumns = `id, applicant_user_id, full_name, email, specialty, license_number,
	certification, experience_years, document_reference, status, promoted_role, created_at, updated_at`

// ApplicationRepo persists therapist applications. Every write path locks
// the applicant's user row first and the application row second, so a
// submission and a review of the same applicant never deadlock.
type ApplicationRepo struct{ db *sql.DB }

func NewApplicationRepo(db *sql.DB) *ApplicationRepo { return &ApplicationRepo{db: db} }

func scanApplication(s rowScanner) (*model.TherapistApplication, error) {
	var (
		a        model.TherapistApplication
		status   string
		promoted string
	)
	err := s.Scan(&a.ID, &a.ApplicantUserID, &a.FullName, &a.Email, &a.Specialty, &a.LicenseNumber,
		&a.Certification, &a.ExperienceYears, &a.DocumentReference, &status, &promoted, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Status = model.ApplicationStatus(status)
	a.PromotedRole = model.Role(promoted)
	return &a, nil
}

// Submit locks the applicant and their current application (if any), asks
// fn what to store and inserts or updates accordingly.
func (r *ApplicationRepo) Submit(ctx context.Context, applicantID uint64, fn SubmitFunc) (*model.TherapistApplication, error) {
	var out *model.TherapistApplication
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		applicant, err := lockUserTx(ctx, tx, applicantID)
		if err != nil {
			return err
		}
		cur, err := scanApplication(tx.QueryRowContext(ctx,
			"SELECT "+applicationColumns+" FROM therapist_applications WHERE applicant_user_id=? FOR UPDATE",
			applicantID))
		if errors.Is(err, sql.ErrNoRows) {
			cur = nil
		} else if err != nil {
			return fmt.Errorf("lock application of user %d: %w", applicantID, err)
		}

		next, err := fn(cur, applicant)
		if err != nil {
			return err
		}
		if cur == nil {
			if err := insertApplicationTx(ctx, tx, next); err != nil {
				return err
			}
		} else {
			next.ID = cur.ID
			if err := updateApplicationTx(ctx, tx, next); err != nil {
				return err
			}
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func insertApplicationTx(ctx context.Context, tx *sql.Tx, a *model.TherapistApplication) error {
	res, err := tx.ExecContext(ctx, `INSERT INTO therapist_applications
		(applicant_user_id, full_name, email, specialty, license_number, certification,
		 experience_years, document_reference, status, promoted_role, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ApplicantUserID, a.FullName, a.Email, a.Specialty, a.LicenseNumber, a.Certification,
		a.ExperienceYears, a.DocumentReference, string(a.Status), string(a.PromotedRole), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if isDuplicate(err) {
			return apperr.Conflict("user %d already has an application", a.ApplicantUserID)
		}
		return fmt.Errorf("insert application: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("application last insert id: %w", err)
	}
	a.ID = uint64(id)
	return nil
}

func updateApplicationTx(ctx context.Context, tx *sql.Tx, a *model.TherapistApplication) error {
	_, err := tx.ExecContext(ctx, `UPDATE therapist_applications SET
		full_name=?, email=?, specialty=?, license_number=?, certification=?, experience_years=?,
		document_reference=?, status=?, promoted_role=?, updated_at=?
		WHERE id=?`,
		a.FullName, a.Email, a.Specialty, a.LicenseNumber, a.Certification, a.ExperienceYears,
		a.DocumentReference, string(a.Status), string(a.PromotedRole), a.UpdatedAt, a.ID)
	if err != nil {
		return fmt.Errorf("update application %d: %w", a.ID, err)
	}
	return nil
}

// GetByID fetches an application by id.
func (r *ApplicationRepo) GetByID(ctx context.Context, id uint64) (*model.TherapistApplication, error) {
	a, err := scanApplication(r.db.QueryRowContext(ctx,
		"SELECT "+applicationColumns+" FROM therapist_applications WHERE id=?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("therapist application %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get application %d: %w", id, err)
	}
	return a, nil
}

// GetByApplicant fetches the application owned by userID.
func (r *ApplicationRepo) GetByApplicant(ctx context.Context, userID uint64) (*model.TherapistApplication, error) {
	a, err := scanApplication(r.db.QueryRowContext(ctx,
		"SELECT "+applicationColumns+" FROM therapist_applications WHERE applicant_user_id=?", userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("therapist application for user %d", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("get application of user %d: %w", userID, err)
	}
	return a, nil
}

// List returns one page of applications, newest first, and the total.
func (r *ApplicationRepo) List(ctx context.Context, f model.ApplicationFilter) ([]model.TherapistApplication, int, error) {
	cond, args := "1=1", []any{}
	if f.Status != "" {
		cond, args = "status = ?", append(args, string(f.Status))
	}
	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM therapist_applications WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}
	skip, limit := page(f.Skip, f.Limit)
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+applicationColumns+" FROM therapist_applications WHERE "+cond+
			" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		append(args, limit, skip)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	out := make([]model.TherapistApplication, 0, limit)
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan application: %w", err)
		}
		out = append(out, *a)
	}
	return out, total, rows.Err()
}

// Transition locks the applicant and the application, runs fn and writes
// the application plus any change to the applicant's role in one commit.
func (r *ApplicationRepo) Transition(ctx context.Context, id uint64, fn ApplicationTransitionFunc) (*model.TherapistApplication, *model.User, error) {
	// applicant_user_id never changes, so it is safe to read before locking.
	var applicantID uint64
	err := r.db.QueryRowContext(ctx,
		"SELECT applicant_user_id FROM therapist_applications WHERE id=?", id).Scan(&applicantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, apperr.NotFound("therapist application %d", id)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("resolve applicant of application %d: %w", id, err)
	}

	var (
		outApp  *model.TherapistApplication
		outUser *model.User
	)
	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		applicant, err := lockUserTx(ctx, tx, applicantID)
		if err != nil {
			return err
		}
		app, err := scanApplication(tx.QueryRowContext(ctx,
			"SELECT "+applicationColumns+" FROM therapist_applications WHERE id=? FOR UPDATE", id))
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("therapist application %d", id)
		}
		if err != nil {
			return fmt.Errorf("lock application %d: %w", id, err)
		}

		roleBefore := applicant.Role
		if err := fn(app, applicant); err != nil {
			return err
		}
		if err := updateApplicationTx(ctx, tx, app); err != nil {
			return err
		}
		if applicant.Role != roleBefore {
			if err := updateUserTx(ctx, tx, applicant); err != nil {
				return err
			}
		}
		outApp, outUser = app, applicant
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return outApp, outUser, nil
}
