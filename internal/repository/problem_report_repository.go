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

const reportColumns = "id, reporter_user_id, title, description, category, status, created_at, updated_at"

// ReportRepo persists problem reports.
type ReportRepo struct{ db *sql.DB }

func NewReportRepo(db *sql.DB) *ReportRepo { return &ReportRepo{db: db} }

func scanReport(s rowScanner) (*model.ProblemReport, error) {
	var (
		p        model.ProblemReport
		category string
		status   string
	)
	if err := s.Scan(&p.ID, &p.ReporterUserID, &p.Title, &p.Description, &category, &status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Category = model.ReportCategory(category)
	p.Status = model.ReportStatus(status)
	return &p, nil
}

func (r *ReportRepo) Create(ctx context.Context, p *model.ProblemReport) error {
	res, err := r.db.ExecContext(ctx, `INSERT INTO problem_reports
		(reporter_user_id, title, description, category, status, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?)`,
		p.ReporterUserID, p.Title, p.Description, string(p.Category), string(p.Status), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isMissingReference(err) {
			return apperr.NotFound("user %d", p.ReporterUserID)
		}
		return fmt.Errorf("insert problem report: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("problem report last insert id: %w", err)
	}
	p.ID = uint64(id)
	return nil
}

func (r *ReportRepo) GetByID(ctx context.Context, id uint64) (*model.ProblemReport, error) {
	p, err := scanReport(r.db.QueryRowContext(ctx,
		"SELECT "+reportColumns+" FROM problem_reports WHERE id=?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("problem report %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get problem report %d: %w", id, err)
	}
	return p, nil
}

// List returns one page of reports, newest first, and the total.
func (r *ReportRepo) List(ctx context.Context, f model.ReportFilter) ([]model.ProblemReport, int, error) {
	where := []string{}
	args := []any{}
	if f.ReporterUserID != 0 {
		where = append(where, "reporter_user_id = ?")
		args = append(args, f.ReporterUserID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, string(f.Category))
	}
	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM problem_reports WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count problem reports: %w", err)
	}
	skip, limit := page(f.Skip, f.Limit)
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+reportColumns+" FROM problem_reports WHERE "+cond+
			" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		append(args, limit, skip)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list problem reports: %w", err)
	}
	defer rows.Close()

	out := make([]model.ProblemReport, 0, limit)
	for rows.Next() {
		p, err := scanReport(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan problem report: %w", err)
		}
		out = append(out, *p)
	}
	return out, total, rows.Err()
}

// Transition locks the report row, runs fn and persists the new status.
func (r *ReportRepo) Transition(ctx context.Context, id uint64, fn func(p *model.ProblemReport) error) (*model.ProblemReport, error) {
	var out *model.ProblemReport
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		p, err := scanReport(tx.QueryRowContext(ctx,
			"SELECT "+reportColumns+" FROM problem_reports WHERE id=? FOR UPDATE", id))
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("problem report %d", id)
		}
		if err != nil {
			return fmt.Errorf("lock problem report %d: %w", id, err)
		}
		if err := fn(p); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE problem_reports SET status=?, updated_at=? WHERE id=?",
			string(p.Status), p.UpdatedAt, p.ID); err != nil {
			return fmt.Errorf("update problem report %d: %w", id, err)
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
