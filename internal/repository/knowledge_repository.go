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

// KnowledgeRepo stores the disorder/symptom graph in three tables:
// disorders, symptoms and the disorder_symptoms link table.
type KnowledgeRepo struct{ db *sql.DB }

func NewKnowledgeRepo(db *sql.DB) *KnowledgeRepo { return &KnowledgeRepo{db: db} }

func (r *KnowledgeRepo) AddDisorder(ctx context.Context, name string) error {
	if _, err := r.db.ExecContext(ctx, "INSERT INTO disorders (name) VALUES (?)", name); err != nil {
		if isDuplicate(err) {
			return apperr.Conflict("disorder %q already exists", name)
		}
		return fmt.Errorf("insert disorder: %w", err)
	}
	return nil
}

func (r *KnowledgeRepo) AddSymptom(ctx context.Context, name string) error {
	if _, err := r.db.ExecContext(ctx, "INSERT INTO symptoms (name) VALUES (?)", name); err != nil {
		if isDuplicate(err) {
			return apperr.Conflict("symptom %q already exists", name)
		}
		return fmt.Errorf("insert symptom: %w", err)
	}
	return nil
}

// shareLockNode checks that a node exists and keeps it from being deleted
// until tx ends.
func shareLockNode(ctx context.Context, tx *sql.Tx, table, kind, name string) error {
	var got string
	err := tx.QueryRowContext(ctx,
		"SELECT name FROM "+table+" WHERE name=? LOCK IN SHARE MODE", name).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("%s %q", kind, name)
	}
	if err != nil {
		return fmt.Errorf("lock %s %q: %w", kind, name, err)
	}
	return nil
}

// Link connects an existing disorder and symptom.
func (r *KnowledgeRepo) Link(ctx context.Context, disorder, symptom string) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := shareLockNode(ctx, tx, "disorders", "disorder", disorder); err != nil {
			return err
		}
		if err := shareLockNode(ctx, tx, "symptoms", "symptom", symptom); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO disorder_symptoms (disorder_name, symptom_name) VALUES (?,?)", disorder, symptom)
		if err != nil {
			if isDuplicate(err) {
				return apperr.Conflict("%q is already linked to %q", symptom, disorder)
			}
			return fmt.Errorf("insert link: %w", err)
		}
		return nil
	})
}

func (r *KnowledgeRepo) Unlink(ctx context.Context, disorder, symptom string) error {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM disorder_symptoms WHERE disorder_name=? AND symptom_name=?", disorder, symptom)
	if err != nil {
		return fmt.Errorf("delete link: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete link rows affected: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("link %q -> %q", disorder, symptom)
	}
	return nil
}

// DeleteDisorder removes the disorder and all of its links in one
// transaction.
func (r *KnowledgeRepo) DeleteDisorder(ctx context.Context, name string, restrict bool) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var got string
		err := tx.QueryRowContext(ctx, "SELECT name FROM disorders WHERE name=? FOR UPDATE", name).Scan(&got)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("disorder %q", name)
		}
		if err != nil {
			return fmt.Errorf("lock disorder %q: %w", name, err)
		}
		if restrict {
			var referenced bool
			err := tx.QueryRowContext(ctx, `SELECT
				EXISTS(SELECT 1 FROM treatment_plans WHERE disorder_name=?) OR
				EXISTS(SELECT 1 FROM reviews WHERE disorder_name=?)`, name, name).Scan(&referenced)
			if err != nil {
				return fmt.Errorf("check disorder references: %w", err)
			}
			if referenced {
				return apperr.Conflict("disorder %q is referenced by treatment plans or reviews", name)
			}
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM disorder_symptoms WHERE disorder_name=?", name); err != nil {
			return fmt.Errorf("delete links of disorder %q: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM disorders WHERE name=?", name); err != nil {
			return fmt.Errorf("delete disorder %q: %w", name, err)
		}
		return nil
	})
}

// DeleteSymptom removes the symptom and all of its links in one transaction.
func (r *KnowledgeRepo) DeleteSymptom(ctx context.Context, name string) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM disorder_symptoms WHERE symptom_name=?", name); err != nil {
			return fmt.Errorf("delete links of symptom %q: %w", name, err)
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM symptoms WHERE name=?", name)
		if err != nil {
			return fmt.Errorf("delete symptom %q: %w", name, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete symptom rows affected: %w", err)
		}
		if n == 0 {
			return apperr.NotFound("symptom %q", name)
		}
		return nil
	})
}

func (r *KnowledgeRepo) DisorderExists(ctx context.Context, name string) (bool, error) {
	var ok bool
	if err := r.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM disorders WHERE name=?)", name).Scan(&ok); err != nil {
		return false, fmt.Errorf("disorder exists: %w", err)
	}
	return ok, nil
}

func (r *KnowledgeRepo) ListDisorders(ctx context.Context) ([]model.Disorder, error) {
	names, err := r.names(ctx, "SELECT name FROM disorders ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list disorders: %w", err)
	}
	out := make([]model.Disorder, 0, len(names))
	for _, n := range names {
		out = append(out, model.Disorder{Name: n})
	}
	return out, nil
}

func (r *KnowledgeRepo) ListSymptoms(ctx context.Context, disorder string) ([]model.Symptom, error) {
	var (
		names []string
		err   error
	)
	if disorder == "" {
		names, err = r.names(ctx, "SELECT name FROM symptoms ORDER BY name")
	} else {
		names, err = r.names(ctx,
			"SELECT symptom_name FROM disorder_symptoms WHERE disorder_name=? ORDER BY symptom_name", disorder)
	}
	if err != nil {
		return nil, fmt.Errorf("list symptoms: %w", err)
	}
	out := make([]model.Symptom, 0, len(names))
	for _, n := range names {
		out = append(out, model.Symptom{Name: n})
	}
	return out, nil
}

// LinksForSymptoms returns every link touching one of the given symptoms.
func (r *KnowledgeRepo) LinksForSymptoms(ctx context.Context, symptoms []string) ([]model.DisorderSymptomLink, error) {
	if len(symptoms) == 0 {
		return []model.DisorderSymptomLink{}, nil
	}
	args := make([]any, len(symptoms))
	for i, s := range symptoms {
		args[i] = s
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(symptoms)), ",")
	rows, err := r.db.QueryContext(ctx,
		"SELECT disorder_name, symptom_name FROM disorder_symptoms WHERE symptom_name IN ("+placeholders+
			") ORDER BY disorder_name, symptom_name", args...)
	if err != nil {
		return nil, fmt.Errorf("links for symptoms: %w", err)
	}
	defer rows.Close()

	out := []model.DisorderSymptomLink{}
	for rows.Next() {
		var l model.DisorderSymptomLink
		if err := rows.Scan(&l.Disorder, &l.Symptom); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *KnowledgeRepo) names(ctx context.Context, q string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
