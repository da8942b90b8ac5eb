package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/mindwell/internal/apperr"
	"github.com/iliyamo/mindwell/internal/model"
)

const userColumns = "id,username,email,password_hash,role,is_active,created_at,last_login_at"

type UserRepo struct{ db *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (*model.User, error) {
	var (
		u       model.User
		role    string
		lastLog sql.NullTime
	)
	if err := s.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &u.IsActive, &u.CreatedAt, &lastLog); err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	if lastLog.Valid {
		t := lastLog.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}

// Create inserts u and sets its ID. Username and email are normalised;
// duplicates yield a conflict.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	u.Username = strings.TrimSpace(u.Username)
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO users (username, email, password_hash, role, is_active, created_at) VALUES (?,?,?,?,?,?)",
		u.Username, u.Email, u.PasswordHash, string(u.Role), u.IsActive, u.CreatedAt)
	if err != nil {
		if isDuplicate(err) {
			return apperr.Conflict("username or email already registered")
		}
		return fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("user last insert id: %w", err)
	}
	u.ID = uint64(id)
	return nil
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return u, nil
}

// GetByUsername fetches a user by exact username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE username=? LIMIT 1", strings.TrimSpace(username)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user %q", username)
	}
	if err != nil {
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return u, nil
}

// List returns one page of users matching f plus the total match count.
func (r *UserRepo) List(ctx context.Context, f model.UserFilter) ([]model.User, int, error) {
	where := []string{}
	args := []any{}
	if s := strings.TrimSpace(f.Search); s != "" {
		where = append(where, "(username LIKE ? OR email LIKE ?)")
		args = append(args, "%"+s+"%", "%"+s+"%")
	}
	if f.Role != "" {
		where = append(where, "role = ?")
		args = append(args, string(f.Role))
	}
	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	skip, limit := page(f.Skip, f.Limit)
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE "+cond+" ORDER BY id ASC LIMIT ? OFFSET ?",
		append(args, limit, skip)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	out := make([]model.User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// lockUserTx reads a user row with an exclusive lock held until tx ends.
func lockUserTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.User, error) {
	u, err := scanUser(tx.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? FOR UPDATE", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("lock user %d: %w", id, err)
	}
	return u, nil
}

// updateUserTx persists the mutable columns of u.
func updateUserTx(ctx context.Context, tx *sql.Tx, u *model.User) error {
	if _, err := tx.ExecContext(ctx,
		"UPDATE users SET role=?, is_active=? WHERE id=?",
		string(u.Role), u.IsActive, u.ID); err != nil {
		return fmt.Errorf("update user %d: %w", u.ID, err)
	}
	return nil
}

// Update locks the user row, applies fn and writes role/is_active back.
// Nothing is written when fn fails. A role change also clears the
// promotion marker on the user's application in the same transaction.
func (r *UserRepo) Update(ctx context.Context, id uint64, fn func(u *model.User) error) (*model.User, error) {
	var out *model.User
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		u, err := lockUserTx(ctx, tx, id)
		if err != nil {
			return err
		}
		roleBefore := u.Role
		if err := fn(u); err != nil {
			return err
		}
		if err := updateUserTx(ctx, tx, u); err != nil {
			return err
		}
		if u.Role != roleBefore {
			if _, err := tx.ExecContext(ctx,
				"UPDATE therapist_applications SET promoted_role='' WHERE applicant_user_id=?", id); err != nil {
				return fmt.Errorf("clear promotion of user %d: %w", id, err)
			}
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TouchLogin records a successful login.
func (r *UserRepo) TouchLogin(ctx context.Context, id uint64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, "UPDATE users SET last_login_at=? WHERE id=?", at.UTC(), id)
	if err != nil {
		return fmt.Errorf("touch login %d: %w", id, err)
	}
	return nil
}
