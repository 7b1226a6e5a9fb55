package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bmsc/comms/internal/core/domain"
	"github.com/bmsc/comms/internal/core/port"
)

// ContactRepository implements port.ContactRepository.
type ContactRepository struct {
	db *sql.DB
}

func NewContactRepository(d *DB) *ContactRepository {
	return &ContactRepository{db: d.db}
}

func (r *ContactRepository) Insert(ctx context.Context, c *domain.Contact) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO contacts (id, user_id, name, email, phone, avatar_url, status, last_seen, is_favorite, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.UserID.String(), c.Name, c.Email, c.Phone, c.AvatarURL,
		string(c.Status), c.LastSeen.UTC().Format(time.RFC3339), boolToInt(c.IsFavorite),
		c.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert contact: %w", err)
	}
	return nil
}

func (r *ContactRepository) List(ctx context.Context, exclude domain.UserID) ([]*domain.Contact, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, name, email, phone, avatar_url, status, last_seen, is_favorite, created_at
		FROM contacts WHERE user_id <> ? ORDER BY name`, exclude.String())
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var contacts []*domain.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func (r *ContactRepository) GetByUserID(ctx context.Context, userID domain.UserID) (*domain.Contact, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, email, phone, avatar_url, status, last_seen, is_favorite, created_at
		FROM contacts WHERE user_id = ?`, userID.String())
	c, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	return c, err
}

func (r *ContactRepository) SetFavorite(ctx context.Context, id domain.ContactID, favorite bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE contacts SET is_favorite = ? WHERE id = ?`, boolToInt(favorite), id.String())
	if err != nil {
		return fmt.Errorf("set favorite: %w", err)
	}
	return checkUpdated(res)
}

func (r *ContactRepository) UpdateStatus(ctx context.Context, userID domain.UserID, status domain.PresenceStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE contacts SET status = ?, last_seen = ? WHERE user_id = ?`,
		string(status), time.Now().UTC().Format(time.RFC3339), userID.String())
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return checkUpdated(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (*domain.Contact, error) {
	var (
		c                   domain.Contact
		id, userID, status  string
		lastSeen, createdAt string
		favorite            int
	)
	err := row.Scan(&id, &userID, &c.Name, &c.Email, &c.Phone, &c.AvatarURL,
		&status, &lastSeen, &favorite, &createdAt)
	if err != nil {
		return nil, err
	}
	c.ID = domain.ContactID(id)
	c.UserID = domain.UserID(userID)
	c.Status = domain.PresenceStatus(status)
	c.IsFavorite = favorite != 0
	if c.LastSeen, err = time.Parse(time.RFC3339, lastSeen); err != nil {
		return nil, fmt.Errorf("parse last_seen: %w", err)
	}
	if c.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &c, nil
}

func checkUpdated(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return port.ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ port.ContactRepository = (*ContactRepository)(nil)
