package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bmsc/comms/internal/core/domain"
	"github.com/bmsc/comms/internal/core/port"
)

var _ port.CallHistoryRepository = (*CallHistoryRepository)(nil)

// CallHistoryRepository implements port.CallHistoryRepository.
type CallHistoryRepository struct {
	db *sql.DB
}

func NewCallHistoryRepository(d *DB) *CallHistoryRepository {
	return &CallHistoryRepository{db: d.db}
}

func (r *CallHistoryRepository) Insert(ctx context.Context, rec *domain.CallHistoryRecord) error {
	var endedAt any
	if rec.EndedAt != nil {
		endedAt = rec.EndedAt.UTC().Format(time.RFC3339)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO call_history (id, caller_id, receiver_id, call_type, duration, status, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CallerID.String(), rec.ReceiverID.String(), string(rec.CallType),
		rec.Duration, string(rec.Status), rec.StartedAt.UTC().Format(time.RFC3339), endedAt)
	if err != nil {
		return fmt.Errorf("insert call history: %w", err)
	}
	return nil
}

// ListByUser joins caller and receiver identities from the contacts table;
// unknown ids simply have no identity attached.
func (r *CallHistoryRepository) ListByUser(ctx context.Context, userID domain.UserID, limit int) ([]*domain.CallHistoryRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ch.id, ch.caller_id, ch.receiver_id, ch.call_type, ch.duration, ch.status,
		       ch.started_at, ch.ended_at,
		       cc.id, cc.name, cc.avatar_url,
		       rc.id, rc.name, rc.avatar_url
		FROM call_history ch
		LEFT JOIN contacts cc ON cc.user_id = ch.caller_id
		LEFT JOIN contacts rc ON rc.user_id = ch.receiver_id
		WHERE ch.caller_id = ? OR ch.receiver_id = ?
		ORDER BY ch.started_at DESC
		LIMIT ?`, userID.String(), userID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("list call history: %w", err)
	}
	defer rows.Close()

	var recs []*domain.CallHistoryRecord
	for rows.Next() {
		var (
			rec                 domain.CallHistoryRecord
			caller, receiver    string
			callType, status    string
			startedAt           string
			endedAt             sql.NullString
			cID, cName, cAvatar sql.NullString
			rID, rName, rAvatar sql.NullString
		)
		if err := rows.Scan(&rec.ID, &caller, &receiver, &callType, &rec.Duration, &status,
			&startedAt, &endedAt, &cID, &cName, &cAvatar, &rID, &rName, &rAvatar); err != nil {
			return nil, err
		}
		rec.CallerID = domain.UserID(caller)
		rec.ReceiverID = domain.UserID(receiver)
		rec.CallType = domain.CallType(callType)
		rec.Status = domain.CallOutcome(status)
		if rec.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if endedAt.Valid {
			t, err := time.Parse(time.RFC3339, endedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse ended_at: %w", err)
			}
			rec.EndedAt = &t
		}
		if cID.Valid {
			rec.Caller = &domain.Participant{ID: cID.String, Name: cName.String, AvatarURL: cAvatar.String}
		}
		if rID.Valid {
			rec.Receiver = &domain.Participant{ID: rID.String, Name: rName.String, AvatarURL: rAvatar.String}
		}
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}
