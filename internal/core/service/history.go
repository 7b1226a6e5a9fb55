package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bmsc/comms/internal/core/domain"
)

const historyListLimit = 20

// CallHistoryService is the audit trail for finished calls, outside the
// signaling path.
type CallHistoryService struct {
	services *Services
	retry    RetryPolicy
}

func NewCallHistoryService(services *Services, retry RetryPolicy) *CallHistoryService {
	return &CallHistoryService{services: services, retry: retry}
}

func (s *CallHistoryService) Record(ctx context.Context, caller, receiver domain.UserID, callType domain.CallType, duration int, status domain.CallOutcome) (*domain.CallHistoryRecord, error) {
	rec, err := domain.NewCallHistoryRecord(caller, receiver, callType, duration, status)
	if err != nil {
		return nil, err
	}
	err = s.retry.Do(ctx, func() error {
		repo, err := s.services.History()
		if err != nil {
			return err
		}
		return repo.Insert(ctx, rec)
	})
	if err != nil {
		return nil, fmt.Errorf("record call: %w", err)
	}
	return rec, nil
}

// ListByUser returns the user's recent calls, newest first, as caller or
// receiver, with contact identities joined in.
func (s *CallHistoryService) ListByUser(ctx context.Context, userID domain.UserID) ([]*domain.CallHistoryRecord, error) {
	if userID == "" {
		return nil, errors.New("user id cannot be empty")
	}
	var recs []*domain.CallHistoryRecord
	err := s.retry.Do(ctx, func() error {
		repo, err := s.services.History()
		if err != nil {
			return err
		}
		recs, err = repo.ListByUser(ctx, userID, historyListLimit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list call history: %w", err)
	}
	return recs, nil
}
