package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/bmsc/comms/internal/core/domain"
	"github.com/bmsc/comms/internal/core/port"
	"github.com/rs/zerolog/log"
)

// ChatID pairs two users into a stable conversation identifier, independent
// of who opened the window.
func ChatID(a, b domain.UserID) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("%s_%s", a, b)
}

func chatMessagesPrefix(chatID string) string {
	return "chats/" + chatID + "/messages/"
}

// ChatService stores and streams chat messages through the signal store.
type ChatService struct {
	services *Services
	retry    RetryPolicy
}

func NewChatService(services *Services, retry RetryPolicy) *ChatService {
	return &ChatService{services: services, retry: retry}
}

func (s *ChatService) Send(ctx context.Context, chatID string, senderID domain.UserID, text string) (*domain.Message, error) {
	msg, err := domain.NewMessage(senderID, chatID, text)
	if err != nil {
		return nil, err
	}
	doc, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}

	err = s.retry.Do(ctx, func() error {
		store, err := s.services.Signals()
		if err != nil {
			return err
		}
		return store.Put(ctx, chatMessagesPrefix(chatID)+msg.ID.String(), doc)
	})
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return msg, nil
}

// History returns the conversation's messages ordered by timestamp.
func (s *ChatService) History(ctx context.Context, chatID string) ([]*domain.Message, error) {
	var docs map[string][]byte
	err := s.retry.Do(ctx, func() error {
		store, err := s.services.Signals()
		if err != nil {
			return err
		}
		docs, err = store.List(ctx, chatMessagesPrefix(chatID))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	msgs := make([]*domain.Message, 0, len(docs))
	for path, doc := range docs {
		var m domain.Message
		if err := json.Unmarshal(doc, &m); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Skipping malformed message")
			continue
		}
		msgs = append(msgs, &m)
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Timestamp.Before(msgs[j].Timestamp) })
	return msgs, nil
}

// Watch streams new messages for a conversation until the returned cancel
// is called. The callback runs on the store's delivery goroutine.
func (s *ChatService) Watch(ctx context.Context, chatID string, fn func(*domain.Message)) (port.CancelFunc, error) {
	store, err := s.services.Signals()
	if err != nil {
		return nil, err
	}
	return store.WatchPrefix(ctx, chatMessagesPrefix(chatID), func(ev port.WatchEvent) {
		if ev.Op != port.OpPut {
			return
		}
		var m domain.Message
		if err := json.Unmarshal(ev.Doc, &m); err != nil {
			log.Warn().Err(err).Str("path", ev.Path).Msg("Skipping malformed message")
			return
		}
		fn(&m)
	})
}
