package domain

import (
	"errors"
	"time"
)

type Message struct {
	ID        MessageID `json:"id"`
	ChatID    string    `json:"chat_id"`
	SenderID  UserID    `json:"sender_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

func NewMessage(senderID UserID, chatID, text string) (*Message, error) {
	if text == "" {
		return nil, errors.New("message text cannot be empty")
	}
	if chatID == "" {
		return nil, errors.New("message chat id cannot be empty")
	}
	return &Message{
		ID:        NewMessageID(),
		ChatID:    chatID,
		SenderID:  senderID,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}, nil
}
