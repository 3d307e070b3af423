package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationKind identifies the outcome a notification reports
type NotificationKind string

const (
	NotificationAdded       NotificationKind = "added"
	NotificationRemoved     NotificationKind = "removed"
	NotificationLoadError   NotificationKind = "load-error"
	NotificationUpdateError NotificationKind = "update-error"
)

// NotificationLevel drives how the presentation layer styles a toast
type NotificationLevel string

const (
	LevelSuccess NotificationLevel = "success"
	LevelInfo    NotificationLevel = "info"
	LevelError   NotificationLevel = "error"
)

// Notification is a one-shot, transient message for the presentation layer.
// It is never persisted.
type Notification struct {
	ID        uuid.UUID         `json:"id"`
	Kind      NotificationKind  `json:"kind"`
	Level     NotificationLevel `json:"level"`
	Text      string            `json:"text"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewNotification builds a notification with a fresh id and the level implied by kind
func NewNotification(kind NotificationKind, text string) Notification {
	return Notification{
		ID:        uuid.New(),
		Kind:      kind,
		Level:     levelFor(kind),
		Text:      text,
		CreatedAt: time.Now(),
	}
}

func levelFor(kind NotificationKind) NotificationLevel {
	switch kind {
	case NotificationAdded:
		return LevelSuccess
	case NotificationRemoved:
		return LevelInfo
	default:
		return LevelError
	}
}
