package service

import (
	"context"
	"time"

	"file_broker/server/fileman/domain"
)

const (
	EventUploadRequested = "file.upload_requested"
	EventUploaded        = "file.uploaded"
	EventFailed          = "file.failed"
	EventDeleted         = "file.deleted"
	EventExpired         = "file.expired"
)

type EventPublisher interface {
	Publish(ctx context.Context, ownerID, event string, payload any) error
}

type FileEvent struct {
	Event       string            `json:"event"`
	FileID      string            `json:"file_id"`
	OwnerID     string            `json:"owner_id"`
	Name        string            `json:"name"`
	StoragePath string            `json:"storage_path"`
	SizeBytes   int64             `json:"size_bytes"`
	ContentType string            `json:"content_type"`
	Status      domain.FileStatus `json:"status"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// NopPublisher drops every event. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, string, any) error { return nil }

func newFileEvent(event string, item domain.FileRecord, at time.Time) FileEvent {
	return FileEvent{
		Event:       event,
		FileID:      item.ID,
		OwnerID:     item.OwnerID,
		Name:        item.Name,
		StoragePath: item.StoragePath,
		SizeBytes:   item.SizeBytes,
		ContentType: item.ContentType,
		Status:      item.Status,
		OccurredAt:  at,
	}
}
