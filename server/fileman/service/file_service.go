package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	commonlog "file_broker/server/common/log"
	"file_broker/server/fileman/domain"
	"file_broker/server/fileman/repository"
)

type ObjectStore interface {
	CreateUploadGrant(ctx context.Context, path string) (string, error)
	CreateDownloadGrant(ctx context.Context, path string, ttl time.Duration) (string, error)
	DeleteObject(ctx context.Context, path string) error
}

type FileRepository interface {
	Insert(ctx context.Context, item domain.FileRecord) (domain.FileRecord, error)
	GetOne(ctx context.Context, f repository.Filter) (domain.FileRecord, bool, error)
	GetMany(ctx context.Context, f repository.Filter, order repository.Order, skip, limit int) ([]domain.FileRecord, int, error)
	Update(ctx context.Context, f repository.Filter, p repository.Patch) (domain.FileRecord, bool, error)
	Delete(ctx context.Context, f repository.Filter) (bool, error)
}

const msgFileNotFound = "File not found."

type FileService struct {
	repo    FileRepository
	store   ObjectStore
	events  EventPublisher
	metrics *Metrics
	policy  domain.Policy

	now   func() time.Time
	newID func() string
}

func NewFileService(repo FileRepository, store ObjectStore, events EventPublisher, metrics *Metrics, policy domain.Policy) *FileService {
	if events == nil {
		events = NopPublisher{}
	}
	return &FileService{
		repo:    repo,
		store:   store,
		events:  events,
		metrics: metrics,
		policy:  policy,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.NewString() },
	}
}

func (s *FileService) Policy() domain.Policy {
	return s.policy
}

// GenerateUploadGrant validates the request, signs an upload URL and records
// the file as uploading. Nothing is inserted when signing fails.
func (s *FileService) GenerateUploadGrant(ctx context.Context, callerID, name string, sizeBytes int64, contentType string) (out domain.UploadGrant, err error) {
	defer func() { s.metrics.observe("upload_grant", err) }()

	if err := requireCaller(callerID); err != nil {
		return domain.UploadGrant{}, err
	}
	if err := s.policy.ValidateUpload(name, sizeBytes, contentType); err != nil {
		return domain.UploadGrant{}, err
	}

	fileID := s.newID()
	path := domain.StoragePath(callerID, fileID, name)

	uploadURL, err := s.store.CreateUploadGrant(ctx, path)
	if err != nil {
		commonlog.Errorf("create upload grant for %s: %v", path, err)
		return domain.UploadGrant{}, domain.Storage("Unable to generate upload URL.", err)
	}

	now := s.now()
	item, err := s.repo.Insert(ctx, domain.FileRecord{
		ID:          fileID,
		OwnerID:     callerID,
		Name:        name,
		StoragePath: path,
		SizeBytes:   sizeBytes,
		ContentType: contentType,
		Status:      domain.StatusUploading,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		commonlog.Errorf("insert file metadata %s: %v", fileID, err)
		return domain.UploadGrant{}, domain.Internal("failed to record file metadata", err)
	}

	s.publish(ctx, EventUploadRequested, item)
	return domain.UploadGrant{FileID: fileID, UploadURL: uploadURL, StoragePath: path}, nil
}

// ConfirmUpload settles an uploading record. An uploaded outcome is trusted
// without checking the object store; a failed outcome removes the object and
// the record.
func (s *FileService) ConfirmUpload(ctx context.Context, callerID, fileID string, outcome domain.FileStatus) (out domain.ConfirmResult, err error) {
	defer func() { s.metrics.observe("confirm", err) }()

	if err := requireCaller(callerID); err != nil {
		return domain.ConfirmResult{}, err
	}
	if !outcome.IsConfirmOutcome() {
		return domain.ConfirmResult{}, domain.Validationf("status must be %q or %q", domain.StatusUploaded, domain.StatusFailed)
	}

	item, err := s.liveFile(ctx, callerID, fileID)
	if err != nil {
		return domain.ConfirmResult{}, err
	}
	if item.Status != domain.StatusUploading {
		return domain.ConfirmResult{}, domain.InvalidStatef("File is already in '%s' state.", item.Status)
	}

	pending := repository.Filter{ID: item.ID, OwnerID: callerID, Status: domain.StatusUploading, Deleted: repository.Bool(false)}

	if outcome == domain.StatusFailed {
		s.safeDeleteObject(ctx, item.StoragePath)
		removed, err := s.repo.Delete(ctx, pending)
		if err != nil {
			return domain.ConfirmResult{}, domain.Internal("failed to remove file metadata", err)
		}
		if !removed {
			return domain.ConfirmResult{}, domain.InvalidStatef("File is no longer in '%s' state.", domain.StatusUploading)
		}
		item.Status = domain.StatusFailed
		s.publish(ctx, EventFailed, item)
		return domain.ConfirmResult{FileID: item.ID, Status: domain.StatusFailed}, nil
	}

	updated, ok, err := s.repo.Update(ctx, pending, repository.Patch{
		Status:    repository.StatusPtr(domain.StatusUploaded),
		UpdatedAt: s.now(),
	})
	if err != nil {
		return domain.ConfirmResult{}, domain.Internal("failed to update file status", err)
	}
	if !ok {
		return domain.ConfirmResult{}, domain.InvalidStatef("File is no longer in '%s' state.", domain.StatusUploading)
	}
	s.publish(ctx, EventUploaded, updated)
	return domain.ConfirmResult{FileID: updated.ID, Status: updated.Status}, nil
}

func (s *FileService) ListFiles(ctx context.Context, callerID string, skip, limit int) (out domain.FileList, err error) {
	defer func() { s.metrics.observe("list", err) }()

	if err := requireCaller(callerID); err != nil {
		return domain.FileList{}, err
	}
	skip, limit, err = s.policy.PageWindow(skip, limit)
	if err != nil {
		return domain.FileList{}, err
	}

	items, total, err := s.repo.GetMany(ctx, repository.Filter{
		OwnerID: callerID,
		Status:  domain.StatusUploaded,
		Deleted: repository.Bool(false),
	}, repository.NewestFirst, skip, limit)
	if err != nil {
		return domain.FileList{}, domain.Internal("failed to list files", err)
	}
	return domain.FileList{Files: items, Total: total, Skip: skip, Limit: limit}, nil
}

func (s *FileService) GetDownloadGrant(ctx context.Context, callerID, fileID string) (out domain.DownloadGrant, err error) {
	defer func() { s.metrics.observe("download_grant", err) }()

	if err := requireCaller(callerID); err != nil {
		return domain.DownloadGrant{}, err
	}
	item, found, err := s.repo.GetOne(ctx, repository.Filter{
		ID:      fileID,
		OwnerID: callerID,
		Status:  domain.StatusUploaded,
		Deleted: repository.Bool(false),
	})
	if err != nil {
		return domain.DownloadGrant{}, domain.Internal("failed to load file", err)
	}
	if !found {
		return domain.DownloadGrant{}, domain.NotFound(msgFileNotFound)
	}

	downloadURL, err := s.store.CreateDownloadGrant(ctx, item.StoragePath, domain.DownloadURLTTL)
	if err != nil {
		commonlog.Errorf("create download grant for %s: %v", item.StoragePath, err)
		return domain.DownloadGrant{}, domain.Storage("Unable to generate download URL.", err)
	}
	return domain.DownloadGrant{
		FileID:      item.ID,
		DownloadURL: downloadURL,
		ExpiresIn:   int(domain.DownloadURLTTL / time.Second),
	}, nil
}

// DeleteFile removes the object first, then hides the record (soft) or drops
// the row (hard) depending on the policy.
func (s *FileService) DeleteFile(ctx context.Context, callerID, fileID string) (err error) {
	defer func() { s.metrics.observe("delete", err) }()

	if err := requireCaller(callerID); err != nil {
		return err
	}
	item, err := s.liveFile(ctx, callerID, fileID)
	if err != nil {
		return err
	}

	s.safeDeleteObject(ctx, item.StoragePath)

	owned := repository.Filter{ID: item.ID, OwnerID: callerID, Deleted: repository.Bool(false)}
	var removed bool
	if s.policy.DeleteMode == domain.DeleteHard {
		removed, err = s.repo.Delete(ctx, owned)
	} else {
		_, removed, err = s.repo.Update(ctx, owned, repository.Patch{Deleted: repository.Bool(true), UpdatedAt: s.now()})
	}
	if err != nil {
		return domain.Internal("failed to delete file metadata", err)
	}
	if !removed {
		return domain.NotFound(msgFileNotFound)
	}
	s.publish(ctx, EventDeleted, item)
	return nil
}

func (s *FileService) liveFile(ctx context.Context, callerID, fileID string) (domain.FileRecord, error) {
	item, found, err := s.repo.GetOne(ctx, repository.Filter{ID: fileID, OwnerID: callerID, Deleted: repository.Bool(false)})
	if err != nil {
		return domain.FileRecord{}, domain.Internal("failed to load file", err)
	}
	if !found {
		return domain.FileRecord{}, domain.NotFound(msgFileNotFound)
	}
	return item, nil
}

func (s *FileService) safeDeleteObject(ctx context.Context, path string) {
	if err := s.store.DeleteObject(ctx, path); err != nil {
		commonlog.Warnf("failed to delete object %s: %v", path, err)
	}
}

func (s *FileService) publish(ctx context.Context, event string, item domain.FileRecord) {
	if err := s.events.Publish(ctx, item.OwnerID, event, newFileEvent(event, item, s.now())); err != nil {
		commonlog.Warnf("publish %s for file %s: %v", event, item.ID, err)
	}
}

func requireCaller(callerID string) error {
	if callerID == "" {
		return &domain.Error{Kind: domain.KindAuthentication, Message: "missing caller identity"}
	}
	return nil
}
