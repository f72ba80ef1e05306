package service

import (
	"context"
	"time"

	commonlog "file_broker/server/common/log"
	"file_broker/server/fileman/domain"
	"file_broker/server/fileman/repository"
)

// SweepStaleUploads removes records that stayed uploading for longer than
// olderThan, oldest first, at most batch per call. Soft-deleted uploads are
// included since their signed PUT may still have landed an object. It returns
// how many were removed.
func (s *FileService) SweepStaleUploads(ctx context.Context, olderThan time.Duration, batch int) (int, error) {
	if olderThan <= 0 {
		return 0, domain.Validationf("stale threshold must be positive")
	}
	if batch <= 0 {
		return 0, domain.Validationf("batch size must be positive")
	}

	stale, _, err := s.repo.GetMany(ctx, repository.Filter{
		Status:        domain.StatusUploading,
		CreatedBefore: s.now().Add(-olderThan),
	}, repository.Order{Column: "created_at"}, 0, batch)
	if err != nil {
		s.metrics.observe("sweep", err)
		return 0, domain.Internal("failed to list stale uploads", err)
	}

	removed := 0
	for _, item := range stale {
		if err := ctx.Err(); err != nil {
			break
		}
		s.safeDeleteObject(ctx, item.StoragePath)
		ok, err := s.repo.Delete(ctx, repository.Filter{
			ID:      item.ID,
			OwnerID: item.OwnerID,
			Status:  domain.StatusUploading,
		})
		if err != nil {
			commonlog.Warnf("sweep file %s: %v", item.ID, err)
			continue
		}
		if !ok {
			// confirmed or hard-deleted since it was listed
			continue
		}
		removed++
		s.publish(ctx, EventExpired, item)
	}

	s.metrics.observe("sweep", nil)
	s.metrics.addSwept(removed)
	if removed > 0 {
		commonlog.Infof("swept %d stale uploads", removed)
	}
	return removed, nil
}
