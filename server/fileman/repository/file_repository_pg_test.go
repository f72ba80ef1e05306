package repository

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"file_broker/server/common/infra/db"
	"file_broker/server/fileman/domain"
)

// setupTestDB starts PostgreSQL in a container, applies the migrations and
// returns a pool against it. Set TEST_INTEGRATION to run these tests.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("skipping integration test: TEST_INTEGRATION is not set")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("files_test"),
		postgres.WithUsername("files"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("postgres connection string: %v", err)
	}
	if err := db.Migrate(dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func newRecord(owner string, createdAt time.Time) domain.FileRecord {
	id := uuid.NewString()
	return domain.FileRecord{
		ID:          id,
		OwnerID:     owner,
		Name:        "report.pdf",
		StoragePath: domain.StoragePath(owner, id, "report.pdf"),
		SizeBytes:   1024,
		ContentType: "application/pdf",
		Status:      domain.StatusUploading,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func TestRepositoryInsertAndGetOne(t *testing.T) {
	repo := NewFileRepository(setupTestDB(t))
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	in := newRecord("user-1", created)
	out, err := repo.Insert(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.StoragePath, out.StoragePath)
	assert.True(t, created.Equal(out.CreatedAt))

	got, found, err := repo.GetOne(ctx, Filter{ID: in.ID, OwnerID: "user-1", Deleted: Bool(false)})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.StatusUploading, got.Status)
	assert.Equal(t, int64(1024), got.SizeBytes)

	_, found, err = repo.GetOne(ctx, Filter{ID: in.ID, OwnerID: "user-2"})
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = repo.GetOne(ctx, Filter{ID: uuid.NewString()})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRepositoryConditionalUpdate(t *testing.T) {
	repo := NewFileRepository(setupTestDB(t))
	ctx := context.Background()

	item, err := repo.Insert(ctx, newRecord("user-1", time.Now().UTC()))
	require.NoError(t, err)

	uploading := Filter{ID: item.ID, OwnerID: "user-1", Status: domain.StatusUploading, Deleted: Bool(false)}
	patch := Patch{Status: StatusPtr(domain.StatusUploaded), UpdatedAt: time.Now().UTC()}

	updated, ok, err := repo.Update(ctx, uploading, patch)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.StatusUploaded, updated.Status)

	_, ok, err = repo.Update(ctx, uploading, Patch{Status: StatusPtr(domain.StatusFailed), UpdatedAt: time.Now().UTC()})
	require.NoError(t, err)
	assert.False(t, ok)

	got, _, err := repo.GetOne(ctx, Filter{ID: item.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUploaded, got.Status)
}

func TestRepositoryDelete(t *testing.T) {
	repo := NewFileRepository(setupTestDB(t))
	ctx := context.Background()

	item, err := repo.Insert(ctx, newRecord("user-1", time.Now().UTC()))
	require.NoError(t, err)

	removed, err := repo.Delete(ctx, Filter{ID: item.ID, OwnerID: "user-2"})
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = repo.Delete(ctx, Filter{ID: item.ID, OwnerID: "user-1"})
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = repo.Delete(ctx, Filter{ID: item.ID, OwnerID: "user-1"})
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRepositoryGetManyPaging(t *testing.T) {
	repo := NewFileRepository(setupTestDB(t))
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	ids := make([]string, 0, 25)
	for i := 0; i < 25; i++ {
		rec := newRecord("user-1", base.Add(time.Duration(i)*time.Minute))
		rec.Name = fmt.Sprintf("f%02d.txt", i)
		rec.StoragePath = domain.StoragePath(rec.OwnerID, rec.ID, rec.Name)
		rec.Status = domain.StatusUploaded
		_, err := repo.Insert(ctx, rec)
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}
	_, err := repo.Insert(ctx, newRecord("user-2", base))
	require.NoError(t, err)

	live := Filter{OwnerID: "user-1", Status: domain.StatusUploaded, Deleted: Bool(false)}

	page, total, err := repo.GetMany(ctx, live, NewestFirst, 20, 20)
	require.NoError(t, err)
	assert.Equal(t, 25, total)
	require.Len(t, page, 5)
	// newest first, so the last page holds the five oldest
	assert.Equal(t, ids[4], page[0].ID)
	assert.Equal(t, ids[0], page[4].ID)

	page, total, err = repo.GetMany(ctx, live, NewestFirst, 40, 20)
	require.NoError(t, err)
	assert.Equal(t, 25, total)
	assert.Empty(t, page)
	assert.NotNil(t, page)

	_, ok, err := repo.Update(ctx, Filter{ID: ids[24], OwnerID: "user-1", Deleted: Bool(false)},
		Patch{Deleted: Bool(true), UpdatedAt: time.Now().UTC()})
	require.NoError(t, err)
	require.True(t, ok)

	page, total, err = repo.GetMany(ctx, live, NewestFirst, 0, 20)
	require.NoError(t, err)
	assert.Equal(t, 24, total)
	require.Len(t, page, 20)
	for _, item := range page {
		assert.NotEqual(t, ids[24], item.ID)
		assert.False(t, item.Deleted)
	}
}

func TestRepositoryStaleUploadsIncludeSoftDeleted(t *testing.T) {
	repo := NewFileRepository(setupTestDB(t))
	ctx := context.Background()
	old := time.Now().UTC().Add(-48 * time.Hour)

	kept, err := repo.Insert(ctx, newRecord("user-1", old))
	require.NoError(t, err)
	tombstoned := newRecord("user-1", old.Add(time.Minute))
	tombstoned.Deleted = true
	_, err = repo.Insert(ctx, tombstoned)
	require.NoError(t, err)
	_, err = repo.Insert(ctx, newRecord("user-1", time.Now().UTC()))
	require.NoError(t, err)

	stale, total, err := repo.GetMany(ctx, Filter{
		Status:        domain.StatusUploading,
		CreatedBefore: time.Now().UTC().Add(-24 * time.Hour),
	}, Order{Column: "created_at"}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, stale, 2)
	assert.Equal(t, kept.ID, stale[0].ID)
	assert.Equal(t, tombstoned.ID, stale[1].ID)
}
