package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"file_broker/server/fileman/domain"
)

const tableUserFiles = "user_files"

var fileColumns = []string{
	"id", "owner_id", "name", "storage_path", "size_bytes", "content_type", "status", "is_deleted", "created_at", "updated_at",
}

var orderColumns = map[string]struct{}{
	"created_at": {},
	"updated_at": {},
	"name":       {},
	"size_bytes": {},
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Filter fields are combined with AND. Zero values are ignored.
type Filter struct {
	ID            string
	OwnerID       string
	Status        domain.FileStatus
	Deleted       *bool
	CreatedBefore time.Time
}

type Patch struct {
	Status    *domain.FileStatus
	Deleted   *bool
	UpdatedAt time.Time
}

type Order struct {
	Column string
	Desc   bool
}

var NewestFirst = Order{Column: "created_at", Desc: true}

func Bool(v bool) *bool { return &v }

func StatusPtr(s domain.FileStatus) *domain.FileStatus { return &s }

type FileRepository struct {
	db DBTX
}

func NewFileRepository(db DBTX) *FileRepository {
	return &FileRepository{db: db}
}

func (r *FileRepository) Insert(ctx context.Context, item domain.FileRecord) (domain.FileRecord, error) {
	query, args, err := buildInsert(item)
	if err != nil {
		return domain.FileRecord{}, err
	}
	row := r.db.QueryRow(ctx, query, args...)
	out, err := scanFile(row)
	if err != nil {
		return domain.FileRecord{}, fmt.Errorf("insert file %s: %w", item.ID, err)
	}
	return out, nil
}

func (r *FileRepository) GetOne(ctx context.Context, f Filter) (domain.FileRecord, bool, error) {
	query, args, err := buildSelect(f, Order{}, 0, 1)
	if err != nil {
		return domain.FileRecord{}, false, err
	}
	item, err := scanFile(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.FileRecord{}, false, nil
	}
	if err != nil {
		return domain.FileRecord{}, false, fmt.Errorf("get file: %w", err)
	}
	return item, true, nil
}

type txBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// GetMany returns one page of rows matching f plus the total match count. On a
// pool both statements share a read-only REPEATABLE READ snapshot so the total
// agrees with the page.
func (r *FileRepository) GetMany(ctx context.Context, f Filter, order Order, skip, limit int) ([]domain.FileRecord, int, error) {
	beginner, ok := r.db.(txBeginner)
	if !ok {
		return getMany(ctx, r.db, f, order, skip, limit)
	}
	tx, err := beginner.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, 0, fmt.Errorf("begin list snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	items, total, err := getMany(ctx, tx, f, order, skip, limit)
	if err != nil {
		return nil, 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, 0, fmt.Errorf("end list snapshot: %w", err)
	}
	return items, total, nil
}

func getMany(ctx context.Context, db DBTX, f Filter, order Order, skip, limit int) ([]domain.FileRecord, int, error) {
	countSQL, countArgs, err := buildCount(f)
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count files: %w", err)
	}

	query, args, err := buildSelect(f, order, skip, limit)
	if err != nil {
		return nil, 0, err
	}
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	items := make([]domain.FileRecord, 0)
	for rows.Next() {
		item, err := scanFile(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list files: %w", err)
	}
	return items, total, nil
}

// Update applies p to the single row matching f and returns it. A filter that
// includes Status makes the transition conditional on the current status.
func (r *FileRepository) Update(ctx context.Context, f Filter, p Patch) (domain.FileRecord, bool, error) {
	query, args, err := buildUpdate(f, p)
	if err != nil {
		return domain.FileRecord{}, false, err
	}
	item, err := scanFile(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.FileRecord{}, false, nil
	}
	if err != nil {
		return domain.FileRecord{}, false, fmt.Errorf("update file: %w", err)
	}
	return item, true, nil
}

func (r *FileRepository) Delete(ctx context.Context, f Filter) (bool, error) {
	query, args, err := buildDelete(f)
	if err != nil {
		return false, err
	}
	cmd, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("delete file: %w", err)
	}
	return cmd.RowsAffected() > 0, nil
}

func (f Filter) where() sq.And {
	cond := sq.And{}
	if f.ID != "" {
		cond = append(cond, sq.Eq{"id": f.ID})
	}
	if f.OwnerID != "" {
		cond = append(cond, sq.Eq{"owner_id": f.OwnerID})
	}
	if f.Status != "" {
		cond = append(cond, sq.Eq{"status": string(f.Status)})
	}
	if f.Deleted != nil {
		cond = append(cond, sq.Eq{"is_deleted": *f.Deleted})
	}
	if !f.CreatedBefore.IsZero() {
		cond = append(cond, sq.Lt{"created_at": f.CreatedBefore})
	}
	return cond
}

func (f Filter) empty() bool {
	return len(f.where()) == 0
}

func buildInsert(item domain.FileRecord) (string, []any, error) {
	return psql.Insert(tableUserFiles).
		Columns(fileColumns...).
		Values(item.ID, item.OwnerID, item.Name, item.StoragePath, item.SizeBytes, item.ContentType,
			string(item.Status), item.Deleted, item.CreatedAt, item.UpdatedAt).
		Suffix(returning()).
		ToSql()
}

func buildSelect(f Filter, order Order, skip, limit int) (string, []any, error) {
	q := psql.Select(fileColumns...).From(tableUserFiles)
	if !f.empty() {
		q = q.Where(f.where())
	}
	if order.Column != "" {
		if _, ok := orderColumns[order.Column]; !ok {
			return "", nil, fmt.Errorf("unsupported order column %q", order.Column)
		}
		dir := "ASC"
		if order.Desc {
			dir = "DESC"
		}
		// id breaks ties so offset windows are stable
		q = q.OrderBy(order.Column+" "+dir, "id "+dir)
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	if skip > 0 {
		q = q.Offset(uint64(skip))
	}
	return q.ToSql()
}

func buildCount(f Filter) (string, []any, error) {
	q := psql.Select("COUNT(*)").From(tableUserFiles)
	if !f.empty() {
		q = q.Where(f.where())
	}
	return q.ToSql()
}

func buildUpdate(f Filter, p Patch) (string, []any, error) {
	if f.empty() {
		return "", nil, errors.New("refusing to update without a filter")
	}
	q := psql.Update(tableUserFiles)
	if p.Status != nil {
		q = q.Set("status", string(*p.Status))
	}
	if p.Deleted != nil {
		q = q.Set("is_deleted", *p.Deleted)
	}
	if p.UpdatedAt.IsZero() {
		q = q.Set("updated_at", sq.Expr("NOW()"))
	} else {
		q = q.Set("updated_at", p.UpdatedAt)
	}
	return q.Where(f.where()).Suffix(returning()).ToSql()
}

func buildDelete(f Filter) (string, []any, error) {
	if f.empty() {
		return "", nil, errors.New("refusing to delete without a filter")
	}
	return psql.Delete(tableUserFiles).Where(f.where()).ToSql()
}

func returning() string {
	return "RETURNING " + strings.Join(fileColumns, ", ")
}

func scanFile(row pgx.Row) (domain.FileRecord, error) {
	var item domain.FileRecord
	var status string
	err := row.Scan(&item.ID, &item.OwnerID, &item.Name, &item.StoragePath, &item.SizeBytes, &item.ContentType,
		&status, &item.Deleted, &item.CreatedAt, &item.UpdatedAt)
	item.Status = domain.FileStatus(status)
	return item, err
}
