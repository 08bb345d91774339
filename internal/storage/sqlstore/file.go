package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fenwehome/telegram-files/internal/domain"
	"github.com/fenwehome/telegram-files/internal/logger"
	"github.com/fenwehome/telegram-files/internal/storage"
)

var _ storage.FileRepository = (*Storage)(nil)

// fileColumns is the single source of truth for SELECTs against file_record.
// Nullable text columns are collapsed to "" so scanning stays uniform across
// dialects.
const fileColumns = `id, unique_id, telegram_id, chat_id, message_id,
	COALESCE(media_album_id, 0), date, has_sensitive_content, size, downloaded_size,
	type, COALESCE(mime_type, ''), COALESCE(file_name, ''), COALESCE(thumbnail, ''),
	COALESCE(thumbnail_unique_id, ''), COALESCE(caption, ''), COALESCE(extra, ''),
	COALESCE(local_path, ''), download_status, COALESCE(start_date, 0), completion_date,
	COALESCE(transfer_status, 'idle'), COALESCE(tags, ''), COALESCE(thread_chat_id, 0),
	COALESCE(message_thread_id, 0)`

const insertFileSQL = `
	INSERT INTO file_record (id, unique_id, telegram_id, chat_id, message_id, media_album_id,
		date, has_sensitive_content, size, downloaded_size, type, mime_type, file_name,
		thumbnail, thumbnail_unique_id, caption, extra, local_path, download_status,
		start_date, transfer_status, tags, thread_chat_id, message_thread_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(sc rowScanner) (*domain.FileRecord, error) {
	var r domain.FileRecord
	var completion sql.NullInt64
	err := sc.Scan(
		&r.ID, &r.UniqueID, &r.TelegramID, &r.ChatID, &r.MessageID,
		&r.MediaAlbumID, &r.Date, &r.HasSensitiveContent, &r.Size, &r.DownloadedSize,
		&r.Type, &r.MimeType, &r.FileName, &r.Thumbnail,
		&r.ThumbnailUniqueID, &r.Caption, &r.Extra,
		&r.LocalPath, &r.DownloadStatus, &r.StartDate, &completion,
		&r.TransferStatus, &r.Tags, &r.ThreadChatID,
		&r.MessageThreadID,
	)
	if err != nil {
		return nil, err
	}
	if completion.Valid {
		v := completion.Int64
		r.CompletionDate = &v
	}
	return &r, nil
}

// Create inserts the full row and, unless the row is a thumbnail, immediately
// propagates the media-album caption so siblings inherit it as soon as any
// member carrying a caption arrives.
func (s *Storage) Create(ctx context.Context, rec *domain.FileRecord) error {
	if rec.DownloadStatus == "" {
		rec.DownloadStatus = domain.DownloadIdle
	}
	if rec.TransferStatus == "" {
		rec.TransferStatus = domain.TransferIdle
	}
	_, err := s.exec(ctx, "create", insertFileSQL,
		rec.ID, rec.UniqueID, rec.TelegramID, rec.ChatID, rec.MessageID, rec.MediaAlbumID,
		rec.Date, rec.HasSensitiveContent, rec.Size, rec.DownloadedSize, rec.Type, rec.MimeType,
		rec.FileName, rec.Thumbnail, rec.ThumbnailUniqueID, rec.Caption, rec.Extra, rec.LocalPath,
		rec.DownloadStatus, rec.StartDate, rec.TransferStatus, rec.Tags, rec.ThreadChatID,
		rec.MessageThreadID,
	)
	if err != nil {
		return err
	}
	if rec.Type != domain.TypeThumbnail {
		if _, err := s.UpdateCaptionByMediaAlbumID(ctx, rec.MediaAlbumID, rec.Caption); err != nil {
			return err
		}
	}
	logger.Log.Debug("created file record", "unique_id", rec.UniqueID, "file_id", rec.ID)
	return nil
}

// CreateIfNotExist is the idempotency boundary absorbing duplicate upstream
// events for the same file.
func (s *Storage) CreateIfNotExist(ctx context.Context, rec *domain.FileRecord) (bool, error) {
	unlock := s.locks.lock(rec.UniqueID)
	defer unlock()

	existing, err := s.GetByUniqueID(ctx, rec.UniqueID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}
	if err := s.Create(ctx, rec); err != nil {
		return false, err
	}
	return true, nil
}

// GetFiles runs the row query and the filter-scoped count concurrently and
// merges them into one page. The next cursor comes from the last row actually
// returned, so an empty page yields cursor 0.
func (s *Storage) GetFiles(ctx context.Context, chatID int64, f *domain.FileFilter) (*domain.FilePage, error) {
	limit := domain.DefaultPageSize
	if f != nil && f.Limit > 0 {
		limit = f.Limit
	}

	p := buildFilterPredicate(chatID, f)
	count := p.clone()
	orderBy := applySort(p, f)
	applyCursor(p, f)

	dataQuery := fmt.Sprintf(`SELECT %s FROM file_record WHERE %s ORDER BY %s LIMIT ?`,
		fileColumns, p.where(), orderBy)
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM file_record WHERE %s`, count.where())

	var (
		files []*domain.FileRecord
		total int64
	)
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.db.QueryContext(gctx, s.dialect.rebind(dataQuery), append(p.args, limit)...)
		if err != nil {
			return fmt.Errorf("query files: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			rec, err := scanFile(rows)
			if err != nil {
				return fmt.Errorf("scan file row: %w", err)
			}
			files = append(files, rec)
		}
		return rows.Err()
	})
	g.Go(func() error {
		if err := s.db.QueryRowContext(gctx, s.dialect.rebind(countQuery), count.args...).Scan(&total); err != nil {
			return fmt.Errorf("count files: %w", err)
		}
		return nil
	})
	err := g.Wait()
	observe("getFiles", start, err)
	if err != nil {
		logger.Log.Error("failed to get files", "chat_id", chatID, "error", err)
		return nil, fmt.Errorf("getFiles: %w", err)
	}

	var next int64
	if len(files) > 0 {
		next = files[len(files)-1].MessageID
	}
	return &domain.FilePage{Files: files, NextCursor: next, Total: total}, nil
}

func (s *Storage) GetFilesByUniqueID(ctx context.Context, uniqueIDs []string) (map[string]*domain.FileRecord, error) {
	seen := make(map[string]bool, len(uniqueIDs))
	ids := make([]any, 0, len(uniqueIDs))
	for _, id := range uniqueIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	result := make(map[string]*domain.FileRecord, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := fmt.Sprintf(`SELECT %s FROM file_record WHERE unique_id IN (%s)`, fileColumns, placeholders)
	rows, err := s.query(ctx, "getFilesByUniqueId", query, ids...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		rec, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("getFilesByUniqueId: %w", err)
		}
		result[rec.UniqueID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("getFilesByUniqueId: %w", err)
	}
	return result, nil
}

// GetByPrimaryKey exists for legacy callers that still hold the transport
// file handle; everything else keys by unique_id.
func (s *Storage) GetByPrimaryKey(ctx context.Context, fileID int32, uniqueID string) (*domain.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM file_record WHERE id = ? AND unique_id = ? LIMIT 1`, fileColumns)
	return s.getOne(ctx, "getByPrimaryKey", query, fileID, uniqueID)
}

func (s *Storage) GetByUniqueID(ctx context.Context, uniqueID string) (*domain.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM file_record WHERE unique_id = ? LIMIT 1`, fileColumns)
	return s.getOne(ctx, "getByUniqueId", query, uniqueID)
}

// GetMainFileByThread resolves the representative media for a forum-thread
// message whose chat is not the thread's root chat.
func (s *Storage) GetMainFileByThread(ctx context.Context, telegramID, threadChatID, messageThreadID int64) (*domain.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM file_record
		WHERE telegram_id = ?
		  AND thread_chat_id = ?
		  AND message_thread_id = ?
		  AND chat_id != ?
		  AND type != 'thumbnail'
		LIMIT 1`, fileColumns)
	return s.getOne(ctx, "getMainFileByThread", query, telegramID, threadChatID, messageThreadID, threadChatID)
}

// getOne maps sql.ErrNoRows to a nil record: absence is a valid outcome here,
// not an error.
func (s *Storage) getOne(ctx context.Context, op, query string, args ...any) (*domain.FileRecord, error) {
	start := time.Now()
	rec, err := scanFile(s.row(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		observe(op, start, nil)
		return nil, nil
	}
	observe(op, start, err)
	if err != nil {
		logger.Log.Error("query failed", "operation", op, "error", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rec, nil
}

func (s *Storage) GetCaptionByMediaAlbumID(ctx context.Context, mediaAlbumID int64) (string, error) {
	if mediaAlbumID <= 0 {
		return "", nil
	}
	if caption, ok := s.captions.Get(mediaAlbumID); ok {
		return caption, nil
	}
	var caption string
	start := time.Now()
	err := s.row(ctx, `SELECT COALESCE(caption, '') FROM file_record WHERE media_album_id = ? LIMIT 1`,
		mediaAlbumID).Scan(&caption)
	if errors.Is(err, sql.ErrNoRows) {
		observe("getCaptionByMediaAlbumId", start, nil)
		return "", nil
	}
	observe("getCaptionByMediaAlbumId", start, err)
	if err != nil {
		logger.Log.Error("query failed", "operation", "getCaptionByMediaAlbumId", "error", err)
		return "", fmt.Errorf("getCaptionByMediaAlbumId: %w", err)
	}
	if caption != "" {
		s.captions.Add(mediaAlbumID, caption)
	}
	return caption, nil
}

// UpdateDownloadStatus diffs the requested path/status against the stored row
// and writes only when something changed. The UPDATE sets all four lifecycle
// columns but unchanged fields are rebound to their current values, so nothing
// unrelated is clobbered. A nil return means no-op.
func (s *Storage) UpdateDownloadStatus(ctx context.Context, fileID int32, uniqueID, localPath string,
	status domain.DownloadStatus, completionDate *int64) (*domain.DownloadPatch, error) {
	if localPath == "" && status == "" {
		return nil, nil
	}
	unlock := s.locks.lock(uniqueID)
	defer unlock()

	rec, err := s.GetByUniqueID(ctx, uniqueID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}

	pathChanged := rec.LocalPath != localPath
	statusChanged := status != "" && rec.DownloadStatus != status
	if !pathChanged && !statusChanged {
		return nil, nil
	}

	newPath := rec.LocalPath
	if pathChanged {
		newPath = localPath
	}
	newStatus := rec.DownloadStatus
	if statusChanged {
		newStatus = status
	}
	newCompletion := rec.CompletionDate
	if completionDate != nil {
		newCompletion = completionDate
	}

	_, err = s.exec(ctx, "updateDownloadStatus", `
		UPDATE file_record
		SET id = ?, local_path = ?, download_status = ?, completion_date = ?
		WHERE unique_id = ?`,
		fileID, newPath, newStatus, nullableInt64(newCompletion), uniqueID)
	if err != nil {
		return nil, err
	}

	patch := &domain.DownloadPatch{}
	if pathChanged {
		patch.LocalPath = &localPath
	}
	if statusChanged {
		patch.DownloadStatus = &status
	}
	if completionDate != nil && (rec.CompletionDate == nil || *rec.CompletionDate != *completionDate) {
		patch.CompletionDate = completionDate
	}
	logger.Log.Debug("updated download status",
		"unique_id", uniqueID,
		"path", localPath, "status", status,
		"prev_path", rec.LocalPath, "prev_status", rec.DownloadStatus)
	return patch, nil
}

// UpdateTransferStatus follows the same diff-then-patch shape for the
// transfer lifecycle's two fields.
func (s *Storage) UpdateTransferStatus(ctx context.Context, uniqueID string, status domain.TransferStatus,
	localPath string) (*domain.TransferPatch, error) {
	if localPath == "" && status == "" {
		return nil, nil
	}
	unlock := s.locks.lock(uniqueID)
	defer unlock()

	rec, err := s.GetByUniqueID(ctx, uniqueID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}

	pathChanged := localPath != "" && rec.LocalPath != localPath
	statusChanged := status != "" && rec.TransferStatus != status
	if !pathChanged && !statusChanged {
		return nil, nil
	}

	newPath := rec.LocalPath
	if pathChanged {
		newPath = localPath
	}
	newStatus := rec.TransferStatus
	if statusChanged {
		newStatus = status
	}

	_, err = s.exec(ctx, "updateTransferStatus", `
		UPDATE file_record
		SET transfer_status = ?, local_path = ?
		WHERE unique_id = ?`,
		newStatus, newPath, uniqueID)
	if err != nil {
		return nil, err
	}

	patch := &domain.TransferPatch{}
	if pathChanged {
		patch.LocalPath = &localPath
	}
	if statusChanged {
		patch.TransferStatus = &status
	}
	logger.Log.Debug("updated transfer status",
		"unique_id", uniqueID,
		"path", localPath, "status", status,
		"prev_path", rec.LocalPath, "prev_status", rec.TransferStatus)
	return patch, nil
}

// UpdateFileID reconciles a reassigned transport handle against the stable
// unique_id. Equal handles are a no-op; otherwise only the id column moves.
func (s *Storage) UpdateFileID(ctx context.Context, fileID int32, uniqueID string) error {
	if fileID <= 0 || uniqueID == "" {
		return nil
	}
	unlock := s.locks.lock(uniqueID)
	defer unlock()

	rec, err := s.GetByUniqueID(ctx, uniqueID)
	if err != nil {
		return err
	}
	if rec == nil || rec.ID == fileID {
		return nil
	}
	_, err = s.exec(ctx, "updateFileId",
		`UPDATE file_record SET id = ? WHERE unique_id = ?`, fileID, uniqueID)
	return err
}

// UpdateCaptionByMediaAlbumID converges every row of a media album on one
// caption: the supplied one, or failing that whatever caption the album
// already stores.
func (s *Storage) UpdateCaptionByMediaAlbumID(ctx context.Context, mediaAlbumID int64, caption string) (int64, error) {
	if mediaAlbumID <= 0 {
		return 0, nil
	}
	if caption == "" {
		existing, err := s.GetCaptionByMediaAlbumID(ctx, mediaAlbumID)
		if err != nil {
			// A failed lookup only means there is nothing to propagate.
			existing = ""
		}
		caption = existing
	}
	if caption == "" {
		return 0, nil
	}
	res, err := s.exec(ctx, "updateCaptionByMediaAlbumId",
		`UPDATE file_record SET caption = ? WHERE media_album_id = ?`, caption, mediaAlbumID)
	if err != nil {
		return 0, err
	}
	s.captions.Add(mediaAlbumID, caption)
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("updateCaptionByMediaAlbumId: %w", err)
	}
	return affected, nil
}

func (s *Storage) UpdateTags(ctx context.Context, uniqueID, tags string) error {
	if uniqueID == "" {
		return nil
	}
	_, err := s.exec(ctx, "updateTags",
		`UPDATE file_record SET tags = ? WHERE unique_id = ?`, tags, uniqueID)
	return err
}

func (s *Storage) DeleteByUniqueID(ctx context.Context, uniqueID string) error {
	if uniqueID == "" {
		return nil
	}
	rec, err := s.GetByUniqueID(ctx, uniqueID)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, "deleteByUniqueId",
		`DELETE FROM file_record WHERE unique_id = ?`, uniqueID)
	if err != nil {
		return err
	}
	// The deleted row may have held the album's cached caption; drop it so the
	// next lookup reads the database instead of a stale entry.
	if rec != nil && rec.MediaAlbumID > 0 {
		s.captions.Remove(rec.MediaAlbumID)
	}
	return nil
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
