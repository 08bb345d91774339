// Package storage declares the persistence contract consumed by the HTTP,
// automation and transfer layers. The sqlstore subpackage implements it for
// SQLite, PostgreSQL and MySQL.
package storage

import (
	"context"

	"github.com/fenwehome/telegram-files/internal/domain"
)

// FileRepository persists and queries file metadata and lifecycle state.
// Lookups and updates are keyed by unique_id; primary-key lookups exist only
// for legacy compatibility. Absent rows are returned as nil, not as errors.
type FileRepository interface {
	// Create inserts the full row and, for non-thumbnail rows, propagates the
	// media-album caption to siblings sharing the record's album id.
	Create(ctx context.Context, rec *domain.FileRecord) error
	// CreateIfNotExist inserts only when no row with the record's unique_id
	// exists yet; reports whether a new row was written.
	CreateIfNotExist(ctx context.Context, rec *domain.FileRecord) (bool, error)

	GetFiles(ctx context.Context, chatID int64, filter *domain.FileFilter) (*domain.FilePage, error)
	GetFilesByUniqueID(ctx context.Context, uniqueIDs []string) (map[string]*domain.FileRecord, error)
	GetByPrimaryKey(ctx context.Context, fileID int32, uniqueID string) (*domain.FileRecord, error)
	GetByUniqueID(ctx context.Context, uniqueID string) (*domain.FileRecord, error)
	// GetMainFileByThread resolves the representative non-thumbnail file of a
	// forum-thread message that is not the thread's root chat.
	GetMainFileByThread(ctx context.Context, telegramID, threadChatID, messageThreadID int64) (*domain.FileRecord, error)
	GetCaptionByMediaAlbumID(ctx context.Context, mediaAlbumID int64) (string, error)

	// UpdateDownloadStatus diffs against the stored row and writes only when
	// the path or status actually changed; the returned patch is nil on no-op.
	UpdateDownloadStatus(ctx context.Context, fileID int32, uniqueID, localPath string, status domain.DownloadStatus, completionDate *int64) (*domain.DownloadPatch, error)
	UpdateTransferStatus(ctx context.Context, uniqueID string, status domain.TransferStatus, localPath string) (*domain.TransferPatch, error)
	// UpdateFileID reconciles a transport-reassigned file handle against the
	// stable unique_id, touching only the id column.
	UpdateFileID(ctx context.Context, fileID int32, uniqueID string) error
	// UpdateCaptionByMediaAlbumID applies the given caption (or, when blank,
	// any caption already stored under the album) to every album member and
	// returns the affected row count.
	UpdateCaptionByMediaAlbumID(ctx context.Context, mediaAlbumID int64, caption string) (int64, error)
	UpdateTags(ctx context.Context, uniqueID, tags string) error
	DeleteByUniqueID(ctx context.Context, uniqueID string) error

	GetDownloadStatistics(ctx context.Context, telegramID int64) (*domain.DownloadStatistics, error)
	GetGlobalDownloadStatistics(ctx context.Context) (*domain.GlobalDownloadStatistics, error)
	GetCompletedRangeStatistics(ctx context.Context, telegramID, startTime, endTime int64, granularity domain.Granularity) ([]domain.RangeBucket, error)
	CountByStatus(ctx context.Context, telegramID int64, status domain.DownloadStatus) (int, error)
	// CountWithType returns per-type counts plus the derived "media" total
	// (photo + video). Pass -1 for telegramID or chatID to skip that scope.
	CountWithType(ctx context.Context, telegramID, chatID int64) (map[string]int, error)
}
