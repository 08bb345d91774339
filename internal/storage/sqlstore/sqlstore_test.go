package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fenwehome/telegram-files/internal/domain"
)

// newTestStorage opens a migrated sqlite database in a per-test temp dir.
func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	store, err := Open(DialectSQLite, filepath.Join(t.TempDir(), "files.db"))
	require.NoError(t, err, "Open should not return an error")
	require.NoError(t, store.Migrate(), "Migrate should not return an error")
	t.Cleanup(func() { store.Cleanup() })
	return store
}

// testRecord builds a plausible photo record; tweak fields per test.
func testRecord(messageID int64) *domain.FileRecord {
	return &domain.FileRecord{
		ID:             int32(messageID),
		UniqueID:       uuid.NewString(),
		TelegramID:     1001,
		ChatID:         42,
		MessageID:      messageID,
		Date:           1700000000 + messageID,
		Size:           1 << 20,
		Type:           domain.TypePhoto,
		MimeType:       "image/jpeg",
		FileName:       "photo.jpg",
		DownloadStatus: domain.DownloadIdle,
		TransferStatus: domain.TransferIdle,
	}
}

func mustCreate(t *testing.T, store *Storage, rec *domain.FileRecord) *domain.FileRecord {
	t.Helper()
	require.NoError(t, store.Create(context.Background(), rec), "Create should not return an error")
	return rec
}
