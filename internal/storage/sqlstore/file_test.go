package sqlstore

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenwehome/telegram-files/internal/domain"
)

func TestCreateAndGetByUniqueID(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	rec := testRecord(1)
	rec.Caption = "sunset"
	rec.Tags = "travel,beach"
	mustCreate(t, store, rec)

	got, err := store.GetByUniqueID(ctx, rec.UniqueID)
	require.NoError(t, err)
	require.NotNil(t, got, "created record should be found")
	assert.Equal(t, rec.UniqueID, got.UniqueID)
	assert.Equal(t, rec.MessageID, got.MessageID)
	assert.Equal(t, rec.Caption, got.Caption)
	assert.Equal(t, rec.Tags, got.Tags)
	assert.Equal(t, domain.DownloadIdle, got.DownloadStatus)
	assert.Nil(t, got.CompletionDate, "completion date is set only on completion")

	missing, err := store.GetByUniqueID(ctx, "no-such-id")
	require.NoError(t, err, "absence is not an error")
	assert.Nil(t, missing)
}

func TestCreateDuplicateFails(t *testing.T) {
	store := newTestStorage(t)

	rec := mustCreate(t, store, testRecord(1))
	dup := testRecord(2)
	dup.UniqueID = rec.UniqueID
	err := store.Create(context.Background(), dup)
	assert.Error(t, err, "duplicate unique_id should violate the primary key")
}

func TestCreateIfNotExist(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	rec := testRecord(1)
	inserted, err := store.CreateIfNotExist(ctx, rec)
	require.NoError(t, err)
	assert.True(t, inserted, "first call should insert")

	inserted, err = store.CreateIfNotExist(ctx, rec)
	require.NoError(t, err)
	assert.False(t, inserted, "second call should be a no-op")

	page, err := store.GetFiles(ctx, rec.ChatID, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total, "exactly one row should exist")
}

func TestGetByPrimaryKey(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	rec := mustCreate(t, store, testRecord(7))
	got, err := store.GetByPrimaryKey(ctx, rec.ID, rec.UniqueID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.UniqueID, got.UniqueID)

	got, err = store.GetByPrimaryKey(ctx, rec.ID+1, rec.UniqueID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetFilesExcludesThumbnails(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	mustCreate(t, store, testRecord(1))
	thumb := testRecord(2)
	thumb.Type = domain.TypeThumbnail
	mustCreate(t, store, thumb)

	page, err := store.GetFiles(ctx, 42, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	require.Len(t, page.Files, 1)
	assert.NotEqual(t, domain.TypeThumbnail, page.Files[0].Type)
}

func TestGetFilesSearch(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	named := testRecord(1)
	named.FileName = "holiday-video.mp4"
	mustCreate(t, store, named)
	captioned := testRecord(2)
	captioned.FileName = "IMG_0001.jpg"
	captioned.Caption = "holiday in rome"
	mustCreate(t, store, captioned)
	mustCreate(t, store, testRecord(3))

	page, err := store.GetFiles(ctx, 42, &domain.FileFilter{Search: "holiday", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total, "search should match file name or caption")
}

func TestGetFilesTypeFilter(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	mustCreate(t, store, testRecord(1)) // photo
	video := testRecord(2)
	video.Type = domain.TypeVideo
	mustCreate(t, store, video)
	doc := testRecord(3)
	doc.Type = domain.TypeFile
	mustCreate(t, store, doc)

	page, err := store.GetFiles(ctx, 42, &domain.FileFilter{Type: "media", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total, "media expands to photo and video")

	page, err = store.GetFiles(ctx, 42, &domain.FileFilter{Type: "file", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	page, err = store.GetFiles(ctx, 42, &domain.FileFilter{Type: "all", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total, "type all is ignored")
}

func TestGetFilesTagFilter(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	tagged := testRecord(1)
	tagged.Tags = "a,b,c"
	mustCreate(t, store, tagged)
	mustCreate(t, store, testRecord(2))

	page, err := store.GetFiles(ctx, 42, &domain.FileFilter{Tags: []string{"b"}, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	page, err = store.GetFiles(ctx, 42, &domain.FileFilter{Tags: []string{"z"}, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(0), page.Total)

	// Tag values are bound as parameters; hostile input is just a non-match.
	page, err = store.GetFiles(ctx, 42, &domain.FileFilter{Tags: []string{"z' OR '1'='1"}, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(0), page.Total)
}

func TestGetFilesStatusFilters(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	done := testRecord(1)
	done.DownloadStatus = domain.DownloadCompleted
	mustCreate(t, store, done)
	moving := testRecord(2)
	moving.TransferStatus = domain.TransferTransferring
	mustCreate(t, store, moving)

	page, err := store.GetFiles(ctx, 42, &domain.FileFilter{DownloadStatus: "completed", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	page, err = store.GetFiles(ctx, 42, &domain.FileFilter{TransferStatus: "transferring", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
}

func TestGetFilesDateRange(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	old := testRecord(1)
	old.Date = 1600000000
	mustCreate(t, store, old)
	recent := testRecord(2)
	recent.Date = 1700000500
	mustCreate(t, store, recent)
	completed := testRecord(3)
	completed.Date = 1600000000
	mustCreate(t, store, completed)
	completion := int64(1700000500000)
	_, err := store.UpdateDownloadStatus(ctx, completed.ID, completed.UniqueID, "/tmp/f", domain.DownloadCompleted, &completion)
	require.NoError(t, err)

	// Sent-date filtering: bounds arrive in milliseconds, the column is seconds.
	page, err := store.GetFiles(ctx, 42, &domain.FileFilter{
		DateType:     "sent",
		DateStart:    1700000000000,
		DateEnd:      1700001000000,
		HasDateRange: true,
		Limit:        10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	// Downloaded-date filtering binds milliseconds directly.
	page, err = store.GetFiles(ctx, 42, &domain.FileFilter{
		DateType:     "downloaded",
		DateStart:    1700000000000,
		DateEnd:      1700001000000,
		HasDateRange: true,
		Limit:        10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
}

func TestGetFilesSizeRange(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	small := testRecord(1)
	small.Size = 10 << 10
	mustCreate(t, store, small)
	big := testRecord(2)
	big.Size = 10 << 20
	mustCreate(t, store, big)

	page, err := store.GetFiles(ctx, 42, &domain.FileFilter{
		SizeMin:      1 << 20,
		SizeMax:      100 << 20,
		HasSizeRange: true,
		Limit:        10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
}

func collectPages(t *testing.T, store *Storage, filter func(cursor int64, last *domain.FileRecord) *domain.FileFilter) []int64 {
	t.Helper()
	var visited []int64
	var cursor int64
	var last *domain.FileRecord
	for {
		page, err := store.GetFiles(context.Background(), 42, filter(cursor, last))
		require.NoError(t, err)
		if len(page.Files) == 0 {
			assert.Zero(t, page.NextCursor, "empty page yields cursor 0")
			return visited
		}
		for _, f := range page.Files {
			visited = append(visited, f.MessageID)
		}
		last = page.Files[len(page.Files)-1]
		cursor = page.NextCursor
		require.Equal(t, last.MessageID, cursor, "cursor comes from the last returned row")
	}
}

func TestPaginationDefaultOrder(t *testing.T) {
	store := newTestStorage(t)
	for i := int64(1); i <= 5; i++ {
		mustCreate(t, store, testRecord(i))
	}

	visited := collectPages(t, store, func(cursor int64, _ *domain.FileRecord) *domain.FileFilter {
		return &domain.FileFilter{Limit: 2, FromMessageID: cursor}
	})
	assert.Equal(t, []int64{5, 4, 3, 2, 1}, visited, "every row exactly once, newest first")
}

func TestPaginationCustomSortWithTieBreak(t *testing.T) {
	store := newTestStorage(t)
	// Two size ties to exercise the (sort = from AND message_id < cursor) branch.
	sizes := map[int64]int64{1: 100, 2: 300, 3: 100, 4: 200, 5: 300}
	for msgID, size := range sizes {
		rec := testRecord(msgID)
		rec.Size = size
		mustCreate(t, store, rec)
	}

	asc := collectPages(t, store, func(cursor int64, last *domain.FileRecord) *domain.FileFilter {
		f := &domain.FileFilter{Limit: 2, Sort: "size", Order: "asc", FromMessageID: cursor}
		if last != nil {
			f.FromSortField = last.Size
		}
		return f
	})
	assert.ElementsMatch(t, []int64{1, 2, 3, 4, 5}, asc, "ascending walk visits every row exactly once")
	assert.Equal(t, []int64{3, 1, 4, 5, 2}, asc, "size asc, ties broken by message_id desc")

	desc := collectPages(t, store, func(cursor int64, last *domain.FileRecord) *domain.FileFilter {
		f := &domain.FileFilter{Limit: 2, Sort: "size", Order: "desc", FromMessageID: cursor}
		if last != nil {
			f.FromSortField = last.Size
		}
		return f
	})
	assert.Equal(t, []int64{5, 2, 4, 3, 1}, desc, "size desc, ties broken by message_id desc")
}

func TestPaginationCompletionDateSortSkipsNulls(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	pending := mustCreate(t, store, testRecord(1))
	done := mustCreate(t, store, testRecord(2))
	completion := int64(1700000000000)
	_, err := store.UpdateDownloadStatus(ctx, done.ID, done.UniqueID, "/tmp/done", domain.DownloadCompleted, &completion)
	require.NoError(t, err)

	page, err := store.GetFiles(ctx, 42, &domain.FileFilter{Limit: 10, Sort: "completion_date", Order: "desc"})
	require.NoError(t, err)
	require.Len(t, page.Files, 1, "rows without completion date are excluded under completion_date sort")
	assert.Equal(t, done.UniqueID, page.Files[0].UniqueID)
	_ = pending
}

func TestGetFilesByUniqueID(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	a := mustCreate(t, store, testRecord(1))
	b := mustCreate(t, store, testRecord(2))

	got, err := store.GetFilesByUniqueID(ctx, []string{a.UniqueID, b.UniqueID, a.UniqueID, "", "missing"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, got, a.UniqueID)
	assert.Contains(t, got, b.UniqueID)

	got, err = store.GetFilesByUniqueID(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetMainFileByThread(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	// A file inside the thread's root chat must not be the main file.
	root := testRecord(1)
	root.ChatID = 100
	root.ThreadChatID = 100
	root.MessageThreadID = 9
	mustCreate(t, store, root)

	thumb := testRecord(2)
	thumb.ChatID = 200
	thumb.ThreadChatID = 100
	thumb.MessageThreadID = 9
	thumb.Type = domain.TypeThumbnail
	mustCreate(t, store, thumb)

	main := testRecord(3)
	main.ChatID = 200
	main.ThreadChatID = 100
	main.MessageThreadID = 9
	mustCreate(t, store, main)

	got, err := store.GetMainFileByThread(ctx, 1001, 100, 9)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, main.UniqueID, got.UniqueID)

	got, err = store.GetMainFileByThread(ctx, 1001, 100, 8)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateDownloadStatus(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	rec := testRecord(1)
	rec.Caption = "keep me"
	mustCreate(t, store, rec)

	completion := int64(1700000000000)
	patch, err := store.UpdateDownloadStatus(ctx, rec.ID, rec.UniqueID, "/data/photo.jpg", domain.DownloadCompleted, &completion)
	require.NoError(t, err)
	require.NotNil(t, patch, "a real change returns a patch")
	require.NotNil(t, patch.LocalPath)
	assert.Equal(t, "/data/photo.jpg", *patch.LocalPath)
	require.NotNil(t, patch.DownloadStatus)
	assert.Equal(t, domain.DownloadCompleted, *patch.DownloadStatus)
	require.NotNil(t, patch.CompletionDate)
	assert.Equal(t, completion, *patch.CompletionDate)

	got, err := store.GetByUniqueID(ctx, rec.UniqueID)
	require.NoError(t, err)
	assert.Equal(t, "/data/photo.jpg", got.LocalPath)
	assert.Equal(t, domain.DownloadCompleted, got.DownloadStatus)
	require.NotNil(t, got.CompletionDate)
	assert.Equal(t, completion, *got.CompletionDate)
	assert.Equal(t, "keep me", got.Caption, "unrelated fields are never clobbered")
}

func TestUpdateDownloadStatusNoop(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	rec := mustCreate(t, store, testRecord(1))

	// Same status and same (blank) path as stored.
	patch, err := store.UpdateDownloadStatus(ctx, rec.ID, rec.UniqueID, "", domain.DownloadIdle, nil)
	require.NoError(t, err)
	assert.Nil(t, patch, "no diff means no patch and no write")

	// Blank path and unset status short-circuit before the read.
	patch, err = store.UpdateDownloadStatus(ctx, rec.ID, rec.UniqueID, "", "", nil)
	require.NoError(t, err)
	assert.Nil(t, patch)

	// Unknown key is a valid no-op, not an error.
	patch, err = store.UpdateDownloadStatus(ctx, 1, "missing", "/tmp/x", domain.DownloadCompleted, nil)
	require.NoError(t, err)
	assert.Nil(t, patch)
}

func TestUpdateDownloadStatusPartialPatch(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	rec := mustCreate(t, store, testRecord(1))
	_, err := store.UpdateDownloadStatus(ctx, rec.ID, rec.UniqueID, "/tmp/a", domain.DownloadDownloading, nil)
	require.NoError(t, err)

	// Only the status moves; the path stays as stored.
	patch, err := store.UpdateDownloadStatus(ctx, rec.ID, rec.UniqueID, "/tmp/a", domain.DownloadPaused, nil)
	require.NoError(t, err)
	require.NotNil(t, patch)
	assert.Nil(t, patch.LocalPath, "patch contains only changed fields")
	require.NotNil(t, patch.DownloadStatus)
	assert.Equal(t, domain.DownloadPaused, *patch.DownloadStatus)

	got, err := store.GetByUniqueID(ctx, rec.UniqueID)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/a", got.LocalPath, "unchanged path keeps its stored value")
}

func TestUpdateTransferStatus(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	rec := mustCreate(t, store, testRecord(1))

	patch, err := store.UpdateTransferStatus(ctx, rec.UniqueID, domain.TransferCompleted, "/mnt/archive/photo.jpg")
	require.NoError(t, err)
	require.NotNil(t, patch)
	require.NotNil(t, patch.LocalPath)
	assert.Equal(t, "/mnt/archive/photo.jpg", *patch.LocalPath)
	require.NotNil(t, patch.TransferStatus)
	assert.Equal(t, domain.TransferCompleted, *patch.TransferStatus)

	// Repeating the same transition is a no-op.
	patch, err = store.UpdateTransferStatus(ctx, rec.UniqueID, domain.TransferCompleted, "/mnt/archive/photo.jpg")
	require.NoError(t, err)
	assert.Nil(t, patch)

	got, err := store.GetByUniqueID(ctx, rec.UniqueID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferCompleted, got.TransferStatus)
}

func TestUpdateFileID(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	rec := testRecord(1)
	rec.LocalPath = "/tmp/photo.jpg"
	mustCreate(t, store, rec)

	// Stored handle already matches: no-op.
	require.NoError(t, store.UpdateFileID(ctx, rec.ID, rec.UniqueID))

	// Transport reassigned the handle.
	require.NoError(t, store.UpdateFileID(ctx, rec.ID+100, rec.UniqueID))
	got, err := store.GetByUniqueID(ctx, rec.UniqueID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID+100, got.ID)
	assert.Equal(t, "/tmp/photo.jpg", got.LocalPath, "only the id column moves")

	// Unknown key and zero handle are no-ops.
	require.NoError(t, store.UpdateFileID(ctx, 5, "missing"))
	require.NoError(t, store.UpdateFileID(ctx, 0, rec.UniqueID))
}

func TestCaptionPropagation(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	first := testRecord(1)
	first.MediaAlbumID = 77
	mustCreate(t, store, first)

	captioned := testRecord(2)
	captioned.MediaAlbumID = 77
	captioned.Caption = "hi"
	mustCreate(t, store, captioned)

	// A member created after the captioned one inherits it on insert.
	late := testRecord(3)
	late.MediaAlbumID = 77
	mustCreate(t, store, late)

	for _, rec := range []*domain.FileRecord{first, captioned, late} {
		got, err := store.GetByUniqueID(ctx, rec.UniqueID)
		require.NoError(t, err)
		assert.Equal(t, "hi", got.Caption, "album members converge on one caption")
	}
}

func TestUpdateCaptionByMediaAlbumID(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	a := testRecord(1)
	a.MediaAlbumID = 5
	mustCreate(t, store, a)
	b := testRecord(2)
	b.MediaAlbumID = 5
	mustCreate(t, store, b)

	affected, err := store.UpdateCaptionByMediaAlbumID(ctx, 5, "group shot")
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)

	caption, err := store.GetCaptionByMediaAlbumID(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "group shot", caption)

	// Blank caption with nothing stored resolves to a no-op.
	affected, err = store.UpdateCaptionByMediaAlbumID(ctx, 99, "")
	require.NoError(t, err)
	assert.Zero(t, affected)

	// Non-positive album ids never touch the database.
	affected, err = store.UpdateCaptionByMediaAlbumID(ctx, 0, "ignored")
	require.NoError(t, err)
	assert.Zero(t, affected)
}

func TestUpdateTagsAndDelete(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	rec := mustCreate(t, store, testRecord(1))
	require.NoError(t, store.UpdateTags(ctx, rec.UniqueID, "work,urgent"))

	got, err := store.GetByUniqueID(ctx, rec.UniqueID)
	require.NoError(t, err)
	assert.Equal(t, "work,urgent", got.Tags)

	require.NoError(t, store.DeleteByUniqueID(ctx, rec.UniqueID))
	got, err = store.GetByUniqueID(ctx, rec.UniqueID)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Blank keys are guarded no-ops.
	require.NoError(t, store.UpdateTags(ctx, "", "x"))
	require.NoError(t, store.DeleteByUniqueID(ctx, ""))
}

func TestDeleteEvictsAlbumCaption(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	rec := testRecord(1)
	rec.MediaAlbumID = 88
	rec.Caption = "farewell"
	mustCreate(t, store, rec)

	caption, err := store.GetCaptionByMediaAlbumID(ctx, 88)
	require.NoError(t, err)
	assert.Equal(t, "farewell", caption)

	require.NoError(t, store.DeleteByUniqueID(ctx, rec.UniqueID))

	// With the album gone the cached caption must not survive the delete.
	caption, err = store.GetCaptionByMediaAlbumID(ctx, 88)
	require.NoError(t, err)
	assert.Empty(t, caption)
}

func TestGetCaptionByMediaAlbumIDRecordsFailures(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	require.NoError(t, store.db.Close())

	before := testutil.ToFloat64(queryFailures.WithLabelValues("getCaptionByMediaAlbumId"))
	_, err := store.GetCaptionByMediaAlbumID(ctx, 999)
	require.Error(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(queryFailures.WithLabelValues("getCaptionByMediaAlbumId")))
}
