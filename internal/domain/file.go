package domain

// DownloadStatus tracks the lifecycle of fetching a file from Telegram.
type DownloadStatus string

const (
	DownloadIdle        DownloadStatus = "idle"
	DownloadDownloading DownloadStatus = "downloading"
	DownloadPaused      DownloadStatus = "paused"
	DownloadCompleted   DownloadStatus = "completed"
	DownloadError       DownloadStatus = "error"
)

// TransferStatus tracks moving a completed download to its final destination.
type TransferStatus string

const (
	TransferIdle         TransferStatus = "idle"
	TransferTransferring TransferStatus = "transferring"
	TransferCompleted    TransferStatus = "completed"
	TransferError        TransferStatus = "error"
)

type FileType string

const (
	TypePhoto     FileType = "photo"
	TypeVideo     FileType = "video"
	TypeAudio     FileType = "audio"
	TypeFile      FileType = "file"
	TypeThumbnail FileType = "thumbnail"
)

// FileRecord is one row of file_record: a file attachment observed in a
// chat history, keyed by UniqueID. ID is the transport-assigned handle and
// may be reassigned across sessions for the same UniqueID, so it is never
// used as a lookup key on its own.
type FileRecord struct {
	ID                  int32
	UniqueID            string
	TelegramID          int64
	ChatID              int64
	MessageID           int64
	MediaAlbumID        int64
	Date                int64 // message send time, unix seconds
	HasSensitiveContent bool
	Size                int64
	DownloadedSize      int64
	Type                FileType
	MimeType            string
	FileName            string
	Thumbnail           string
	ThumbnailUniqueID   string
	Caption             string
	Extra               string
	LocalPath           string
	DownloadStatus      DownloadStatus
	StartDate           int64
	CompletionDate      *int64 // unix milliseconds, nil until a download completes
	TransferStatus      TransferStatus
	Tags                string // comma-delimited set
	ThreadChatID        int64
	MessageThreadID     int64
}

// DownloadPatch reports which download fields an update actually changed.
// Callers use it to skip change notifications on no-op writes.
type DownloadPatch struct {
	LocalPath      *string
	DownloadStatus *DownloadStatus
	CompletionDate *int64
}

// TransferPatch is the transfer-lifecycle counterpart of DownloadPatch.
type TransferPatch struct {
	LocalPath      *string
	TransferStatus *TransferStatus
}

// DownloadStatistics are per-account conditional counts, thumbnails excluded.
type DownloadStatistics struct {
	Total       int
	Downloading int
	Paused      int
	Completed   int
	Error       int
	Photo       int
	Video       int
	Audio       int
	File        int
}

// GlobalDownloadStatistics aggregates over every account.
type GlobalDownloadStatistics struct {
	Downloading    int
	Completed      int
	DownloadedSize int64
}

// Granularity selects the time-bucket width for completed-download statistics.
type Granularity int

const (
	GranularityFiveMinute Granularity = 1
	GranularityHour       Granularity = 2
	GranularityDay        Granularity = 3
	GranularityMonth      Granularity = 4 // bucketed daily, same as GranularityDay
)

// RangeBucket is one time bucket of completed downloads.
type RangeBucket struct {
	Time  string
	Total int
}

// FilePage is the result of a cursor-paginated listing: the rows, the cursor
// for the next page (0 when this page was empty) and the filter-scoped total.
type FilePage struct {
	Files      []*FileRecord
	NextCursor int64
	Total      int64
}
