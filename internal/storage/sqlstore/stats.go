package sqlstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fenwehome/telegram-files/internal/domain"
	"github.com/fenwehome/telegram-files/internal/logger"
)

// GetDownloadStatistics returns per-account conditional counts. Thumbnail
// rows never participate in statistics.
func (s *Storage) GetDownloadStatistics(ctx context.Context, telegramID int64) (*domain.DownloadStatistics, error) {
	start := time.Now()
	var stats domain.DownloadStatistics
	err := s.row(ctx, `
		SELECT COUNT(*)                                                                       AS total,
		       COUNT(CASE WHEN download_status = 'downloading' THEN 1 END)                    AS downloading,
		       COUNT(CASE WHEN download_status = 'paused' THEN 1 END)                         AS paused,
		       COUNT(CASE WHEN download_status = 'completed' THEN 1 END)                      AS completed,
		       COUNT(CASE WHEN download_status = 'error' THEN 1 END)                          AS error,
		       COUNT(CASE WHEN download_status = 'completed' AND type = 'photo' THEN 1 END)   AS photo,
		       COUNT(CASE WHEN download_status = 'completed' AND type = 'video' THEN 1 END)   AS video,
		       COUNT(CASE WHEN download_status = 'completed' AND type = 'audio' THEN 1 END)   AS audio,
		       COUNT(CASE WHEN download_status = 'completed' AND type = 'file' THEN 1 END)    AS file
		FROM file_record
		WHERE telegram_id = ? AND type != 'thumbnail'`,
		telegramID).Scan(
		&stats.Total, &stats.Downloading, &stats.Paused, &stats.Completed, &stats.Error,
		&stats.Photo, &stats.Video, &stats.Audio, &stats.File,
	)
	observe("getDownloadStatistics", start, err)
	if err != nil {
		logger.Log.Error("failed to get download statistics", "telegram_id", telegramID, "error", err)
		return nil, fmt.Errorf("getDownloadStatistics: %w", err)
	}
	return &stats, nil
}

// GetGlobalDownloadStatistics aggregates across all accounts, including the
// total bytes of completed downloads.
func (s *Storage) GetGlobalDownloadStatistics(ctx context.Context) (*domain.GlobalDownloadStatistics, error) {
	start := time.Now()
	var stats domain.GlobalDownloadStatistics
	err := s.row(ctx, `
		SELECT COUNT(CASE WHEN download_status = 'downloading' THEN 1 END)                   AS downloading,
		       COUNT(CASE WHEN download_status = 'completed' THEN 1 END)                     AS completed,
		       COALESCE(SUM(CASE WHEN download_status = 'completed' THEN size ELSE 0 END), 0) AS downloaded_size
		FROM file_record
		WHERE type != 'thumbnail'`).Scan(
		&stats.Downloading, &stats.Completed, &stats.DownloadedSize,
	)
	observe("getGlobalDownloadStatistics", start, err)
	if err != nil {
		logger.Log.Error("failed to get global download statistics", "error", err)
		return nil, fmt.Errorf("getGlobalDownloadStatistics: %w", err)
	}
	return &stats, nil
}

// GetCompletedRangeStatistics buckets completed downloads over
// [startTime, endTime] (unix milliseconds). For five-minute granularity the
// SQL can only truncate to the minute portably, so a second in-memory pass
// floors each bucket to its five-minute boundary and re-sums.
func (s *Storage) GetCompletedRangeStatistics(ctx context.Context, telegramID, startTime, endTime int64,
	granularity domain.Granularity) ([]domain.RangeBucket, error) {
	query := fmt.Sprintf(`
		SELECT %s AS time, COUNT(*) AS total
		FROM file_record
		WHERE telegram_id = ?
		  AND completion_date IS NOT NULL
		  AND completion_date >= ?
		  AND completion_date <= ?
		  AND type != 'thumbnail'
		GROUP BY time
		ORDER BY time`, s.dialect.timeBucketExpr(granularity))

	rows, err := s.query(ctx, "getCompletedRangeStatistics", query, telegramID, startTime, endTime)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buckets []domain.RangeBucket
	for rows.Next() {
		var b domain.RangeBucket
		if err := rows.Scan(&b.Time, &b.Total); err != nil {
			return nil, fmt.Errorf("getCompletedRangeStatistics: %w", err)
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("getCompletedRangeStatistics: %w", err)
	}
	if granularity == domain.GranularityFiveMinute {
		return groupByFiveMinutes(buckets)
	}
	return buckets, nil
}

const minuteBucketLayout = "2006-01-02 15:04"

// groupByFiveMinutes floors per-minute buckets to the preceding multiple of
// five minutes, re-sums and re-sorts ascending.
func groupByFiveMinutes(buckets []domain.RangeBucket) ([]domain.RangeBucket, error) {
	sums := make(map[string]int, len(buckets))
	for _, b := range buckets {
		ts, err := time.ParseInLocation(minuteBucketLayout, b.Time, time.Local)
		if err != nil {
			return nil, fmt.Errorf("unexpected minute bucket %q: %w", b.Time, err)
		}
		floored := ts.Add(-time.Duration(ts.Minute()%5) * time.Minute)
		sums[floored.Format(minuteBucketLayout)] += b.Total
	}
	result := make([]domain.RangeBucket, 0, len(sums))
	for t, total := range sums {
		result = append(result, domain.RangeBucket{Time: t, Total: total})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Time < result[j].Time })
	return result, nil
}

func (s *Storage) CountByStatus(ctx context.Context, telegramID int64, status domain.DownloadStatus) (int, error) {
	start := time.Now()
	var count int
	err := s.row(ctx, `
		SELECT COUNT(*)
		FROM file_record
		WHERE telegram_id = ? AND download_status = ? AND type != 'thumbnail'`,
		telegramID, status).Scan(&count)
	observe("countByStatus", start, err)
	if err != nil {
		logger.Log.Error("failed to count by status", "telegram_id", telegramID, "status", status, "error", err)
		return 0, fmt.Errorf("countByStatus: %w", err)
	}
	return count, nil
}

// CountWithType returns per-type counts plus a derived "media" total. The
// media sum comes from the fetched rows rather than another query.
func (s *Storage) CountWithType(ctx context.Context, telegramID, chatID int64) (map[string]int, error) {
	p := &predicate{}
	p.and("type != 'thumbnail'")
	if telegramID != -1 {
		p.and("telegram_id = ?", telegramID)
	}
	if chatID != -1 {
		p.and("chat_id = ?", chatID)
	}

	query := fmt.Sprintf(`SELECT type, COUNT(*) AS count FROM file_record WHERE %s GROUP BY type`, p.where())
	rows, err := s.query(ctx, "countWithType", query, p.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int)
	media := 0
	for rows.Next() {
		var fileType string
		var count int
		if err := rows.Scan(&fileType, &count); err != nil {
			return nil, fmt.Errorf("countWithType: %w", err)
		}
		result[fileType] = count
		if fileType == string(domain.TypePhoto) || fileType == string(domain.TypeVideo) {
			media += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("countWithType: %w", err)
	}
	result["media"] = media
	return result, nil
}
