package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidFilter marks caller-input problems detected before any query is built.
var ErrInvalidFilter = errors.New("invalid file filter")

var validate = validator.New()

const DefaultPageSize = 20

// FileFilter is the typed form of the free-form query-string criteria accepted
// by file listings. Zero values mean "not set".
type FileFilter struct {
	Search          string
	Type            string `validate:"omitempty,oneof=all media photo video audio file"`
	DownloadStatus  string `validate:"omitempty,oneof=idle downloading paused completed error"`
	TransferStatus  string `validate:"omitempty,oneof=idle transferring completed error"`
	Tags            []string
	MessageThreadID int64
	DateType        string `validate:"omitempty,oneof=sent downloaded"`
	DateStart       int64 // unix milliseconds, inclusive
	DateEnd         int64 // unix milliseconds, inclusive
	HasDateRange    bool
	SizeMin         int64 // bytes, inclusive
	SizeMax         int64 // bytes, inclusive
	HasSizeRange    bool
	Sort            string `validate:"omitempty,oneof=date completion_date size"`
	Order           string `validate:"omitempty,oneof=asc desc"`
	FromMessageID   int64
	FromSortField   int64
	Limit           int `validate:"gte=1,lte=500"`
}

// ParseFileFilter converts the raw string map coming off a query string into a
// validated FileFilter. Unparseable numbers and dates are rejected here so a
// parse failure never escapes as a fault during query construction.
func ParseFileFilter(raw map[string]string) (*FileFilter, error) {
	f := &FileFilter{
		Search:         strings.TrimSpace(raw["search"]),
		Type:           raw["type"],
		DownloadStatus: raw["downloadStatus"],
		TransferStatus: raw["transferStatus"],
		DateType:       raw["dateType"],
		Sort:           raw["sort"],
		Order:          raw["order"],
		Limit:          DefaultPageSize,
	}

	for _, tag := range strings.Split(raw["tags"], ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			f.Tags = append(f.Tags, tag)
		}
	}

	var err error
	if f.MessageThreadID, err = parseIntKey(raw, "messageThreadId"); err != nil {
		return nil, err
	}
	if f.FromMessageID, err = parseIntKey(raw, "fromMessageId"); err != nil {
		return nil, err
	}
	if f.FromSortField, err = parseIntKey(raw, "fromSortField"); err != nil {
		return nil, err
	}
	if v := raw["limit"]; v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: limit %q", ErrInvalidFilter, v)
		}
		f.Limit = limit
	}

	if err := f.parseDateRange(raw["dateRange"]); err != nil {
		return nil, err
	}
	if err := f.parseSizeRange(raw["sizeRange"], raw["sizeUnit"]); err != nil {
		return nil, err
	}

	if err := validate.Struct(f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	return f, nil
}

// parseDateRange accepts a csv of two ISO dates and widens them to an
// inclusive [start of first day, end of last day] millisecond range.
func (f *FileFilter) parseDateRange(dateRange string) error {
	if dateRange == "" {
		return nil
	}
	parts := strings.Split(dateRange, ",")
	if len(parts) != 2 {
		return nil
	}
	start, err := time.ParseInLocation(time.DateOnly, parts[0], time.Local)
	if err != nil {
		return fmt.Errorf("%w: dateRange start %q", ErrInvalidFilter, parts[0])
	}
	end, err := time.ParseInLocation(time.DateOnly, parts[1], time.Local)
	if err != nil {
		return fmt.Errorf("%w: dateRange end %q", ErrInvalidFilter, parts[1])
	}
	f.DateStart = start.UnixMilli()
	f.DateEnd = end.AddDate(0, 0, 1).UnixMilli() - 1
	f.HasDateRange = true
	return nil
}

func (f *FileFilter) parseSizeRange(sizeRange, sizeUnit string) error {
	if sizeRange == "" || sizeUnit == "" {
		return nil
	}
	parts := strings.Split(sizeRange, ",")
	if len(parts) != 2 {
		return nil
	}
	unit, err := unitMultiplier(sizeUnit)
	if err != nil {
		return err
	}
	min, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: sizeRange min %q", ErrInvalidFilter, parts[0])
	}
	max, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: sizeRange max %q", ErrInvalidFilter, parts[1])
	}
	f.SizeMin = min * unit
	f.SizeMax = max * unit
	f.HasSizeRange = true
	return nil
}

func unitMultiplier(unit string) (int64, error) {
	switch strings.ToUpper(unit) {
	case "B":
		return 1, nil
	case "KB":
		return 1 << 10, nil
	case "MB":
		return 1 << 20, nil
	case "GB":
		return 1 << 30, nil
	default:
		return 0, fmt.Errorf("%w: sizeUnit %q", ErrInvalidFilter, unit)
	}
}

func parseIntKey(raw map[string]string, key string) (int64, error) {
	v := raw[key]
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", ErrInvalidFilter, key, v)
	}
	return n, nil
}

// CustomSort reports whether the caller asked for a non-default ordering,
// which switches pagination to the composite cursor.
func (f *FileFilter) CustomSort() bool {
	return f.Sort != "" && f.Order != ""
}
