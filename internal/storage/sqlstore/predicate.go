package sqlstore

import (
	"fmt"
	"strings"

	"github.com/fenwehome/telegram-files/internal/domain"
)

// predicate accumulates WHERE clauses and their bound arguments. Every caller
// value is parameter-bound; the only literals spliced into clause text come
// from fixed vocabularies (column names, enum constants).
type predicate struct {
	clauses []string
	args    []any
}

func (p *predicate) and(clause string, args ...any) {
	p.clauses = append(p.clauses, clause)
	p.args = append(p.args, args...)
}

// clone snapshots the predicate so the COUNT query can share the filter
// clauses without picking up sort guards or cursor continuation.
func (p *predicate) clone() *predicate {
	return &predicate{
		clauses: append([]string(nil), p.clauses...),
		args:    append([]any(nil), p.args...),
	}
}

func (p *predicate) where() string {
	return strings.Join(p.clauses, " AND ")
}

// buildFilterPredicate compiles the normalized filter criteria into WHERE
// clauses. Thumbnail rows are excluded unconditionally; they only carry
// preview assets.
func buildFilterPredicate(chatID int64, f *domain.FileFilter) *predicate {
	p := &predicate{}
	p.and("type != 'thumbnail'")
	if chatID != 0 {
		p.and("chat_id = ?", chatID)
	}
	if f == nil {
		return p
	}

	if f.Search != "" {
		like := "%" + f.Search + "%"
		p.and("(file_name LIKE ? OR caption LIKE ?)", like, like)
	}
	if f.Type != "" && f.Type != "all" {
		if f.Type == "media" {
			p.and("type IN ('photo', 'video')")
		} else {
			p.and("type = ?", f.Type)
		}
	}
	if f.DownloadStatus != "" {
		p.and("download_status = ?", f.DownloadStatus)
	}
	if f.TransferStatus != "" {
		p.and("transfer_status = ?", f.TransferStatus)
	}
	if len(f.Tags) > 0 {
		tests := make([]string, 0, len(f.Tags))
		args := make([]any, 0, len(f.Tags))
		for _, tag := range f.Tags {
			tests = append(tests, "tags LIKE ?")
			args = append(args, "%"+tag+"%")
		}
		p.and("("+strings.Join(tests, " OR ")+")", args...)
	}
	if f.MessageThreadID != 0 {
		p.and("message_thread_id = ?", f.MessageThreadID)
	}
	if f.DateType != "" && f.HasDateRange {
		if f.DateType == "sent" {
			// date is stored in unix seconds; the range comes in milliseconds.
			p.and("date >= ? AND date <= ?", f.DateStart/1000, f.DateEnd/1000)
		} else {
			p.and("completion_date >= ? AND completion_date <= ?", f.DateStart, f.DateEnd)
		}
	}
	if f.HasSizeRange {
		p.and("size >= ? AND size <= ?", f.SizeMin, f.SizeMax)
	}
	return p
}

const defaultOrderBy = "message_id DESC"

// sortColumns is the whitelist for caller-supplied sort fields; anything else
// keeps the default ordering.
var sortColumns = map[string]bool{
	"date":            true,
	"completion_date": true,
	"size":            true,
}

// applySort derives the ORDER BY clause and, for completion_date ordering,
// guards against NULL completion dates leaking into the page. The secondary
// message_id DESC key makes tie order deterministic; the cursor's tie-break
// depends on it.
func applySort(p *predicate, f *domain.FileFilter) string {
	if f == nil || !f.CustomSort() || !sortColumns[f.Sort] {
		return defaultOrderBy
	}
	direction := "DESC"
	if f.Order == "asc" {
		direction = "ASC"
	}
	if f.Sort == "completion_date" {
		p.and("completion_date IS NOT NULL")
	}
	return fmt.Sprintf("%s %s, message_id DESC", f.Sort, direction)
}

// applyCursor appends the continuation condition for page 2 onward. With a
// custom sort the cursor is composite: rows strictly past the sort value, or
// tied on it with a smaller message_id.
func applyCursor(p *predicate, f *domain.FileFilter) {
	if f == nil || f.FromMessageID <= 0 {
		return
	}
	if f.CustomSort() && sortColumns[f.Sort] {
		op := "<"
		if f.Order == "asc" {
			op = ">"
		}
		p.and(fmt.Sprintf("(%s %s ? OR (%s = ? AND message_id < ?))", f.Sort, op, f.Sort),
			f.FromSortField, f.FromSortField, f.FromMessageID)
		return
	}
	p.and("message_id < ?", f.FromMessageID)
}
