package sqlstore

import (
	"fmt"
	"strings"

	"github.com/fenwehome/telegram-files/internal/domain"
)

// Dialect identifies the SQL backend. Queries are written once with ?
// placeholders; everything dialect-specific lives in this file.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

func (d Dialect) driverName() (string, error) {
	switch d {
	case DialectSQLite:
		return "sqlite3", nil
	case DialectPostgres:
		return "postgres", nil
	case DialectMySQL:
		return "mysql", nil
	default:
		return "", fmt.Errorf("unknown dialect %q", d)
	}
}

// rebind rewrites ? placeholders to $1..$N for postgres. The other two
// drivers take ? natively.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// timeBucketExpr formats completion_date (unix milliseconds) into the bucket
// label for the given granularity. Five-minute buckets are not expressible
// portably, so granularity 1 truncates to the minute here and is re-grouped
// client-side.
func (d Dialect) timeBucketExpr(g domain.Granularity) string {
	switch d {
	case DialectPostgres:
		return fmt.Sprintf("TO_CHAR(TO_TIMESTAMP(completion_date / 1000), '%s')", pgBucketFormat(g))
	case DialectMySQL:
		return fmt.Sprintf("DATE_FORMAT(FROM_UNIXTIME(completion_date / 1000), '%s')", mysqlBucketFormat(g))
	default:
		return fmt.Sprintf("strftime('%s', datetime(completion_date / 1000, 'unixepoch'), 'localtime')", sqliteBucketFormat(g))
	}
}

func pgBucketFormat(g domain.Granularity) string {
	switch g {
	case domain.GranularityFiveMinute:
		return "YYYY-MM-DD HH24:MI"
	case domain.GranularityHour:
		return "YYYY-MM-DD HH24:00"
	default:
		return "YYYY-MM-DD"
	}
}

func mysqlBucketFormat(g domain.Granularity) string {
	switch g {
	case domain.GranularityFiveMinute:
		return "%Y-%m-%d %H:%i"
	case domain.GranularityHour:
		return "%Y-%m-%d %H:00"
	default:
		return "%Y-%m-%d"
	}
}

// sqlite spells the minute directive %M where mysql uses %i.
func sqliteBucketFormat(g domain.Granularity) string {
	switch g {
	case domain.GranularityFiveMinute:
		return "%Y-%m-%d %H:%M"
	case domain.GranularityHour:
		return "%Y-%m-%d %H:00"
	default:
		return "%Y-%m-%d"
	}
}
