package database

import (
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
)

var currentDriver atomic.Value

func init() {
	currentDriver.Store("mysql")
}

// SetDriver records the database/sql driver name in use so ConvertPlaceholders
// targets the right placeholder syntax. appctx.New calls this once, before
// any query runs, with the same driver name it passes to sqlx.NewDb.
func SetDriver(driver string) {
	currentDriver.Store(strings.ToLower(driver))
}

func isPostgres() bool {
	return currentDriver.Load().(string) == "postgres"
}

var dollarPlaceholder = regexp.MustCompile(`\$\d+`)

// ConvertPlaceholders rewrites a query written with portable "?" placeholders
// into the active driver's native syntax: unchanged for MySQL/SQLite, "$1,
// $2, ..." for PostgreSQL. Queries already written with $N placeholders are
// converted back to "?" when the active driver isn't PostgreSQL.
func ConvertPlaceholders(query string) string {
	if !isPostgres() {
		if dollarPlaceholder.MatchString(query) {
			query = dollarPlaceholder.ReplaceAllString(query, "?")
		}
		return query
	}

	if !strings.Contains(query, "?") {
		return query
	}

	var b strings.Builder
	param := 1
	for _, c := range query {
		if c == '?' {
			fmt.Fprintf(&b, "$%d", param)
			param++
		} else {
			b.WriteRune(c)
		}
	}
	return b.String()
}
