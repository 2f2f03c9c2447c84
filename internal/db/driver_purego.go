//go:build !cgo

package db

import (
	"fmt"

	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

func dsn(path string) string {
	if path == ":memory:" {
		return ":memory:?_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)"
	}
	return fmt.Sprintf("file:%s?_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)", path)
}
