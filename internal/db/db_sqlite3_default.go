//go:build !sqlite3_cgo

package db

import (
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const driverID = "ncruces/go-sqlite3"
const driverName = "sqlite3"

// pragmas are applied per connection through the dsn, not once on the pool
func sqliteFileDSN(path string) string {
	return fmt.Sprintf("file:%s?_txlock=immediate&_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
}

func sqliteMemoryDSN() string {
	return "file::memory:?_pragma=foreign_keys(1)"
}
