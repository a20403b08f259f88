// Package repotest opens throwaway in-memory databases for tests.
package repotest

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus/hooks/test"
	"gorm.io/gorm"

	"imgserv/src/repository"
)

var counter atomic.Int64

// NewDB returns a migrated in-memory SQLite database private to t.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:memdb%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", counter.Add(1))
	logger, _ := test.NewNullLogger()
	db, err := repository.OpenDialector(sqlite.Open(dsn), logger)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := repository.Migrate(db); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	t.Cleanup(func() { _ = repository.Close(db) })
	return db
}
