package testutil

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"gorm.io/gorm"

	"github.com/yungbote/readsession-backend/internal/db"
	"github.com/yungbote/readsession-backend/internal/platform/logger"
)

var (
	logOnce sync.Once
	logg    *logger.Logger
	logErr  error
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

// DB returns a freshly migrated database private to the calling test.
// It is a SQLite file under the test's temp dir, so it survives the pool
// dropping a connection after a cancelled query. TEST_POSTGRES_DSN switches
// to a real Postgres.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	cfg := db.Config{
		Driver: "sqlite",
		DSN:    "file:" + filepath.Join(tb.TempDir(), "reading.db") + "?_busy_timeout=5000",
		Quiet:  true,
	}
	if dsn := os.Getenv("TEST_POSTGRES_DSN"); dsn != "" {
		cfg = db.Config{Driver: "postgres", DSN: dsn, Quiet: true}
	}

	svc, err := db.NewService(Logger(tb), cfg)
	if err != nil {
		tb.Fatalf("failed to init test db: %v", err)
	}
	if err := svc.AutoMigrateAll(); err != nil {
		tb.Fatalf("failed to migrate test db: %v", err)
	}
	tb.Cleanup(func() { _ = svc.Close() })
	return svc.DB()
}
