package testutil

import (
	"OptionLedger/internal/persistence"
	"context"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Addr returns a deterministic test address ending in n.
func Addr(n uint64) common.Address {
	return common.BigToAddress(new(big.Int).SetUint64(n))
}

// E returns n * 10^decimals.
func E(n int64, decimals int) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
}

// TestDatabaseURL returns the audit database for integration tests.
// OPTIONLEDGER_TEST_DB selects a Postgres instance; without it each test gets
// its own SQLite file.
func TestDatabaseURL(t *testing.T) string {
	t.Helper()
	if url := os.Getenv("OPTIONLEDGER_TEST_DB"); url != "" {
		return url
	}
	return "sqlite://" + filepath.Join(t.TempDir(), "audit.db")
}

// TestNATSURL returns the NATS URL for integration tests.
func TestNATSURL() string {
	if url := os.Getenv("OPTIONLEDGER_TEST_NATS"); url != "" {
		return url
	}
	return "nats://localhost:4223"
}

// SetupTestDB opens the test database and runs every migration.
// Postgres tables are truncated on cleanup; SQLite files vanish with TempDir.
func SetupTestDB(t *testing.T) *persistence.DB {
	t.Helper()

	db, err := persistence.Open(TestDatabaseURL(t))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		t.Skipf("test database not available: %v", err)
	}
	if _, err := persistence.NewMigrator(db, MigrationsDir(t)).Up(ctx); err != nil {
		db.Close()
		t.Fatalf("migrate test db: %v", err)
	}

	t.Cleanup(func() {
		if db.Dialect() == persistence.DialectPostgres {
			for _, table := range []string{"batch_outcomes", "processed_batches"} {
				db.Exec(fmt.Sprintf("TRUNCATE %s", table))
			}
		}
		db.Close()
	})
	return db
}

// MigrationsDir finds migrations/ next to go.mod above the working directory.
func MigrationsDir(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return filepath.Join(dir, "migrations")
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("go.mod not found above working directory")
		}
		dir = parent
	}
}

// RequireIntegration skips the test if not running integration tests.
func RequireIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv("INTEGRATION_TEST") == "" {
		t.Skip("skipping integration test (set INTEGRATION_TEST=1 to run)")
	}
}
