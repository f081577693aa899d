package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/mr1hm/go-safe-routes/internal/config"
)

// Store is a HazardRepository over database/sql. It speaks to SQLite via
// modernc.org/sqlite or to PostgreSQL via pgx's stdlib driver.
type Store struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

func NewStore(cfg config.DatabaseConfig) (*Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))

	var dsn string
	switch driver {
	case "sqlite":
		dsn = cfg.Path
	case "pgx":
		dsn = cfg.URL
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if driver == "sqlite" {
		// one physical connection; also keeps ":memory:" databases alive
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(10)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &Store{
		db:     db,
		driver: driver,
		now:    time.Now,
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error while migrating database: %w", err)
	}

	slog.Info("hazard store ready", "driver", driver)
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if s.driver == "sqlite" {
		for _, pragma := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA busy_timeout=5000;"} {
			if _, err := s.db.ExecContext(ctx, pragma); err != nil {
				slog.Warn("sqlite pragma skipped", "pragma", pragma, "error", err)
			}
		}
	}

	floatType, intType := "REAL", "INTEGER"
	if s.driver == "pgx" {
		floatType, intType = "DOUBLE PRECISION", "BIGINT"
	}

	schema := []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS hazards (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			latitude %[1]s NOT NULL,
			longitude %[1]s NOT NULL,
			severity TEXT NOT NULL,
			status TEXT NOT NULL,
			upvotes %[2]s NOT NULL DEFAULT 0,
			downvotes %[2]s NOT NULL DEFAULT 0,
			address TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			contributor_name TEXT NOT NULL DEFAULT '',
			verified_at %[2]s,
			verified_by TEXT NOT NULL DEFAULT '',
			created_at %[2]s NOT NULL,
			updated_at %[2]s NOT NULL
		)`, floatType, intType),
		`CREATE INDEX IF NOT EXISTS idx_hazards_status ON hazards(status)`,
		`CREATE INDEX IF NOT EXISTS idx_hazards_type ON hazards(type)`,
		`CREATE INDEX IF NOT EXISTS idx_hazards_location ON hazards(latitude, longitude)`,
		`CREATE INDEX IF NOT EXISTS idx_hazards_created_at ON hazards(created_at)`,
	}

	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// newPlaceholderGenerator yields "$1", "$2", ... for PostgreSQL and "?"
// for SQLite.
func newPlaceholderGenerator(driver string) func() string {
	if driver == "pgx" {
		counter := 0
		return func() string {
			counter++
			return fmt.Sprintf("$%d", counter)
		}
	}
	return func() string { return "?" }
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("hazard store: ping failed: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
