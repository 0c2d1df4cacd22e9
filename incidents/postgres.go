package incidents

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/baronsmv/navi/risk"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresSource reads incidents from the incidents table of a PostgreSQL database.
type PostgresSource struct {
	db *sql.DB
}

var (
	_ Source = (*PostgresSource)(nil)
	_ Writer = (*PostgresSource)(nil)
)

// migrationsTable keeps the schema version apart from other tools sharing the database.
const migrationsTable = "navi_incident_migrations"

// OpenPostgres connects to databaseURL, configures the pool and brings the incidents schema up to
// date.
func OpenPostgres(databaseURL string, logger *zap.Logger) (*PostgresSource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping incident database: %w", err)
	}

	version, err := migrateIncidents(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("incident schema ready",
		zap.String("table", migrationsTable),
		zap.Uint("version", version),
	)
	return newWithDB(db), nil
}

func newWithDB(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func migrationSource() (source.Driver, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read embedded incident migrations: %w", err)
	}
	return src, nil
}

// migrateIncidents applies pending migrations and returns the resulting schema version.
func migrateIncidents(db *sql.DB) (uint, error) {
	src, err := migrationSource()
	if err != nil {
		return 0, err
	}
	target, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return 0, fmt.Errorf("prepare incident migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", target)
	if err != nil {
		return 0, fmt.Errorf("prepare incident migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("migrate incident schema: %w", err)
	}
	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("read incident schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("incident schema version %d is dirty", version)
	}
	return version, nil
}

// Close releases the connection pool.
func (s *PostgresSource) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

const listActiveQuery = `SELECT id, type, severity, occurred_at, status, latitude, longitude, description
FROM incidents
WHERE status IN ('in_progress', 'unresolved')
ORDER BY id`

// List returns the incidents that still count towards risk.
func (s *PostgresSource) List(ctx context.Context) ([]risk.Incident, error) {
	rows, err := s.db.QueryContext(ctx, listActiveQuery)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	var out []risk.Incident
	for rows.Next() {
		var (
			inc           risk.Incident
			typ, status   string
			description   sql.NullString
			occurredAt    time.Time
			severity      int
			latitude, lon float64
		)
		if err := rows.Scan(&inc.ID, &typ, &severity, &occurredAt, &status, &latitude, &lon, &description); err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		inc.Type = risk.Type(typ)
		inc.Severity = severity
		inc.OccurredAt = occurredAt.UTC()
		inc.Status = risk.Status(status)
		inc.Latitude = latitude
		inc.Longitude = lon
		inc.Description = description.String
		out = append(out, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}
	return out, nil
}

const upsertQuery = `INSERT INTO incidents (id, type, severity, occurred_at, status, latitude, longitude, description, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
ON CONFLICT (id) DO UPDATE SET
    type = EXCLUDED.type,
    severity = EXCLUDED.severity,
    occurred_at = EXCLUDED.occurred_at,
    status = EXCLUDED.status,
    latitude = EXCLUDED.latitude,
    longitude = EXCLUDED.longitude,
    description = EXCLUDED.description,
    updated_at = now()`

// Put inserts or updates incidents in one transaction.
func (s *PostgresSource) Put(ctx context.Context, incidents ...risk.Incident) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, inc := range incidents {
		typ := inc.Type
		if typ == "" {
			typ = risk.TypeOther
		}
		if _, err := tx.ExecContext(ctx, upsertQuery,
			inc.ID, string(typ), inc.Severity, inc.OccurredAt.UTC(), string(inc.Status),
			inc.Latitude, inc.Longitude, inc.Description,
		); err != nil {
			return fmt.Errorf("upsert incident %s: %w", inc.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
