package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/example/encounters/internal/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

const insertEncounter = `INSERT INTO encounters(run_id, time, user_earlier, lat_earlier, lon_earlier, user_later, lat_later, lon_later) VALUES($1,$2,$3,$4,$5,$6,$7,$8)`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresSink mirrors encounters into the encounters table, tagged with the
// run id.
type PostgresSink struct {
	db     execer
	runID  uuid.UUID
	closer func() error
}

func NewPostgresSink(ctx context.Context, dsn string, runID uuid.UUID) (*PostgresSink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresSink{db: db, runID: runID, closer: db.Close}, nil
}

// Migrate applies the embedded schema. Statements are idempotent.
func (p *PostgresSink) Migrate(ctx context.Context) error {
	b, err := migrations.ReadFile("migrations/001_create_encounters.sql")
	if err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, string(b)); err != nil {
		return fmt.Errorf("apply migration 001_create_encounters.sql: %w", err)
	}
	return nil
}

func (p *PostgresSink) Emit(ctx context.Context, e models.Encounter) error {
	_, err := p.db.ExecContext(ctx, insertEncounter,
		p.runID, e.Time,
		e.Earlier.Username, e.Earlier.Loc.Lat, e.Earlier.Loc.Lon,
		e.Later.Username, e.Later.Loc.Lat, e.Later.Loc.Lon,
	)
	if err != nil {
		return fmt.Errorf("insert encounter: %w", err)
	}
	return nil
}

func (p *PostgresSink) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}
