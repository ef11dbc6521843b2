package batch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/example/encounters/internal/config"
	"github.com/example/encounters/internal/dispatch"
	"github.com/example/encounters/internal/encounter"
	"github.com/example/encounters/internal/geo"
	"github.com/example/encounters/internal/ingest"
	"github.com/example/encounters/internal/observability"
	"github.com/example/encounters/internal/storage"
)

var (
	ErrInputMissing = errors.New("input file does not exist")
	ErrInputEmpty   = errors.New("input file is empty")
)

// PositionRecorder mirrors the latest position of a user somewhere outside
// the engine.
type PositionRecorder interface {
	Record(ctx context.Context, username string, loc geo.Location, lastActive int64) error
	Close() error
}

// Summary describes a finished run.
type Summary struct {
	RunID      string
	Pings      int
	Users      int
	Encounters int
	Duration   time.Duration

	// PositionsSkipped counts pings the position mirror could not index.
	PositionsSkipped int
}

// Runner executes one batch run. Sinks and Positions are built from the
// config when left nil.
type Runner struct {
	Config    config.RunConfig
	Logger    *slog.Logger
	Metrics   *observability.Metrics
	Sinks     []storage.Sink
	Positions PositionRecorder
	RunID     uuid.UUID
}

func NewRunner(cfg config.RunConfig, logger *slog.Logger) *Runner {
	return &Runner{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewMetrics(),
		RunID:   uuid.New(),
	}
}

// Run reads every ping from the input, feeds the engine and writes the
// encounters. The first error of any kind ends the run; sinks are always
// closed.
func (r *Runner) Run(ctx context.Context) (sum Summary, err error) {
	start := time.Now()
	runID := r.RunID.String()
	sum.RunID = runID
	ctx = dispatch.WithRunID(ctx, runID)
	log := r.Logger.With("run_id", runID)

	in, err := openInput(r.Config.InputPath)
	if err != nil {
		return sum, err
	}
	defer in.Close()

	sink, err := r.openSinks(ctx)
	if err != nil {
		return sum, err
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close sinks: %w", cerr))
		}
	}()

	positions := r.openPositions()
	if positions != nil {
		defer func() {
			if cerr := positions.Close(); cerr != nil {
				err = errors.Join(err, fmt.Errorf("close position mirror: %w", cerr))
			}
		}()
	}

	log.Info("run_started", "input", r.Config.InputPath, "output", r.Config.OutputPath)

	policy := encounter.Policy{
		ActiveWindowHours: r.Config.ActiveWindowHours,
		DistanceKm:        r.Config.DistanceKm,
		CooldownHours:     r.Config.CooldownHours,
	}
	eng := encounter.NewEngine(policy, sink, encounter.WithMetrics(r.Metrics), encounter.WithLogger(log))

	reader := ingest.NewReader(in)
	for reader.Next() {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		p := reader.Ping()
		if positions != nil {
			if err := positions.Record(ctx, p.Username, p.Loc, p.Timestamp); err != nil {
				return sum, fmt.Errorf("line %d: %w", reader.Line(), err)
			}
		}
		if err := eng.Ingest(ctx, p); err != nil {
			return sum, fmt.Errorf("line %d: %w", reader.Line(), err)
		}
		sum.Pings++
	}
	if err := reader.Err(); err != nil {
		return sum, err
	}

	sum.Users = eng.Len()
	sum.Encounters = eng.Encounters()
	sum.Duration = time.Since(start)

	if err := r.Metrics.Push(ctx, r.Config.PushgatewayURL, runID); err != nil {
		log.Warn("metrics_push_failed", "error", err)
	}

	if sk, ok := positions.(interface{ Skipped() int }); ok {
		sum.PositionsSkipped = sk.Skipped()
	}

	log.Info("run_finished",
		"pings", sum.Pings,
		"users", sum.Users,
		"encounters", sum.Encounters,
		"positions_skipped", sum.PositionsSkipped,
		"duration_ms", sum.Duration.Milliseconds(),
	)
	return sum, nil
}

// openInput requires an existing, non-empty regular file.
func openInput(path string) (*os.File, error) {
	st, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrInputMissing, path)
	}
	if err != nil {
		return nil, fmt.Errorf("stat input %s: %w", path, err)
	}
	if st.Size() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrInputEmpty, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input %s: %w", path, err)
	}
	return f, nil
}

// openSinks builds the output fan-out: the file first, then any configured
// mirrors. Anything opened before a failure is closed again.
func (r *Runner) openSinks(ctx context.Context) (storage.Fanout, error) {
	if r.Sinks != nil {
		return storage.Fanout(r.Sinks), nil
	}
	var out storage.Fanout
	fail := func(err error) (storage.Fanout, error) {
		return nil, errors.Join(err, out.Close())
	}

	file, err := storage.CreateFileSink(r.Config.OutputPath)
	if err != nil {
		return nil, err
	}
	out = append(out, file)

	if r.Config.PGDSN != "" {
		pg, err := storage.NewPostgresSink(ctx, r.Config.PGDSN, r.RunID)
		if err != nil {
			return fail(err)
		}
		out = append(out, pg)
		if r.Config.RunMigrations {
			if err := pg.Migrate(ctx); err != nil {
				return fail(err)
			}
			r.Logger.Info("migration applied", "file", "001_create_encounters.sql")
		}
	}

	if len(r.Config.KafkaBrokers) > 0 {
		out = append(out, dispatch.NewKafkaPublisher(r.Config.KafkaBrokers, r.Config.KafkaTopic))
	}
	return out, nil
}

func (r *Runner) openPositions() PositionRecorder {
	if r.Positions != nil {
		return r.Positions
	}
	if r.Config.RedisAddr == "" {
		return nil
	}
	return geo.NewRedisPositions(r.Config.RedisAddr, r.Config.RedisPassword, r.Config.RedisGeoKey)
}
