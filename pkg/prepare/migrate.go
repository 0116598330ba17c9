package prepare

import (
	"context"
	"database/sql"
	"os"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Migrator brings the database schema up to date.
type Migrator interface {
	Migrate(ctx context.Context) error
	String() string
}

// CommandMigrator delegates to the project's own migration tool.
type CommandMigrator struct {
	Command []string
	Dir     string
	Run     Runner
}

func (m CommandMigrator) String() string { return strings.Join(m.Command, " ") }

func (m CommandMigrator) Migrate(ctx context.Context) error {
	run := m.Run
	if run == nil {
		run = ExecRunner
	}
	out, err := run(ctx, m.Dir, m.Command)
	if err != nil {
		if tail := lastLines(out, 1); len(tail) > 0 {
			return errors.Wrapf(err, "%s: %s", m.String(), tail[0])
		}
		return errors.Wrap(err, m.String())
	}
	return nil
}

// SQLMigrator applies NNN_name.up.sql files from Dir with golang-migrate.
type SQLMigrator struct {
	Dir         string
	DatabaseURL string
}

func (m SQLMigrator) String() string { return "sql migrations in " + m.Dir }

func (m SQLMigrator) Migrate(ctx context.Context) error {
	if m.DatabaseURL == "" {
		return errors.New("sql migrations need database_url")
	}
	db, err := sql.Open("pgx", m.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "open database")
	}
	defer func() { _ = db.Close() }()
	if err := db.PingContext(ctx); err != nil {
		return errors.Wrap(err, "ping database")
	}

	src, err := iofs.New(os.DirFS(m.Dir), ".")
	if err != nil {
		return errors.Wrap(err, "open migration source")
	}
	drv, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return errors.Wrap(err, "create migration driver")
	}
	mg, err := migrate.NewWithInstance("iofs", src, "pgx5", drv)
	if err != nil {
		return errors.Wrap(err, "create migrator")
	}
	if err := mg.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info().Msg("database schema already current")
			return nil
		}
		return errors.Wrap(err, "apply migrations")
	}
	return nil
}

// ApplyMigrations runs m and touches the marker on success. The caller decides
// whether an error is fatal.
func (p *Preparer) ApplyMigrations(ctx context.Context, m Migrator) error {
	log.Info().Str("migrator", m.String()).Msg("applying migrations")
	if err := m.Migrate(ctx); err != nil {
		return err
	}
	return p.MarkMigrationsApplied()
}
