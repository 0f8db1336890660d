package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/pkg/errors"
)

var upMigrationName = regexp.MustCompile(`^(\d+)_.*\.up\.sql$`)

// MigrationLogger adapts ectologger to migrate.Logger
type MigrationLogger struct {
	ectologger.Logger
}

func (l MigrationLogger) Verbose() bool {
	return false
}

func (l MigrationLogger) Printf(format string, v ...any) {
	l.Infof(format, v...)
}

type MigrationConfig struct {
	MigrationFolderPath string
	Version             uint
	Force               int
	AutoRollback        bool // force a dirty database back to its previous version on failure
}

type MigrationService struct {
	config *MigrationConfig
	logger ectologger.Logger
}

func NewMigrationService(logger ectologger.Logger, config *MigrationConfig) *MigrationService {
	return &MigrationService{
		config: config,
		logger: logger,
	}
}

// Up applies migrations up to the configured version, or all of them
func (ms *MigrationService) Up(db *sql.DB, databaseName string) error {
	m, err := ms.open(db, databaseName)
	if err != nil {
		return err
	}

	if ms.config.Force != 0 {
		if err := m.Force(ms.config.Force); err != nil {
			return errors.Wrapf(err, "failed to force database to version %d", ms.config.Force)
		}
	}

	previous, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return errors.Wrap(err, "failed to read migration version")
	}

	started := time.Now()
	if target := ms.config.Version; target != 0 {
		err = m.Migrate(target)
	} else {
		err = m.Up()
	}
	ms.logger.WithField("duration", time.Since(started).String()).Info("Migration run finished")

	return ms.settle(m, err, previous)
}

// Down rolls back the given number of migrations
func (ms *MigrationService) Down(db *sql.DB, databaseName string, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("steps must be positive, got %d", steps)
	}

	m, err := ms.open(db, databaseName)
	if err != nil {
		return err
	}
	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrapf(err, "failed to roll back %d migrations", steps)
	}

	ms.logger.Infof("Rolled back %d migrations", steps)
	return nil
}

func (ms *MigrationService) open(db *sql.DB, databaseName string) (*migrate.Migrate, error) {
	folder, err := ms.resolveMigrationFolder()
	if err != nil {
		return nil, err
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{DatabaseName: databaseName})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create migration driver")
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+folder, databaseName, driver)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create migrate instance")
	}
	m.Log = MigrationLogger{Logger: ms.logger}
	return m, nil
}

func (ms *MigrationService) resolveMigrationFolder() (string, error) {
	folder := ms.config.MigrationFolderPath
	if !filepath.IsAbs(folder) {
		wd, err := os.Getwd()
		if err != nil {
			return "", errors.Wrap(err, "failed to resolve working directory")
		}
		folder = filepath.Join(wd, folder)
	}
	if _, err := os.Stat(folder); err != nil {
		return "", errors.Wrapf(err, "migration folder %s does not exist", folder)
	}
	return folder, nil
}

// settle turns a migrate result into the startup outcome. A dirty database
// is forced back to the version it started from when AutoRollback is set; the
// migration error is returned either way.
func (ms *MigrationService) settle(m *migrate.Migrate, err error, from uint) error {
	switch {
	case err == nil:
		ms.logger.Info("Migrations applied")
		return nil
	case errors.Is(err, migrate.ErrNoChange):
		ms.logger.Info("Schema already current")
		return nil
	}
	ms.logger.WithError(err).Error("Migration failed")
	if !ms.config.AutoRollback {
		return err
	}

	at, dirty, verr := m.Version()
	if verr != nil {
		if !errors.Is(verr, migrate.ErrNilVersion) {
			ms.logger.WithError(verr).Error("Failed to read migration version after failure")
		}
		return err
	}
	if !dirty {
		return err
	}

	target := from
	if target == 0 && at > 0 {
		target = at - 1
	}
	ms.logger.Warnf("Database dirty at version %d, forcing it back to %d", at, target)
	if ferr := m.Force(int(target)); ferr != nil {
		return errors.Wrapf(ferr, "failed to force database to version %d", target)
	}
	return err
}

// LatestVersion is the highest NNN_name.up.sql version in folder
func LatestVersion(folder string) (int, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return 0, err
	}

	latest := -1
	for _, entry := range entries {
		m := upMigrationName.FindStringSubmatch(entry.Name())
		if entry.IsDir() || m == nil {
			continue
		}
		v, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, err
		}
		latest = max(latest, v)
	}
	if latest < 0 {
		return 0, fmt.Errorf("no migration files found in %s", folder)
	}
	return latest, nil
}
