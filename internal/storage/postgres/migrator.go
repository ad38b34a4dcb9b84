package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

const (
	migrationsDir   = "sql/migrations"
	// Ключ advisory lock: байты "SHOP".
	migrationLockID = int64(0x53484f50)
	schemaTable     = "schema_migrations"
	schemaTableDDL  = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    BIGINT PRIMARY KEY,
    name       TEXT NOT NULL,
    checksum   TEXT NOT NULL DEFAULT '',
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
)

// ErrMigrationModified возвращается, если применённая миграция не совпадает со встроенным файлом.
var ErrMigrationModified = errors.New("applied migration differs from embedded file")

var (
	//go:embed sql/migrations/*.sql
	migrationsFS embed.FS

	migrationFileName = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.(up|down)\.sql$`)
)

type migration struct {
	Version int64
	Name    string
	UpSQL   string
	DownSQL string
}

// checksum фиксирует содержимое up-скрипта на момент применения.
func (m migration) checksum() string {
	sum := sha256.Sum256([]byte(m.UpSQL))
	return hex.EncodeToString(sum[:])
}

func (m migration) info() MigrationInfo {
	return MigrationInfo{Version: m.Version, Name: m.Name}
}

// MigrationInfo — версия и имя миграции.
type MigrationInfo struct {
	Version int64
	Name    string
}

// MigrationState описывает схему относительно встроенных миграций.
type MigrationState struct {
	// Version — максимальная применённая версия (0, если ничего не применено).
	Version int64
	Applied int
	// Pending — ещё не применённые миграции по возрастанию версии.
	Pending []MigrationInfo
	// Modified — применённые миграции, чей up-скрипт с тех пор изменился.
	Modified []MigrationInfo
}

// appliedSet — версии из schema_migrations и их контрольные суммы.
type appliedSet map[int64]string

// MigrateUp применяет до steps ожидающих миграций; steps=0 применяет все.
// Если уже применённый скрипт изменён, ничего не применяется.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.withMigrationLock(ctx, func(conn *sql.Conn, migrations []migration) error {
		applied, err := loadApplied(ctx, conn)
		if err != nil {
			return err
		}
		if modified := modifiedMigrations(migrations, applied); len(modified) > 0 {
			return fmt.Errorf("%w: version %d (%s)", ErrMigrationModified, modified[0].Version, modified[0].Name)
		}

		for _, m := range planUp(migrations, applied, steps) {
			if err := runMigration(ctx, conn, m, true); err != nil {
				return err
			}
		}
		return nil
	})
}

// MigrateDown откатывает steps последних применённых миграций; steps<=0 откатывает одну.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return s.withMigrationLock(ctx, func(conn *sql.Conn, migrations []migration) error {
		applied, err := loadApplied(ctx, conn)
		if err != nil {
			return err
		}

		plan, err := planDown(migrations, applied, steps)
		if err != nil {
			return err
		}
		for _, m := range plan {
			if err := runMigration(ctx, conn, m, false); err != nil {
				return err
			}
		}
		return nil
	})
}

// MigrationStatus возвращает текущую версию схемы, ожидающие и изменённые миграции.
func (s *Store) MigrationStatus(ctx context.Context) (MigrationState, error) {
	if s == nil || s.db == nil {
		return MigrationState{}, errors.New("postgres store is not initialized")
	}

	migrations, err := loadMigrations(migrationsFS)
	if err != nil {
		return MigrationState{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, schemaTableDDL); err != nil {
		return MigrationState{}, fmt.Errorf("ensure %s: %w", schemaTable, err)
	}
	applied, err := loadApplied(ctx, s.db)
	if err != nil {
		return MigrationState{}, err
	}

	return describeState(migrations, applied), nil
}

func (s *Store) withMigrationLock(ctx context.Context, fn func(*sql.Conn, []migration) error) error {
	if s == nil || s.db == nil {
		return errors.New("postgres store is not initialized")
	}

	migrations, err := loadMigrations(migrationsFS)
	if err != nil {
		return err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", migrationLockID)
	}()

	if _, err := conn.ExecContext(ctx, schemaTableDDL); err != nil {
		return fmt.Errorf("ensure %s: %w", schemaTable, err)
	}

	return fn(conn, migrations)
}

func describeState(migrations []migration, applied appliedSet) MigrationState {
	state := MigrationState{
		Applied:  len(applied),
		Pending:  []MigrationInfo{},
		Modified: modifiedMigrations(migrations, applied),
	}
	for version := range applied {
		state.Version = max(state.Version, version)
	}
	for _, m := range planUp(migrations, applied, 0) {
		state.Pending = append(state.Pending, m.info())
	}
	return state
}

// planUp выбирает не применённые миграции по возрастанию версии.
func planUp(migrations []migration, applied appliedSet, steps int) []migration {
	plan := make([]migration, 0, len(migrations))
	for _, m := range migrations {
		if _, ok := applied[m.Version]; ok {
			continue
		}
		plan = append(plan, m)
		if steps > 0 && len(plan) == steps {
			break
		}
	}
	return plan
}

// planDown выбирает steps последних применённых версий. Версия без файла даёт ошибку.
func planDown(migrations []migration, applied appliedSet, steps int) ([]migration, error) {
	byVersion := make(map[int64]migration, len(migrations))
	for _, m := range migrations {
		byVersion[m.Version] = m
	}

	versions := make([]int64, 0, len(applied))
	for version := range applied {
		versions = append(versions, version)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] > versions[j] })
	if len(versions) > steps {
		versions = versions[:steps]
	}

	plan := make([]migration, 0, len(versions))
	for _, version := range versions {
		m, ok := byVersion[version]
		if !ok {
			return nil, fmt.Errorf("cannot roll back unknown migration version %d", version)
		}
		plan = append(plan, m)
	}
	return plan, nil
}

// modifiedMigrations сравнивает суммы применённых миграций со встроенными файлами.
// Пустая сумма в таблице не проверяется.
func modifiedMigrations(migrations []migration, applied appliedSet) []MigrationInfo {
	modified := []MigrationInfo{}
	for _, m := range migrations {
		sum, ok := applied[m.Version]
		if ok && sum != "" && sum != m.checksum() {
			modified = append(modified, m.info())
		}
	}
	return modified
}

func runMigration(ctx context.Context, conn *sql.Conn, m migration, up bool) (err error) {
	direction, script := "down", m.DownSQL
	var bookkeeping sq.Sqlizer = psql.Delete(schemaTable).Where(sq.Eq{"version": m.Version})
	if up {
		direction, script = "up", m.UpSQL
		bookkeeping = psql.Insert(schemaTable).
			Columns("version", "name", "checksum").
			Values(m.Version, m.Name, m.checksum())
	}

	query, args, err := bookkeeping.ToSql()
	if err != nil {
		return fmt.Errorf("build %s record for %d_%s: %w", direction, m.Version, m.Name, err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s migration %d_%s: %w", direction, m.Version, m.Name, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("execute %s migration %d_%s: %w", direction, m.Version, m.Name, err)
	}
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("record %s migration %d_%s: %w", direction, m.Version, m.Name, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit %s migration %d_%s: %w", direction, m.Version, m.Name, err)
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadApplied(ctx context.Context, db queryer) (appliedSet, error) {
	query, args, err := psql.Select("version", "checksum").From(schemaTable).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build applied migrations query: %w", err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := appliedSet{}
	for rows.Next() {
		var (
			version  int64
			checksum string
		)
		if err := rows.Scan(&version, &checksum); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied[version] = checksum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return applied, nil
}

// loadMigrations читает пары NNNN_name.up.sql / NNNN_name.down.sql и сортирует их по версии.
func loadMigrations(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	byVersion := make(map[int64]*migration)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		if err := addMigrationFile(fsys, byVersion, entry.Name()); err != nil {
			return nil, err
		}
	}
	if len(byVersion) == 0 {
		return nil, errors.New("no migration files found")
	}

	migrations := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.UpSQL == "" || m.DownSQL == "" {
			return nil, fmt.Errorf("migration %04d_%s must have both up and down files", m.Version, m.Name)
		}
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

func addMigrationFile(fsys fs.FS, byVersion map[int64]*migration, file string) error {
	parts := migrationFileName.FindStringSubmatch(file)
	if parts == nil {
		return fmt.Errorf("invalid migration file name: %s", file)
	}
	version, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || version <= 0 {
		return fmt.Errorf("invalid migration version in %s", file)
	}

	raw, err := fs.ReadFile(fsys, path.Join(migrationsDir, file))
	if err != nil {
		return fmt.Errorf("read migration %s: %w", file, err)
	}
	script := strings.TrimSpace(string(raw))
	if script == "" {
		return fmt.Errorf("migration file is empty: %s", file)
	}

	m, ok := byVersion[version]
	if !ok {
		m = &migration{Version: version, Name: parts[2]}
		byVersion[version] = m
	}
	if m.Name != parts[2] {
		return fmt.Errorf("migration %d has conflicting names %q and %q", version, m.Name, parts[2])
	}

	target := &m.UpSQL
	if parts[3] == "down" {
		target = &m.DownSQL
	}
	if *target != "" {
		return fmt.Errorf("duplicate %s migration for version %d", parts[3], version)
	}
	*target = script
	return nil
}
