package store

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/orconsole/server/internal/common"
)

// Migration is one schema version. Up and Down are ordered statement lists;
// triggers are kept as single statements so BEGIN...END bodies stay intact.
type Migration struct {
	Version int
	Name    string
	Up      []string
	Down    []string
}

var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS models (
				id TEXT PRIMARY KEY,
				openrouter_id TEXT UNIQUE NOT NULL,
				name TEXT NOT NULL,
				context_length INTEGER,
				pricing_prompt REAL,
				pricing_completion REAL,
				is_reasoning INTEGER DEFAULT 0,
				created_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS profiles (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL,
				system_prompt TEXT,
				temperature REAL DEFAULT 0.7,
				max_tokens INTEGER DEFAULT 2048,
				created_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS sessions (
				id TEXT PRIMARY KEY,
				session_type TEXT NOT NULL CHECK(session_type IN ('chat','code','documents','playground')),
				title TEXT,
				profile_id INTEGER,
				created_at TEXT NOT NULL,
				FOREIGN KEY (profile_id) REFERENCES profiles(id) ON DELETE SET NULL
			)`,
			`CREATE TABLE IF NOT EXISTS messages (
				id TEXT PRIMARY KEY,
				session_id TEXT NOT NULL,
				role TEXT NOT NULL CHECK(role IN ('system','user','assistant','tool')),
				content TEXT NOT NULL,
				created_at TEXT NOT NULL,
				FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_messages_session_created ON messages(session_id, created_at)`,
			`CREATE TABLE IF NOT EXISTS usage_logs (
				id TEXT PRIMARY KEY,
				session_id TEXT NOT NULL,
				profile_id INTEGER,
				model_id TEXT,
				prompt_tokens INTEGER NOT NULL DEFAULT 0,
				completion_tokens INTEGER NOT NULL DEFAULT 0,
				total_tokens INTEGER NOT NULL DEFAULT 0,
				cost_usd REAL NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL,
				FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE,
				FOREIGN KEY (profile_id) REFERENCES profiles(id) ON DELETE SET NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_usage_logs_session_created ON usage_logs(session_id, created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_usage_logs_model_created ON usage_logs(model_id, created_at)`,
		},
		Down: []string{
			`DROP INDEX IF EXISTS idx_usage_logs_model_created`,
			`DROP INDEX IF EXISTS idx_usage_logs_session_created`,
			`DROP TABLE IF EXISTS usage_logs`,
			`DROP INDEX IF EXISTS idx_messages_session_created`,
			`DROP TABLE IF EXISTS messages`,
			`DROP TABLE IF EXISTS sessions`,
			`DROP TABLE IF EXISTS profiles`,
			`DROP TABLE IF EXISTS models`,
		},
	},
	{
		Version: 2,
		Name:    "add_openrouter_preset",
		Up: []string{
			`ALTER TABLE profiles ADD COLUMN openrouter_preset TEXT`,
		},
		// sqlite cannot drop a column everywhere we ship, so the rollback
		// rewrites the table preserving the remaining data.
		Down: []string{
			`CREATE TABLE profiles_rollback (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL,
				system_prompt TEXT,
				temperature REAL DEFAULT 0.7,
				max_tokens INTEGER DEFAULT 2048,
				created_at TEXT NOT NULL
			)`,
			`INSERT INTO profiles_rollback (id, name, system_prompt, temperature, max_tokens, created_at)
				SELECT id, name, system_prompt, temperature, max_tokens, created_at FROM profiles`,
			`DROP TABLE profiles`,
			`ALTER TABLE profiles_rollback RENAME TO profiles`,
		},
	},
	{
		Version: 3,
		Name:    "add_fts_search",
		Up: []string{
			`CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
				content,
				role UNINDEXED,
				session_id UNINDEXED,
				created_at UNINDEXED,
				content='messages',
				content_rowid='rowid'
			)`,
			`CREATE TRIGGER IF NOT EXISTS messages_fts_ai AFTER INSERT ON messages BEGIN
				INSERT INTO messages_fts(rowid, content, role, session_id, created_at)
				VALUES (new.rowid, new.content, new.role, new.session_id, new.created_at);
			END`,
			`CREATE TRIGGER IF NOT EXISTS messages_fts_ad AFTER DELETE ON messages BEGIN
				INSERT INTO messages_fts(messages_fts, rowid, content, role, session_id, created_at)
				VALUES ('delete', old.rowid, old.content, old.role, old.session_id, old.created_at);
			END`,
			`CREATE TRIGGER IF NOT EXISTS messages_fts_au AFTER UPDATE ON messages BEGIN
				INSERT INTO messages_fts(messages_fts, rowid, content, role, session_id, created_at)
				VALUES ('delete', old.rowid, old.content, old.role, old.session_id, old.created_at);
				INSERT INTO messages_fts(rowid, content, role, session_id, created_at)
				VALUES (new.rowid, new.content, new.role, new.session_id, new.created_at);
			END`,
			// One-shot backfill of rows that predate the shadow table.
			`INSERT INTO messages_fts(rowid, content, role, session_id, created_at)
				SELECT rowid, content, role, session_id, created_at FROM messages`,
		},
		Down: []string{
			`DROP TRIGGER IF EXISTS messages_fts_au`,
			`DROP TRIGGER IF EXISTS messages_fts_ad`,
			`DROP TRIGGER IF EXISTS messages_fts_ai`,
			`DROP TABLE IF EXISTS messages_fts`,
		},
	},
}

const migrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	applied_at TEXT NOT NULL
)`

// MigrateUp applies every pending migration in order. A failure aborts with
// the failing version so startup can refuse to continue.
func MigrateUp(db *gorm.DB) error {
	if err := db.Exec(migrationsTable).Error; err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	applied, err := appliedVersions(db)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			for _, stmt := range m.Up {
				if err := tx.Exec(stmt).Error; err != nil {
					return err
				}
			}
			return tx.Exec(
				"INSERT INTO schema_migrations(version, name, applied_at) VALUES (?, ?, ?)",
				m.Version, m.Name, common.Now(),
			).Error
		})
		if err != nil {
			return fmt.Errorf("migration %03d_%s: %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// MigrateDown rolls back the newest n applied migrations. On a database
// that was never migrated it does nothing.
func MigrateDown(db *gorm.DB, n int) error {
	if err := db.Exec(migrationsTable).Error; err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	applied, err := appliedVersions(db)
	if err != nil {
		return err
	}
	for i := len(migrations) - 1; i >= 0 && n > 0; i-- {
		m := migrations[i]
		if !applied[m.Version] {
			continue
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			for _, stmt := range m.Down {
				if err := tx.Exec(stmt).Error; err != nil {
					return err
				}
			}
			return tx.Exec("DELETE FROM schema_migrations WHERE version = ?", m.Version).Error
		})
		if err != nil {
			return fmt.Errorf("rollback %03d_%s: %w", m.Version, m.Name, err)
		}
		n--
	}
	return nil
}

func appliedVersions(db *gorm.DB) (map[int]bool, error) {
	var versions []int
	if err := db.Raw("SELECT version FROM schema_migrations ORDER BY version").Scan(&versions).Error; err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	out := make(map[int]bool, len(versions))
	for _, v := range versions {
		out[v] = true
	}
	return out, nil
}
