// Package state owns the mirror's durable local state: the snapshot cache
// (last merged copy of every remote entity) and the sync cursor. Both live
// in an embedded SQLite database so a restart resumes with incremental
// passes instead of refetching the world.
//
// The store is the single writer for this state. The reconciliation engine
// and the command queue's result-application step mutate it through the
// handle; the change detector only reads.
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/vaultsync/vaultsync/internal/model"
)

const cursorKey = "sync_cursor"

// Store holds the snapshot cache in memory and persists every mutation to
// the backing database.
type Store struct {
	conn *sql.DB
	path string

	mu       sync.RWMutex
	projects map[string]model.Project
	sections map[string]model.Section
	tasks    map[string]model.Task
	cursor   string
}

// Open opens (creating if needed) the state database at path, initializes
// the schema, and loads the snapshot cache into memory.
//
// The caller MUST call Close() when done.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping state database: %w", err)
	}

	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{
		conn:     conn,
		path:     path,
		projects: make(map[string]model.Project),
		sections: make(map[string]model.Section),
		tasks:    make(map[string]model.Task),
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := s.initSchema(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := s.load(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS entities (
	kind TEXT NOT NULL,
	id   TEXT NOT NULL,
	data TEXT NOT NULL,
	PRIMARY KEY (kind, id)
);
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`
	if _, err := s.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// load populates the in-memory snapshot from the database.
func (s *Store) load() error {
	rows, err := s.conn.Query("SELECT kind, id, data FROM entities")
	if err != nil {
		return fmt.Errorf("failed to load entities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind, id, data string
		if err := rows.Scan(&kind, &id, &data); err != nil {
			return fmt.Errorf("failed to scan entity row: %w", err)
		}
		switch model.Kind(kind) {
		case model.KindProject:
			var p model.Project
			if err := json.Unmarshal([]byte(data), &p); err == nil {
				s.projects[id] = p
			}
		case model.KindSection:
			var sec model.Section
			if err := json.Unmarshal([]byte(data), &sec); err == nil {
				s.sections[id] = sec
			}
		case model.KindTask:
			var t model.Task
			if err := json.Unmarshal([]byte(data), &t); err == nil {
				s.tasks[id] = t
			}
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate entities: %w", err)
	}

	var cursor string
	err = s.conn.QueryRow("SELECT value FROM meta WHERE key = ?", cursorKey).Scan(&cursor)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to load cursor: %w", err)
	}
	s.cursor = cursor
	return nil
}

// Close checkpoints and closes the database.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	_, _ = s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close state database: %w", err)
	}
	s.conn = nil
	return nil
}

// Cursor returns the persisted sync cursor ("" means no cursor: next pass
// must be full).
func (s *Store) Cursor() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

// SetCursor persists a new sync cursor.
func (s *Store) SetCursor(cursor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.conn.Exec(
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		cursorKey, cursor,
	); err != nil {
		return fmt.Errorf("failed to persist cursor: %w", err)
	}
	s.cursor = cursor
	return nil
}

// Project returns the cached project by id.
func (s *Store) Project(id string) (model.Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	return p, ok
}

// Section returns the cached section by id.
func (s *Store) Section(id string) (model.Section, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec, ok := s.sections[id]
	return sec, ok
}

// Task returns the cached task by id.
func (s *Store) Task(id string) (model.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	return t, ok
}

// Has reports whether the cache holds an entity of the given kind and id.
func (s *Store) Has(kind model.Kind, id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch kind {
	case model.KindProject:
		_, ok := s.projects[id]
		return ok
	case model.KindSection:
		_, ok := s.sections[id]
		return ok
	case model.KindTask:
		_, ok := s.tasks[id]
		return ok
	default:
		return false
	}
}

// Counts returns the number of cached projects, sections, and tasks.
func (s *Store) Counts() (projects, sections, tasks int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.projects), len(s.sections), len(s.tasks)
}

// UpsertProject merges one project into the cache and persists it.
func (s *Store) UpsertProject(p model.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persist(model.KindProject, p.ID, p); err != nil {
		return err
	}
	s.projects[p.ID] = p
	return nil
}

// UpsertSection merges one section into the cache and persists it.
func (s *Store) UpsertSection(sec model.Section) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persist(model.KindSection, sec.ID, sec); err != nil {
		return err
	}
	s.sections[sec.ID] = sec
	return nil
}

// UpsertTask merges one task into the cache and persists it.
func (s *Store) UpsertTask(t model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persist(model.KindTask, t.ID, t); err != nil {
		return err
	}
	s.tasks[t.ID] = t
	return nil
}

// Delete removes one entity from the cache and the database.
func (s *Store) Delete(kind model.Kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.conn.Exec("DELETE FROM entities WHERE kind = ? AND id = ?", string(kind), id); err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", kind, id, err)
	}
	switch kind {
	case model.KindProject:
		delete(s.projects, id)
	case model.KindSection:
		delete(s.sections, id)
	case model.KindTask:
		delete(s.tasks, id)
	}
	return nil
}

// ReplaceAll swaps the whole snapshot for the given full-sync payload in one
// transaction. Used by full passes; incremental passes upsert instead.
func (s *Store) ReplaceAll(projects []model.Project, sections []model.Section, tasks []model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM entities"); err != nil {
		return fmt.Errorf("failed to clear entities: %w", err)
	}
	stmt, err := tx.Prepare("INSERT INTO entities (kind, id, data) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	insert := func(kind model.Kind, id string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode %s %s: %w", kind, id, err)
		}
		if _, err := stmt.Exec(string(kind), id, string(data)); err != nil {
			return fmt.Errorf("failed to insert %s %s: %w", kind, id, err)
		}
		return nil
	}

	newProjects := make(map[string]model.Project, len(projects))
	for _, p := range projects {
		if err := insert(model.KindProject, p.ID, p); err != nil {
			return err
		}
		newProjects[p.ID] = p
	}
	newSections := make(map[string]model.Section, len(sections))
	for _, sec := range sections {
		if err := insert(model.KindSection, sec.ID, sec); err != nil {
			return err
		}
		newSections[sec.ID] = sec
	}
	newTasks := make(map[string]model.Task, len(tasks))
	for _, t := range tasks {
		if err := insert(model.KindTask, t.ID, t); err != nil {
			return err
		}
		newTasks[t.ID] = t
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit replace: %w", err)
	}

	s.projects = newProjects
	s.sections = newSections
	s.tasks = newTasks
	return nil
}

func (s *Store) persist(kind model.Kind, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s %s: %w", kind, id, err)
	}
	if _, err := s.conn.Exec(
		"INSERT INTO entities (kind, id, data) VALUES (?, ?, ?) ON CONFLICT(kind, id) DO UPDATE SET data = excluded.data",
		string(kind), id, string(data),
	); err != nil {
		return fmt.Errorf("failed to persist %s %s: %w", kind, id, err)
	}
	return nil
}
