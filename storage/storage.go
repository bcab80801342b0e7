package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"celeb-dna-collector/dna"
)

// Run is one pipeline invocation.
type Run struct {
	ID         string // uuid
	StartedAt  int64  // Unix timestamp
	FinishedAt int64  // Unix timestamp, 0 while running
	Succeeded  int
	Total      int
}

// SubjectResult records how one subject fared within a run.
type SubjectResult struct {
	RunID          string
	SubjectID      string
	Status         string // "ok", "no_data", "error"
	FramesAnalyzed int
	TotalFrames    int
	Uploaded       bool
	Error          string
	RecordedAt     int64
}

// StoredProfile is the latest Profile kept for a subject.
type StoredProfile struct {
	Profile   dna.Profile
	RunID     string
	UpdatedAt int64
}

// Store provides SQLite-backed persistence for runs, per-subject results,
// the latest profile of every subject, and settings.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

const createTablesSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	started_at INTEGER,
	finished_at INTEGER DEFAULT 0,
	succeeded INTEGER DEFAULT 0,
	total INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS subject_results (
	run_id TEXT,
	subject_id TEXT,
	status TEXT,
	frames_analyzed INTEGER,
	total_frames INTEGER,
	uploaded INTEGER,
	error TEXT,
	recorded_at INTEGER,
	PRIMARY KEY (run_id, subject_id)
);

CREATE TABLE IF NOT EXISTS profiles (
	subject_id TEXT PRIMARY KEY,
	run_id TEXT,
	document TEXT,
	updated_at INTEGER
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT
);
`

// New opens the SQLite database at dbPath, creates tables if they don't exist, and returns a Store.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("storage: open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: set WAL mode: %w", err)
	}

	if _, err := db.Exec(createTablesSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: create tables: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun inserts a new run row.
func (s *Store) StartRun(runID string, total int) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (id, started_at, total) VALUES (?, ?, ?)`,
		runID, s.now().Unix(), total,
	)
	if err != nil {
		return fmt.Errorf("storage: start run %s: %w", runID, err)
	}
	return nil
}

// FinishRun stamps a run as finished with its final tally.
func (s *Store) FinishRun(runID string, succeeded, total int) error {
	res, err := s.db.Exec(
		`UPDATE runs SET finished_at = ?, succeeded = ?, total = ? WHERE id = ?`,
		s.now().Unix(), succeeded, total, runID,
	)
	if err != nil {
		return fmt.Errorf("storage: finish run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage: finish run %s: no such run", runID)
	}
	return nil
}

// GetRun returns the run with the given ID. Returns nil if not found.
func (s *Store) GetRun(runID string) (*Run, error) {
	var r Run
	err := s.db.QueryRow(
		`SELECT id, started_at, finished_at, succeeded, total FROM runs WHERE id = ?`, runID,
	).Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Succeeded, &r.Total)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get run %s: %w", runID, err)
	}
	return &r, nil
}

// RecordSubjectResult inserts or replaces the result of one subject within a run.
func (s *Store) RecordSubjectResult(r SubjectResult) error {
	if r.RecordedAt == 0 {
		r.RecordedAt = s.now().Unix()
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO subject_results
		 (run_id, subject_id, status, frames_analyzed, total_frames, uploaded, error, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.SubjectID, r.Status, r.FramesAnalyzed, r.TotalFrames, boolToInt(r.Uploaded), r.Error, r.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: record result %s/%s: %w", r.RunID, r.SubjectID, err)
	}
	return nil
}

// ListSubjectResults returns the results recorded for a run, ordered by subject ID.
func (s *Store) ListSubjectResults(runID string) ([]SubjectResult, error) {
	rows, err := s.db.Query(
		`SELECT run_id, subject_id, status, frames_analyzed, total_frames, uploaded, error, recorded_at
		 FROM subject_results WHERE run_id = ? ORDER BY subject_id`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list results for run %s: %w", runID, err)
	}
	defer rows.Close()

	var results []SubjectResult
	for rows.Next() {
		var r SubjectResult
		var uploaded int
		if err := rows.Scan(&r.RunID, &r.SubjectID, &r.Status, &r.FramesAnalyzed, &r.TotalFrames, &uploaded, &r.Error, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("storage: scan subject result: %w", err)
		}
		r.Uploaded = uploaded != 0
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate subject results: %w", err)
	}
	return results, nil
}

// UpsertProfile stores p as the latest profile for its subject.
func (s *Store) UpsertProfile(runID string, p *dna.Profile) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("storage: encode profile %s: %w", p.SubjectID, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO profiles (subject_id, run_id, document, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(subject_id) DO UPDATE SET run_id = excluded.run_id, document = excluded.document, updated_at = excluded.updated_at`,
		p.SubjectID, runID, string(doc), s.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("storage: upsert profile %s: %w", p.SubjectID, err)
	}
	return nil
}

// GetProfile returns the latest profile for subjectID. Returns nil if none is stored.
func (s *Store) GetProfile(subjectID string) (*StoredProfile, error) {
	var sp StoredProfile
	var doc string
	err := s.db.QueryRow(
		`SELECT run_id, document, updated_at FROM profiles WHERE subject_id = ?`, subjectID,
	).Scan(&sp.RunID, &doc, &sp.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get profile %s: %w", subjectID, err)
	}
	if err := json.Unmarshal([]byte(doc), &sp.Profile); err != nil {
		return nil, fmt.Errorf("storage: decode profile %s: %w", subjectID, err)
	}
	return &sp, nil
}

// GetSetting returns the value for the given settings key.
// Returns an empty string if the key is not found.
func (s *Store) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("storage: get setting %q: %w", key, err)
	}
	return value, nil
}

// SetSetting inserts or replaces a setting.
func (s *Store) SetSetting(key, value string) error {
	if _, err := s.db.Exec(`INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)`, key, value); err != nil {
		return fmt.Errorf("storage: set setting %q: %w", key, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
