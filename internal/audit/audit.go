// Package audit implements the append-only structured event log. Every
// skill invocation, task transition and error lands here as one JSON
// object per line; records are immutable once written and readers only
// ever observe a prefix of the append order.
package audit

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/basket/deskhand/internal/shared"
)

// FileName is the JSONL file inside the vault's Logs directory.
const FileName = "audit.jsonl"

// Record is one immutable audit event.
type Record struct {
	TS        string `json:"ts"`
	Task      string `json:"task"`
	Action    string `json:"action"`
	Input     any    `json:"input"`
	Result    any    `json:"result"`
	AgentTurn int    `json:"agent_turn"`
}

// Log is a thread-safe append-only audit sink backed by a JSONL file,
// optionally mirrored into a SQLite audit_log table.
type Log struct {
	mu   sync.Mutex
	path string
	file *os.File
	db   *sql.DB

	now func() time.Time
}

// Open creates the log directory if needed and opens audit.jsonl for
// appending.
func Open(logDir string) (*Log, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	path := filepath.Join(logDir, FileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &Log{path: path, file: f, now: time.Now}, nil
}

// AttachDB opens (or creates) a SQLite mirror of the audit log.
func (l *Log) AttachDB(dbPath string) error {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return fmt.Errorf("open audit db: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), `
		CREATE TABLE IF NOT EXISTS audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			task TEXT NOT NULL,
			action TEXT NOT NULL,
			input TEXT,
			result TEXT,
			agent_turn INTEGER NOT NULL DEFAULT 0
		);
	`); err != nil {
		db.Close()
		return fmt.Errorf("create audit_log table: %w", err)
	}
	l.mu.Lock()
	l.db = db
	l.mu.Unlock()
	return nil
}

// Close closes the file and any attached DB.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	if l.file != nil {
		firstErr = l.file.Close()
		l.file = nil
	}
	if l.db != nil {
		if err := l.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		l.db = nil
	}
	return firstErr
}

// Append writes one record. Secrets are redacted from the serialized
// line before it hits disk. Append never fails the caller: audit
// persistence problems must not take down task processing.
func (l *Log) Append(rec Record) {
	if rec.TS == "" {
		rec.TS = l.now().UTC().Format(time.RFC3339)
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return
	}
	line := shared.Redact(string(b))

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		_, _ = l.file.WriteString(line + "\n")
	}
	if l.db != nil {
		in, _ := json.Marshal(rec.Input)
		out, _ := json.Marshal(rec.Result)
		_, _ = l.db.ExecContext(context.Background(), `
			INSERT INTO audit_log (ts, task, action, input, result, agent_turn)
			VALUES (?, ?, ?, ?, ?, ?);
		`, rec.TS, rec.Task, rec.Action, shared.Redact(string(in)), shared.Redact(string(out)), rec.AgentTurn)
	}
}

// Action records a single skill invocation or transition.
func (l *Log) Action(task, action string, input, result any, turn int) {
	l.Append(Record{Task: task, Action: action, Input: input, Result: result, AgentTurn: turn})
}

// Completion records a finished task with its turn count.
func (l *Log) Completion(task string, turns int, planWritten bool) {
	l.Append(Record{
		Task:      task,
		Action:    "task_completed",
		Input:     map[string]any{},
		Result:    map[string]any{"ok": true, "turns": turns, "plan_written": planWritten},
		AgentTurn: turns,
	})
}

// Error records an unhandled failure.
func (l *Log) Error(task, errMsg string, turn int) {
	l.Append(Record{
		Task:      task,
		Action:    "error",
		Input:     map[string]any{},
		Result:    map[string]any{"ok": false, "error": errMsg},
		AgentTurn: turn,
	})
}

// QueryWindow returns records whose timestamp falls within the past
// window, in append order. Malformed lines are skipped, not fatal.
func (l *Log) QueryWindow(window time.Duration) ([]Record, error) {
	l.mu.Lock()
	path := l.path
	now := l.now()
	l.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	cutoff := now.Add(-window)
	var out []Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		ts, err := time.Parse(time.RFC3339, rec.TS)
		if err != nil {
			continue
		}
		if !ts.Before(cutoff) {
			out = append(out, rec)
		}
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("scan audit log: %w", err)
	}
	return out, nil
}
