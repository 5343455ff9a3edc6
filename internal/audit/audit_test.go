package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestAppend(t *testing.T) {
	t.Run("one_json_object_per_line", func(t *testing.T) {
		dir := t.TempDir()
		l, err := Open(dir)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer l.Close()

		l.Action("T1.md", "send_email", map[string]any{"to": "a@b.c"}, map[string]any{"ok": true}, 2)
		l.Completion("T1.md", 3, true)

		f, err := os.Open(filepath.Join(dir, FileName))
		if err != nil {
			t.Fatal(err)
		}
		defer f.Close()
		sc := bufio.NewScanner(f)
		var lines int
		for sc.Scan() {
			lines++
			var rec Record
			if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
				t.Errorf("line %d not valid JSON: %v", lines, err)
			}
			if rec.TS == "" {
				t.Errorf("line %d missing ts", lines)
			}
		}
		if lines != 2 {
			t.Errorf("got %d lines, want 2", lines)
		}
	})

	t.Run("secrets_redacted_before_persistence", func(t *testing.T) {
		dir := t.TempDir()
		l, err := Open(dir)
		if err != nil {
			t.Fatal(err)
		}
		defer l.Close()

		l.Error("T1.md", "auth failed: api_key=abcdef0123456789abcdef", 0)
		b, err := os.ReadFile(filepath.Join(dir, FileName))
		if err != nil {
			t.Fatal(err)
		}
		if strings.Contains(string(b), "abcdef0123456789abcdef") {
			t.Error("secret reached disk")
		}
	})

	t.Run("concurrent_appends_stay_line_separated", func(t *testing.T) {
		dir := t.TempDir()
		l, err := Open(dir)
		if err != nil {
			t.Fatal(err)
		}
		defer l.Close()

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				l.Action("T.md", "list_contacts", map[string]any{"n": n}, map[string]any{"ok": true}, 0)
			}(i)
		}
		wg.Wait()

		f, err := os.Open(filepath.Join(dir, FileName))
		if err != nil {
			t.Fatal(err)
		}
		defer f.Close()
		sc := bufio.NewScanner(f)
		var lines int
		for sc.Scan() {
			lines++
			var rec Record
			if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
				t.Errorf("interleaved write corrupted line %d", lines)
			}
		}
		if lines != 20 {
			t.Errorf("got %d lines, want 20", lines)
		}
	})
}

func TestQueryWindow(t *testing.T) {
	t.Run("filters_by_timestamp", func(t *testing.T) {
		dir := t.TempDir()
		l, err := Open(dir)
		if err != nil {
			t.Fatal(err)
		}
		defer l.Close()

		now := time.Now().UTC()
		l.Append(Record{TS: now.Add(-48 * time.Hour).Format(time.RFC3339), Task: "old.md", Action: "x"})
		l.Append(Record{TS: now.Add(-time.Hour).Format(time.RFC3339), Task: "new.md", Action: "y"})

		recs, err := l.QueryWindow(24 * time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		if len(recs) != 1 || recs[0].Task != "new.md" {
			t.Errorf("got %+v", recs)
		}
	})

	t.Run("skips_malformed_lines", func(t *testing.T) {
		dir := t.TempDir()
		l, err := Open(dir)
		if err != nil {
			t.Fatal(err)
		}
		defer l.Close()

		l.Action("good.md", "x", nil, nil, 0)
		// Corrupt the file by hand.
		f, err := os.OpenFile(filepath.Join(dir, FileName), os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			t.Fatal(err)
		}
		f.WriteString("{not json\n")
		f.Close()
		l.Action("good2.md", "y", nil, nil, 0)

		recs, err := l.QueryWindow(time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		if len(recs) != 2 {
			t.Errorf("got %d records, want 2 (malformed skipped)", len(recs))
		}
	})

	t.Run("missing_file_is_empty", func(t *testing.T) {
		dir := t.TempDir()
		l, err := Open(dir)
		if err != nil {
			t.Fatal(err)
		}
		l.Close()
		os.Remove(filepath.Join(dir, FileName))
		recs, err := l.QueryWindow(time.Hour)
		if err != nil || recs != nil {
			t.Errorf("got %v, %v", recs, err)
		}
	})
}

func TestAttachDB(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	if err := l.AttachDB(filepath.Join(dir, "audit.db")); err != nil {
		t.Fatalf("AttachDB: %v", err)
	}
	l.Action("T1.md", "post_payment", map[string]any{"amount": 10}, map[string]any{"ok": true}, 1)

	// Row must be visible through a fresh handle on the same file.
	recs, err := l.QueryWindow(time.Hour)
	if err != nil || len(recs) != 1 {
		t.Fatalf("jsonl side broken: %v, %v", recs, err)
	}
}
