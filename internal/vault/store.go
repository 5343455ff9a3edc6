// Package vault implements the durable shared store: a directory tree of
// named queues holding task artifacts. Renames between queues are the
// only state transitions, so a scan never observes an artifact in two
// queues at once.
package vault

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Queue names under the vault root.
const (
	QueueInput           = "Input"
	QueueInProgress      = "InProgress"
	QueueCompleted       = "Completed"
	QueueRejected        = "Rejected"
	QueuePendingReview   = "PendingReview"
	QueueApprovalHandoff = "ApprovalHandoff"
	DirPlans             = "Plans"
	DirLogs              = "Logs"
)

// ErrClaimRaceLost marks a claim whose source artifact vanished before
// the rename: another actor claimed it first. Benign, never logged as an
// error.
var ErrClaimRaceLost = errors.New("claim race lost")

// Store is a handle on the vault root. All queue arguments are paths
// relative to the root, e.g. "Input/Email" or "InProgress/local".
type Store struct {
	root   string
	logger *slog.Logger
}

// New creates a Store rooted at path.
func New(root string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{root: root, logger: logger}
}

// Root returns the vault root path.
func (s *Store) Root() string {
	return s.root
}

// EnsureLayout creates the standard queue directories, including the
// role-namespaced in-progress queue.
func (s *Store) EnsureLayout(roleID string) error {
	dirs := []string{
		QueueInput,
		filepath.Join(QueueInProgress, roleID),
		QueueCompleted,
		QueueRejected,
		QueuePendingReview,
		QueueApprovalHandoff,
		DirPlans,
		DirLogs,
	}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(s.root, d), 0o755); err != nil {
			return fmt.Errorf("create queue %s: %w", d, err)
		}
	}
	return nil
}

// Path returns the absolute path of an artifact in a queue.
func (s *Store) Path(queue, name string) string {
	return filepath.Join(s.root, queue, name)
}

// ListEligible returns the artifact names in a queue in stable
// lexicographic order. Only plain .md files count; a missing queue
// directory lists as empty.
func (s *Store) ListEligible(queue string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, queue))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list queue %s: %w", queue, err)
	}
	var names []string
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".md") {
			continue
		}
		names = append(names, ent.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Claim atomically moves an artifact from one queue into another,
// granting the caller exclusive processing rights. If the source no
// longer exists another actor won the race and ErrClaimRaceLost is
// returned.
func (s *Store) Claim(name, fromQueue, toQueue string) error {
	src := s.Path(fromQueue, name)
	dst := s.Path(toQueue, name)
	err := s.rename(src, dst)
	if err == nil {
		return nil
	}
	if os.IsNotExist(err) {
		// Either the source vanished (race lost) or the destination queue
		// is missing; rename reports ENOENT for both on most platforms.
		if _, statErr := os.Stat(src); statErr != nil {
			return ErrClaimRaceLost
		}
		return fmt.Errorf("claim %s: %w", name, err)
	}
	return fmt.Errorf("claim %s: %w", name, err)
}

// Release moves an artifact to a terminal or retry queue. newName may
// differ from name to encode an updated retry count; empty keeps the
// name. Failure here is a persistence failure: the artifact is left in
// place for manual recovery, never dropped.
func (s *Store) Release(name, fromQueue, toQueue, newName string) error {
	if newName == "" {
		newName = name
	}
	src := s.Path(fromQueue, name)
	dst := s.Path(toQueue, newName)
	if err := s.rename(src, dst); err != nil {
		return fmt.Errorf("release %s to %s: %w", name, toQueue, err)
	}
	return nil
}

// rename wraps os.Rename, recovering once from a missing destination
// queue by creating it and retrying.
func (s *Store) rename(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	// Source exists but destination directory may not: create and retry once.
	if _, statErr := os.Stat(src); statErr == nil {
		if mkErr := os.MkdirAll(filepath.Dir(dst), 0o755); mkErr == nil {
			return os.Rename(src, dst)
		}
	}
	return err
}

// Read returns the content of an artifact.
func (s *Store) Read(queue, name string) (string, error) {
	b, err := os.ReadFile(s.Path(queue, name))
	if err != nil {
		return "", fmt.Errorf("read %s/%s: %w", queue, name, err)
	}
	return string(b), nil
}

// Write creates or replaces an artifact atomically: content is written
// to a temp file in the destination queue and renamed into place, so a
// concurrent scan never observes a partially written artifact.
func (s *Store) Write(queue, name, content string) error {
	dir := filepath.Join(s.root, queue)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create queue %s: %w", queue, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("write %s/%s: %w", queue, name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s/%s: %w", queue, name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s/%s: %w", queue, name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s/%s: %w", queue, name, err)
	}
	return nil
}

// Exists reports whether an artifact is present in a queue.
func (s *Store) Exists(queue, name string) bool {
	_, err := os.Stat(s.Path(queue, name))
	return err == nil
}

// InProgressQueue returns the role-namespaced in-progress queue path.
func InProgressQueue(roleID string) string {
	return filepath.Join(QueueInProgress, roleID)
}

// InputQueue returns the input queue path for a domain; empty domain is
// the root input queue.
func InputQueue(domain string) string {
	if domain == "" {
		return QueueInput
	}
	return filepath.Join(QueueInput, domain)
}
