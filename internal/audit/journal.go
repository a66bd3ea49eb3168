// Package audit keeps a git-backed journal of workflow transitions.
// Every state change commits a JSON snapshot of the entity, so the
// full before/after history of any record can be reconstructed from
// the repository log independently of the database.
package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// CommitInfo describes one journal entry.
type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

// Journal is a single git repository holding one JSON file per entity,
// laid out as <entity_type>/<entity_id>.json. Commits are serialized
// by a process-wide lock since they share the worktree index.
type Journal struct {
	baseDir string
	mu      sync.Mutex
}

// NewJournal opens the journal at baseDir, initializing an empty
// repository on first use.
func NewJournal(baseDir string) (*Journal, error) {
	j := &Journal{baseDir: baseDir}

	if _, err := git.PlainOpen(baseDir); err == nil {
		return j, nil
	} else if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open journal repo: %w", err)
	}

	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	repo, err := git.PlainInit(baseDir, false)
	if err != nil {
		return nil, fmt.Errorf("init journal repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}
	readme := []byte("Workflow transition journal. One JSON snapshot per entity, one commit per transition.\n")
	if err := os.WriteFile(filepath.Join(baseDir, "README"), readme, 0o644); err != nil {
		return nil, fmt.Errorf("write journal readme: %w", err)
	}
	if _, err := worktree.Add("README"); err != nil {
		return nil, fmt.Errorf("git add readme: %w", err)
	}
	hash, err := worktree.Commit("Initialize transition journal", &git.CommitOptions{
		Author: journalSignature("system"),
	})
	if err != nil {
		return nil, fmt.Errorf("commit journal baseline: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), hash)); err != nil {
		return nil, fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return nil, fmt.Errorf("set HEAD to main: %w", err)
	}
	return j, nil
}

// RecordTransition commits the entity snapshot under its journal path.
func (j *Journal) RecordTransition(entityType, entityID string, snapshot any, actor, message string) (CommitInfo, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	repo, err := git.PlainOpen(j.baseDir)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open journal repo: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return CommitInfo{}, fmt.Errorf("marshal snapshot: %w", err)
	}

	relPath := entityPath(entityType, entityID)
	absPath := filepath.Join(j.baseDir, relPath)
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return CommitInfo{}, fmt.Errorf("create entity dir: %w", err)
	}
	if err := os.WriteFile(absPath, append(payload, '\n'), 0o644); err != nil {
		return CommitInfo{}, fmt.Errorf("write snapshot: %w", err)
	}
	if _, err := worktree.Add(relPath); err != nil {
		return CommitInfo{}, fmt.Errorf("git add snapshot: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author:            journalSignature(actor),
	})
	if err != nil {
		return CommitInfo{}, fmt.Errorf("commit snapshot: %w", err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

// History returns journal entries touching one entity, newest first.
func (j *Journal) History(entityType, entityID string, limit int) ([]CommitInfo, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	repo, err := git.PlainOpen(j.baseDir)
	if err != nil {
		return nil, fmt.Errorf("open journal repo: %w", err)
	}

	relPath := entityPath(entityType, entityID)
	iter, err := repo.Log(&git.LogOptions{
		FileName: &relPath,
		All:      false,
	})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// SnapshotAt reads an entity snapshot as of a journal commit.
func (j *Journal) SnapshotAt(entityType, entityID, hash string) (map[string]any, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	repo, err := git.PlainOpen(j.baseDir)
	if err != nil {
		return nil, fmt.Errorf("open journal repo: %w", err)
	}
	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return nil, err
	}
	commitObj, err := repo.CommitObject(resolved)
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", hash, err)
	}
	file, err := commitObj.File(entityPath(entityType, entityID))
	if err != nil {
		return nil, fmt.Errorf("load snapshot from commit: %w", err)
	}
	reader, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("open snapshot reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read snapshot bytes: %w", err)
	}
	var snapshot map[string]any
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return snapshot, nil
}

func entityPath(entityType, entityID string) string {
	return filepath.Join(entityType, entityID+".json")
}

func journalSignature(actor string) *object.Signature {
	if actor == "" {
		actor = "system"
	}
	return &object.Signature{
		Name:  actor,
		Email: fmt.Sprintf("%s@journal.facilityfix.local", sanitizeEmail(actor)),
		When:  time.Now(),
	}
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	return CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
