// Package gitrepo keeps a local git history of case snapshots. Each case gets
// its own repository under the archive directory; every archive run commits
// the current case, tasks, readiness and audit trail as snapshot.json.
package gitrepo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"offboarding/ocm/internal/gateway"
	"offboarding/ocm/internal/readiness"
)

const snapshotFile = "snapshot.json"

var (
	ErrNoArchive = errors.New("case has no archive")
	safeCaseID   = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
)

// Snapshot is the archived state of one case.
type Snapshot struct {
	Case      gateway.CaseRecord      `json:"case"`
	Tasks     []gateway.Task          `json:"tasks"`
	Readiness *readiness.Summary      `json:"readiness,omitempty"`
	Audit     []gateway.AuditLogEntry `json:"audit"`
}

type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	// Unchanged is set when the snapshot matched the previous commit and nothing was written.
	Unchanged bool `json:"unchanged,omitempty"`
}

type Archive struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Archive {
	return &Archive{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Commit records snap in the case's repository, creating it on first use.
func (a *Archive) Commit(snap Snapshot, author, message string) (CommitInfo, error) {
	caseID := snap.Case.ID
	path, err := a.repoPath(caseID)
	if err != nil {
		return CommitInfo{}, err
	}
	lock := a.caseLock(caseID)
	lock.Lock()
	defer lock.Unlock()

	repo, created, err := openOrInit(path)
	if err != nil {
		return CommitInfo{}, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open worktree: %w", err)
	}

	normalizeSnapshot(&snap)
	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return CommitInfo{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(filepath.Join(path, snapshotFile), append(payload, '\n'), 0o644); err != nil {
		return CommitInfo{}, fmt.Errorf("write %s: %w", snapshotFile, err)
	}
	if _, err := worktree.Add(snapshotFile); err != nil {
		return CommitInfo{}, fmt.Errorf("git add snapshot: %w", err)
	}

	if !created {
		status, err := worktree.Status()
		if err != nil {
			return CommitInfo{}, fmt.Errorf("worktree status: %w", err)
		}
		if status.IsClean() {
			head, err := headCommit(repo)
			if err != nil {
				return CommitInfo{}, err
			}
			info := toCommitInfo(head)
			info.Unchanged = true
			return info, nil
		}
	}

	if strings.TrimSpace(message) == "" {
		message = fmt.Sprintf("Archive case %s (%s)", caseID, snap.Case.Status)
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: authorEmail(author),
			When:  time.Now(),
		},
	})
	if err != nil {
		return CommitInfo{}, fmt.Errorf("commit snapshot: %w", err)
	}
	if created {
		if err := pointMainAt(repo, hash); err != nil {
			return CommitInfo{}, err
		}
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

// Read returns the snapshot at hash, or at HEAD when hash is empty.
func (a *Archive) Read(caseID, hash string) (Snapshot, CommitInfo, error) {
	repo, unlock, err := a.open(caseID)
	if err != nil {
		return Snapshot{}, CommitInfo{}, err
	}
	defer unlock()

	var commitObj *object.Commit
	if hash == "" {
		commitObj, err = headCommit(repo)
	} else {
		var resolved plumbing.Hash
		resolved, err = resolveHash(repo, hash)
		if err == nil {
			commitObj, err = repo.CommitObject(resolved)
		}
	}
	if err != nil {
		return Snapshot{}, CommitInfo{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	snap, err := readSnapshot(commitObj)
	if err != nil {
		return Snapshot{}, CommitInfo{}, err
	}
	return snap, toCommitInfo(commitObj), nil
}

// History lists commits newest first. limit <= 0 means all.
func (a *Archive) History(caseID string, limit int) ([]CommitInfo, error) {
	repo, unlock, err := a.open(caseID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	head, err := headCommit(repo)
	if err != nil {
		return nil, err
	}
	iter, err := repo.Log(&git.LogOptions{From: head.Hash})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

func (a *Archive) open(caseID string) (*git.Repository, func(), error) {
	path, err := a.repoPath(caseID)
	if err != nil {
		return nil, nil, err
	}
	lock := a.caseLock(caseID)
	lock.Lock()
	repo, err := git.PlainOpen(path)
	if err != nil {
		lock.Unlock()
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, nil, fmt.Errorf("%w: %s", ErrNoArchive, caseID)
		}
		return nil, nil, fmt.Errorf("open repo: %w", err)
	}
	return repo, lock.Unlock, nil
}

func (a *Archive) repoPath(caseID string) (string, error) {
	if !safeCaseID.MatchString(caseID) || caseID == "." || caseID == ".." {
		return "", fmt.Errorf("invalid case id %q", caseID)
	}
	return filepath.Join(a.baseDir, caseID), nil
}

func (a *Archive) caseLock(caseID string) *sync.Mutex {
	a.lockMu.Lock()
	defer a.lockMu.Unlock()
	lock, ok := a.locks[caseID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	a.locks[caseID] = lock
	return lock
}

func openOrInit(path string) (*git.Repository, bool, error) {
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, false, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, false, fmt.Errorf("open repo: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, false, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, false, fmt.Errorf("init repo: %w", err)
	}
	return repo, true, nil
}

func pointMainAt(repo *git.Repository, hash plumbing.Hash) error {
	main := plumbing.NewBranchReferenceName("main")
	if err := repo.Storer.SetReference(plumbing.NewHashReference(main, hash)); err != nil {
		return fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, main)); err != nil {
		return fmt.Errorf("set HEAD to main: %w", err)
	}
	return nil
}

func headCommit(repo *git.Repository) (*object.Commit, error) {
	ref, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}
	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("load head commit: %w", err)
	}
	return commitObj, nil
}

func readSnapshot(commitObj *object.Commit) (Snapshot, error) {
	file, err := commitObj.File(snapshotFile)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load %s from commit: %w", snapshotFile, err)
	}
	contents, err := file.Contents()
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(contents), &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// normalizeSnapshot orders collections so identical state serializes identically.
func normalizeSnapshot(snap *Snapshot) {
	if snap.Tasks == nil {
		snap.Tasks = []gateway.Task{}
	}
	if snap.Audit == nil {
		snap.Audit = []gateway.AuditLogEntry{}
	}
	sort.SliceStable(snap.Tasks, func(i, j int) bool { return snap.Tasks[i].ID < snap.Tasks[j].ID })
	sort.SliceStable(snap.Audit, func(i, j int) bool {
		if snap.Audit[i].CreatedAt != snap.Audit[j].CreatedAt {
			return snap.Audit[i].CreatedAt < snap.Audit[j].CreatedAt
		}
		return snap.Audit[i].ID < snap.Audit[j].ID
	})
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	return CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   strings.TrimSpace(commitObj.Message),
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func authorEmail(author string) string {
	if strings.Contains(author, "@") {
		return author
	}
	local := make([]rune, 0, len(author))
	for _, r := range author {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			local = append(local, r)
		case r == ' ' || r == '-' || r == '_':
			local = append(local, '.')
		}
	}
	if len(local) == 0 {
		return "operator@ocm.local"
	}
	return string(local) + "@ocm.local"
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
