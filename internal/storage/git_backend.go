package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/rs/zerolog/log"
)

// GitArchive commits final artifacts into a local git repository,
// giving the surviving outputs (markdown document, JSON record) a
// versioned history. It is an optional collaborator: the pipeline
// works without it.
type GitArchive struct {
	repo     *git.Repository
	repoPath string
	metrics  MetricsCollector
}

// NewGitArchive opens the repository at repoPath, initializing it if
// missing.
func NewGitArchive(repoPath string, metrics MetricsCollector) (*GitArchive, error) {
	if metrics == nil {
		metrics = NoopMetricsCollector{}
	}
	repo, err := git.PlainOpen(repoPath)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		if mkErr := os.MkdirAll(repoPath, 0o755); mkErr != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", mkErr)
		}
		repo, err = git.PlainInit(repoPath, false)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open archive repository: %w", err)
	}

	return &GitArchive{repo: repo, repoPath: repoPath, metrics: metrics}, nil
}

// Archive writes the named artifact into the repository worktree and
// commits it. Returns the commit hash.
func (g *GitArchive) Archive(ctx context.Context, name string, data []byte) (string, error) {
	start := time.Now()
	hash, err := g.archive(name, data)
	g.record("archive", start, err)
	return hash, err
}

func (g *GitArchive) archive(name string, data []byte) (string, error) {
	name = sanitizeName(name)
	if name == "" {
		return "", &PersistenceError{Op: "archive", Name: name, Err: fmt.Errorf("empty artifact name")}
	}

	if err := os.WriteFile(filepath.Join(g.repoPath, name), data, 0o644); err != nil {
		return "", &PersistenceError{Op: "archive", Name: name, Err: err}
	}

	worktree, err := g.repo.Worktree()
	if err != nil {
		return "", &PersistenceError{Op: "archive", Name: name, Err: err}
	}
	if _, err := worktree.Add(name); err != nil {
		return "", &PersistenceError{Op: "archive", Name: name, Err: err}
	}

	commit, err := worktree.Commit(fmt.Sprintf("Archive artifact %s", name), &git.CommitOptions{
		Author: &object.Signature{
			Name:  "pagelift",
			Email: "pagelift@localhost",
			When:  time.Now(),
		},
	})
	if err != nil {
		return "", &PersistenceError{Op: "archive", Name: name, Err: err}
	}

	log.Debug().Str("artifact", name).Str("commit", commit.String()).Msg("Artifact archived")
	return commit.String(), nil
}

// Health checks that the repository is accessible. A repository with
// no commits yet is healthy.
func (g *GitArchive) Health(ctx context.Context) error {
	_, err := g.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil
	}
	return err
}

func (g *GitArchive) record(op string, start time.Time, err error) {
	g.metrics.RecordMetric(StorageMetrics{
		OperationType: op,
		Duration:      time.Since(start).Nanoseconds(),
		Success:       err == nil,
		Backend:       "git",
		Error:         err,
	})
}
