package investigate

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// Commit patterns derived from history length.
const (
	PatternBulkUpload = "bulk_upload"
	PatternMinimal    = "minimal"
	PatternAtomic     = "atomic"
)

// Commit is one entry of the repository log, oldest first.
type Commit struct {
	Hash      string `json:"hash"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

// History summarizes the commit log.
type History struct {
	Commits []Commit `json:"commits"`
	Count   int      `json:"commit_count"`
	Pattern string   `json:"pattern"`
	Error   string   `json:"error,omitempty"`
}

// CommitPattern classifies a history by its length.
func CommitPattern(count int) string {
	switch {
	case count <= 1:
		return PatternBulkUpload
	case count <= 3:
		return PatternMinimal
	default:
		return PatternAtomic
	}
}

// ParseLog parses `git log --format=%h|%ai|%s` output.
func ParseLog(out []byte) []Commit {
	var commits []Commit
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "|", 3)
		if len(parts) != 3 {
			continue
		}
		commits = append(commits, Commit{Hash: parts[0], Timestamp: parts[1], Message: parts[2]})
	}
	return commits
}

// ReadHistory runs git log in dir. A failing git command is recorded in
// History.Error rather than returned.
func ReadHistory(ctx context.Context, git, dir string) History {
	if git == "" {
		git = "git"
	}
	cmd := exec.CommandContext(ctx, git, "log", "--reverse", "--format=%h|%ai|%s")
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return History{Pattern: CommitPattern(0), Error: msg}
	}
	commits := ParseLog(out)
	return History{Commits: commits, Count: len(commits), Pattern: CommitPattern(len(commits))}
}

// ScannedExtensions are the file types included in the file list.
var ScannedExtensions = []string{".py", ".go", ".md", ".toml", ".json", ".yaml", ".yml"}

// ListFiles returns repo-relative, slash-separated paths of scanned files,
// sorted. Directories starting with "." or "__" are skipped.
func ListFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "__")) {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		for _, want := range ScannedExtensions {
			if ext == want {
				rel, err := filepath.Rel(root, path)
				if err != nil {
					return err
				}
				files = append(files, filepath.ToSlash(rel))
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	sort.Strings(files)
	return files, nil
}
