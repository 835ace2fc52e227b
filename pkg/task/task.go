// Package task is the host side of one submission: the file under analysis,
// its scratch directory, and whatever the service hands back for it.
package task

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/samber/lo"

	"ghidra_auto_analysis/analysis-service/pkg/result"
)

// ErrEmptyArtifact rejects registering a zero-length file.
var ErrEmptyArtifact = errors.New("supplementary file is empty")

// Task is one submission being analyzed in its own scratch dir.
type Task struct {
	SID       string
	SHA256    string
	StartedAt time.Time

	filePath string
	fileName string
	workDir  string

	result        *result.Result
	supplementary []result.Supplementary
}

// New hashes the submitted file; an unreadable file fails the task up front.
func New(sid, filePath, fileName, workDir string) (*Task, error) {
	hash, err := FileSHA256(filePath)
	if err != nil {
		return nil, fmt.Errorf("hashing submission: %w", err)
	}
	return &Task{
		SID:       sid,
		SHA256:    hash,
		StartedAt: time.Now().UTC(),
		filePath:  filePath,
		fileName:  fileName,
		workDir:   workDir,
	}, nil
}

func (t *Task) FilePath() string { return t.filePath }

func (t *Task) FileName() string { return t.fileName }

func (t *Task) WorkDir() string { return t.workDir }

func (t *Task) Result() *result.Result { return t.result }

func (t *Task) Supplementary() []result.Supplementary { return t.supplementary }

// SetResult hands the terminal result to the task.
func (t *Task) SetResult(res *result.Result) {
	t.result = res
}

// AddSupplementary registers an extra output file. The file must exist and be
// non-empty; names are unique per task.
func (t *Task) AddSupplementary(path, name, description string, relation result.ParentRelation) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("adding supplementary %s: %w", name, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("adding supplementary %s: %w", name, ErrEmptyArtifact)
	}
	if lo.ContainsBy(t.supplementary, func(s result.Supplementary) bool { return s.Name == name }) {
		return fmt.Errorf("adding supplementary %s: already registered", name)
	}
	hash, err := FileSHA256(path)
	if err != nil {
		return fmt.Errorf("adding supplementary %s: %w", name, err)
	}
	t.supplementary = append(t.supplementary, result.Supplementary{
		Path:           path,
		Name:           name,
		Description:    description,
		ParentRelation: relation,
		SHA256:         hash,
		Size:           info.Size(),
	})
	return nil
}

// Record is the stored outcome of a task.
type Record struct {
	SID           string                 `json:"sid"`
	SHA256        string                 `json:"sha256"`
	FileName      string                 `json:"file_name"`
	Result        *result.Result         `json:"result,omitempty"`
	Supplementary []result.Supplementary `json:"supplementary,omitempty"`
	Error         string                 `json:"error,omitempty"`
	StartedAt     time.Time              `json:"started_at"`
	CompletedAt   time.Time              `json:"completed_at"`
}

// Failed reports whether the task ended with an error.
func (r Record) Failed() bool {
	return r.Error != ""
}

// Record snapshots the task outcome. A failed task carries no result or
// supplementary files.
func (t *Task) Record(err error) Record {
	rec := Record{
		SID:         t.SID,
		SHA256:      t.SHA256,
		FileName:    t.fileName,
		StartedAt:   t.StartedAt,
		CompletedAt: time.Now().UTC(),
	}
	if err != nil {
		rec.Error = err.Error()
		return rec
	}
	rec.Result = t.result
	rec.Supplementary = append([]result.Supplementary(nil), t.supplementary...)
	return rec
}

// FileSHA256 returns the hex SHA256 of the file at path.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
