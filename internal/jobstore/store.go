// Package jobstore persists job records on the local filesystem, one
// directory per job id:
//
//	<base>/<id>/status.json
//	<base>/<id>/std_output.txt
//	<base>/<id>/error.txt
//	<base>/<id>/data.json
//
// Each record is written independently and may be absent. Readers must
// tolerate any subset being present. The store does no locking; a single
// writer per job is assumed.
package jobstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ssuji15/scriptd/internal/util"
	"github.com/ssuji15/scriptd/model"
)

var ErrInvalidID = errors.New("invalid job id")

type Store struct {
	baseDir string
}

func NewStore(baseDir string) (*Store, error) {
	if err := util.EnsureDirExist(baseDir); err != nil {
		return nil, fmt.Errorf("unable to prepare job directory: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

func validateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// JobDir is the directory holding every record of the job.
func (s *Store) JobDir(id string) string {
	return filepath.Join(s.baseDir, id)
}

func (s *Store) artifactPath(id string, a model.Artifact) string {
	return filepath.Join(s.JobDir(id), string(a))
}

// Exists reports whether anything was ever recorded for the job.
func (s *Store) Exists(id string) (bool, error) {
	if err := validateID(id); err != nil {
		return false, nil
	}
	info, err := os.Stat(s.JobDir(id))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// List returns the ids of all job directories, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("unable to list jobs: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes every record of the job. Deleting an unknown job is not an
// error.
func (s *Store) Delete(id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := os.RemoveAll(s.JobDir(id)); err != nil {
		return fmt.Errorf("unable to delete job %s: %w", id, err)
	}
	return nil
}

func (s *Store) read(id string, a model.Artifact) ([]byte, bool, error) {
	if err := validateID(id); err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(s.artifactPath(id, a))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("unable to read %s of job %s: %w", a, id, err)
	}
	return b, true, nil
}

// write replaces the record through a rename so readers never see a
// partially written file.
func (s *Store) write(id string, a model.Artifact, content []byte) error {
	if err := validateID(id); err != nil {
		return err
	}
	dir := s.JobDir(id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("unable to create directory of job %s: %w", id, err)
	}
	tmp, err := os.CreateTemp(dir, "."+string(a)+"-*")
	if err != nil {
		return fmt.Errorf("unable to write %s of job %s: %w", a, id, err)
	}
	defer os.Remove(tmp.Name())

	_, werr := tmp.Write(content)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		return fmt.Errorf("unable to write %s of job %s: %w", a, id, err)
	}
	if err := os.Rename(tmp.Name(), s.artifactPath(id, a)); err != nil {
		return fmt.Errorf("unable to write %s of job %s: %w", a, id, err)
	}
	return nil
}

func (s *Store) path(id string, a model.Artifact) (string, bool) {
	if validateID(id) != nil {
		return "", false
	}
	p := s.artifactPath(id, a)
	if _, err := os.Stat(p); err != nil {
		return "", false
	}
	return p, true
}

func (s *Store) GetStatus(id string) (model.Status, bool, error) {
	b, ok, err := s.read(id, model.ArtifactStatus)
	if err != nil || !ok {
		return model.Status{}, ok, err
	}
	var st model.Status
	if err := json.Unmarshal(b, &st); err != nil {
		return model.Status{}, false, fmt.Errorf("corrupt status of job %s: %w", id, err)
	}
	return st, true, nil
}

func (s *Store) SetStatus(id string, st model.Status) error {
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return s.write(id, model.ArtifactStatus, b)
}

func (s *Store) GetStdOutput(id string) (string, bool, error) {
	b, ok, err := s.read(id, model.ArtifactStdOutput)
	return string(b), ok, err
}

func (s *Store) SetStdOutput(id string, content string) error {
	return s.write(id, model.ArtifactStdOutput, []byte(content))
}

func (s *Store) StdOutputPath(id string) (string, bool) {
	return s.path(id, model.ArtifactStdOutput)
}

func (s *Store) GetError(id string) (string, bool, error) {
	b, ok, err := s.read(id, model.ArtifactError)
	return string(b), ok, err
}

func (s *Store) SetError(id string, content string) error {
	return s.write(id, model.ArtifactError, []byte(content))
}

func (s *Store) ErrorPath(id string) (string, bool) {
	return s.path(id, model.ArtifactError)
}

func (s *Store) GetData(id string) ([]byte, bool, error) {
	return s.read(id, model.ArtifactData)
}

func (s *Store) SetData(id string, content []byte) error {
	return s.write(id, model.ArtifactData, content)
}

func (s *Store) DataPath(id string) (string, bool) {
	return s.path(id, model.ArtifactData)
}

// DataFile is where the executed script writes its payload. The file need
// not exist.
func (s *Store) DataFile(id string) string {
	return s.artifactPath(id, model.ArtifactData)
}

// ArtifactPath returns the path of any present artifact.
func (s *Store) ArtifactPath(id string, a model.Artifact) (string, bool) {
	return s.path(id, a)
}
