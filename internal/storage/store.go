// Package storage keeps finished runs on disk, one directory per run holding
// metadata.json and samples.csv.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	billy "gopkg.in/src-d/go-billy.v4"
	"gopkg.in/src-d/go-billy.v4/osfs"

	"github.com/san-kum/seesaw/internal/config"
	"github.com/san-kum/seesaw/internal/sampling"
)

const (
	metadataFile = "metadata.json"
	samplesFile  = "samples.csv"
)

var ErrNoRuns = errors.New("storage: no runs recorded")

type Store struct {
	fs billy.Filesystem
}

// New opens a store rooted at dir on the local disk.
func New(dir string) *Store {
	return &Store{fs: osfs.New(dir)}
}

func NewWithFS(fs billy.Filesystem) *Store {
	return &Store{fs: fs}
}

type RunMetadata struct {
	ID        string             `json:"id"`
	Run       int                `json:"run"`
	Source    string             `json:"source"`
	Timestamp time.Time          `json:"timestamp"`
	Tuning    config.Tuning      `json:"tuning"`
	Rig       config.Rig         `json:"rig"`
	ElapsedMs uint32             `json:"elapsed_ms"`
	Samples   int                `json:"samples"`
	Trips     int                `json:"trips"`
	Aborted   bool               `json:"aborted"`
	Metrics   map[string]float64 `json:"metrics"`
}

// NewID returns a sortable, collision-resistant run id.
func NewID(t time.Time) string {
	return fmt.Sprintf("run_%d_%s", t.Unix(), uuid.NewString()[:8])
}

// Save writes a run and returns its id. A zero Timestamp or empty ID is
// filled in.
func (s *Store) Save(meta RunMetadata, samples []sampling.Sample) (string, error) {
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	if meta.ID == "" {
		meta.ID = NewID(meta.Timestamp)
	}
	meta.Samples = len(samples)

	if err := s.fs.MkdirAll(meta.ID, 0755); err != nil {
		return "", err
	}

	err := s.create(path.Join(meta.ID, metadataFile), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(meta)
	})
	if err != nil {
		return "", err
	}

	err = s.create(path.Join(meta.ID, samplesFile), func(w io.Writer) error {
		return WriteCSV(w, samples)
	})
	if err != nil {
		return "", err
	}
	return meta.ID, nil
}

func (s *Store) create(name string, write func(io.Writer) error) (err error) {
	f, err := s.fs.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()
	return write(f)
}

// List returns every readable run, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := s.fs.ReadDir("")
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].Timestamp.Equal(runs[j].Timestamp) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].Timestamp.Before(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	f, err := s.fs.Open(path.Join(runID, metadataFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var meta RunMetadata
	if err := json.NewDecoder(f).Decode(&meta); err != nil {
		return nil, fmt.Errorf("storage: %s: %w", runID, err)
	}
	return &meta, nil
}

func (s *Store) LoadSamples(runID string) ([]sampling.Sample, error) {
	f, err := s.fs.Open(path.Join(runID, samplesFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

// Resolve maps "" or "latest" to the newest run id.
func (s *Store) Resolve(runID string) (string, error) {
	if runID != "" && runID != "latest" {
		return runID, nil
	}
	runs, err := s.List()
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", ErrNoRuns
	}
	return runs[len(runs)-1].ID, nil
}
