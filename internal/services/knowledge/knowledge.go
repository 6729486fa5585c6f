package knowledge

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

//go:embed data/syllabus.json
var builtin []byte

// Semester describes one semester of a department
type Semester struct {
	Year     int      `json:"year"`
	Title    string   `json:"title"`
	Focus    string   `json:"focus"`
	Subjects []string `json:"subjects"`
}

// Catalog is the on-disk form of the syllabus data
type Catalog struct {
	References  []string                       `json:"references,omitempty"`
	Links       map[string]string              `json:"links,omitempty"`
	Departments map[string]map[string]Semester `json:"departments"`
}

// Service interface for syllabus lookups
type Service interface {
	LoadOverrides(ctx context.Context, dir string) error
	Semester(department, semester string) (Semester, bool)
	Department(department string) (map[string]Semester, bool)
	Departments() []string
	References() []string
	Links() map[string]string
}

// KnowledgeService serves the embedded syllabus, optionally extended from a directory
type KnowledgeService struct {
	catalog   Catalog
	catalogRW sync.RWMutex
	logger    *logrus.Logger
}

// NewKnowledgeService creates a service over the built-in catalog
func NewKnowledgeService(logger *logrus.Logger) (*KnowledgeService, error) {
	var catalog Catalog
	if err := json.Unmarshal(builtin, &catalog); err != nil {
		return nil, fmt.Errorf("failed to decode built-in syllabus: %w", err)
	}
	return &KnowledgeService{catalog: catalog, logger: logger}, nil
}

// LoadOverrides merges every *.json catalog found under dir. Departments and
// semesters in the files replace the built-in entries; unreadable files are
// skipped.
func (s *KnowledgeService) LoadOverrides(ctx context.Context, dir string) error {
	if dir == "" {
		return nil
	}
	s.logger.WithField("dir", dir).Info("Loading syllabus overrides")

	loaded := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(path), ".json") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.WithError(err).WithField("path", path).Warn("Failed to read syllabus file")
			return nil
		}
		var extra Catalog
		if err := json.Unmarshal(data, &extra); err != nil {
			s.logger.WithError(err).WithField("path", path).Warn("Failed to parse syllabus file")
			return nil
		}

		s.merge(extra)
		loaded++
		s.logger.WithFields(logrus.Fields{
			"path":        path,
			"departments": len(extra.Departments),
		}).Debug("Loaded syllabus file")
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk syllabus directory: %w", err)
	}

	s.logger.WithField("files", loaded).Info("Syllabus overrides loaded")
	return nil
}

func (s *KnowledgeService) merge(extra Catalog) {
	s.catalogRW.Lock()
	defer s.catalogRW.Unlock()

	if s.catalog.Departments == nil {
		s.catalog.Departments = make(map[string]map[string]Semester)
	}
	for dept, sems := range extra.Departments {
		dept = strings.ToUpper(dept)
		if s.catalog.Departments[dept] == nil {
			s.catalog.Departments[dept] = make(map[string]Semester)
		}
		for sem, info := range sems {
			s.catalog.Departments[dept][sem] = info
		}
	}
	if len(extra.References) > 0 {
		s.catalog.References = extra.References
	}
	if s.catalog.Links == nil {
		s.catalog.Links = make(map[string]string)
	}
	for k, v := range extra.Links {
		s.catalog.Links[k] = v
	}
}

// Semester looks up a department's semester. Department names are matched
// case-insensitively.
func (s *KnowledgeService) Semester(department, semester string) (Semester, bool) {
	s.catalogRW.RLock()
	defer s.catalogRW.RUnlock()

	sems, ok := s.catalog.Departments[strings.ToUpper(strings.TrimSpace(department))]
	if !ok {
		return Semester{}, false
	}
	info, ok := sems[strings.TrimSpace(semester)]
	return info, ok
}

func (s *KnowledgeService) Department(department string) (map[string]Semester, bool) {
	s.catalogRW.RLock()
	defer s.catalogRW.RUnlock()

	sems, ok := s.catalog.Departments[strings.ToUpper(strings.TrimSpace(department))]
	if !ok {
		return nil, false
	}
	out := make(map[string]Semester, len(sems))
	for k, v := range sems {
		out[k] = v
	}
	return out, true
}

func (s *KnowledgeService) Departments() []string {
	s.catalogRW.RLock()
	defer s.catalogRW.RUnlock()

	out := make([]string, 0, len(s.catalog.Departments))
	for d := range s.catalog.Departments {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func (s *KnowledgeService) References() []string {
	s.catalogRW.RLock()
	defer s.catalogRW.RUnlock()
	return append([]string(nil), s.catalog.References...)
}

func (s *KnowledgeService) Links() map[string]string {
	s.catalogRW.RLock()
	defer s.catalogRW.RUnlock()

	out := make(map[string]string, len(s.catalog.Links))
	for k, v := range s.catalog.Links {
		out[k] = v
	}
	return out
}
