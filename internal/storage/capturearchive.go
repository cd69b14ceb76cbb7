package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/valter-silva-au/chatrange/pkg/models"
	"gopkg.in/yaml.v3"
)

// CaptureArchive defines the interface for managing archived capture results
// under captures/.
type CaptureArchive interface {
	Add(capture models.CapturedTranscript, records []models.MessageRecord, transcript string) (string, error)
	Get(id string) (*models.CapturedTranscript, error)
	List(filter models.CaptureFilter) ([]models.CapturedTranscript, error)
	Recent(limit int) ([]models.CapturedTranscript, error)
	Records(id string) ([]models.MessageRecord, error)
	Transcript(id string) (string, error)
	SetSummary(id, summary, source string) error
	GenerateID() (string, error)
	Load() error
	Save() error
}

type fileCaptureArchive struct {
	basePath string

	mu    sync.RWMutex
	index models.CaptureIndex
}

// NewCaptureArchive creates a CaptureArchive backed by YAML files under
// captures/ in the given base directory.
func NewCaptureArchive(basePath string) CaptureArchive {
	return &fileCaptureArchive{
		basePath: basePath,
		index: models.CaptureIndex{
			Version: "1.0",
		},
	}
}

func (s *fileCaptureArchive) capturesDir() string {
	return filepath.Join(s.basePath, "captures")
}

func (s *fileCaptureArchive) indexPath() string {
	return filepath.Join(s.capturesDir(), "index.yaml")
}

func (s *fileCaptureArchive) counterPath() string {
	return filepath.Join(s.capturesDir(), ".capture_counter")
}

func (s *fileCaptureArchive) captureDir(id string) string {
	return filepath.Join(s.capturesDir(), id)
}

// GenerateID reads and increments the capture counter file, returning the
// next sequential ID in C-XXXXX format.
func (s *fileCaptureArchive) GenerateID() (string, error) {
	counterFile := s.counterPath()

	if err := os.MkdirAll(s.capturesDir(), 0o755); err != nil {
		return "", fmt.Errorf("generating capture ID: creating directory: %w", err)
	}

	unlock, err := s.lockCounter()
	if err != nil {
		return "", fmt.Errorf("generating capture ID: acquiring lock: %w", err)
	}
	defer unlock()

	counter := 0
	data, err := os.ReadFile(counterFile)
	if err == nil {
		trimmed := strings.TrimSpace(string(data))
		if trimmed != "" {
			counter, err = strconv.Atoi(trimmed)
			if err != nil {
				return "", fmt.Errorf("generating capture ID: parsing counter: %w", err)
			}
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("generating capture ID: reading counter: %w", err)
	}

	counter++
	id := fmt.Sprintf("C-%05d", counter)

	if err := os.WriteFile(counterFile, []byte(strconv.Itoa(counter)), 0o600); err != nil {
		return "", fmt.Errorf("generating capture ID: writing counter: %w", err)
	}
	return id, nil
}

// lockCounter acquires an exclusive lock on a sidecar of the counter file.
func (s *fileCaptureArchive) lockCounter() (unlock func() error, err error) {
	f, err := os.OpenFile(s.counterPath()+".lock", os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening counter lock file: %w", err)
	}

	// syscall.Flock is Unix-specific.
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("acquiring counter lock: %w", err)
	}

	return func() error {
		defer f.Close()
		return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	}, nil
}

// Add stores a capture with its records and rendered transcript. The capture
// must have an ID already assigned (via GenerateID).
func (s *fileCaptureArchive) Add(capture models.CapturedTranscript, records []models.MessageRecord, transcript string) (string, error) {
	if capture.ID == "" {
		return "", fmt.Errorf("adding capture: ID must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.index.Captures {
		if existing.ID == capture.ID {
			return "", fmt.Errorf("adding capture: %s already exists", capture.ID)
		}
	}

	dir := s.captureDir(capture.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("adding capture: creating directory: %w", err)
	}

	if err := s.saveYAML(filepath.Join(dir, "capture.yaml"), &capture); err != nil {
		return "", fmt.Errorf("adding capture: writing metadata: %w", err)
	}

	recordsWrapper := struct {
		Records []models.MessageRecord `yaml:"records"`
	}{Records: records}
	if err := s.saveYAML(filepath.Join(dir, "records.yaml"), &recordsWrapper); err != nil {
		return "", fmt.Errorf("adding capture: writing records: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "transcript.txt"), []byte(transcript+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("adding capture: writing transcript: %w", err)
	}

	if capture.Summary != "" {
		if err := s.writeSummary(capture.ID, capture.Summary); err != nil {
			return "", fmt.Errorf("adding capture: %w", err)
		}
	}

	s.index.Captures = append(s.index.Captures, capture)
	return capture.ID, nil
}

// Get returns the metadata for a capture by ID.
func (s *fileCaptureArchive) Get(id string) (*models.CapturedTranscript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, capture := range s.index.Captures {
		if capture.ID == id {
			return &capture, nil
		}
	}
	return nil, fmt.Errorf("capture %s not found", id)
}

// List returns captures matching the given filter criteria in archive order.
func (s *fileCaptureArchive) List(filter models.CaptureFilter) ([]models.CapturedTranscript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []models.CapturedTranscript
	for _, capture := range s.index.Captures {
		if filter.Source != "" && capture.Source != filter.Source {
			continue
		}
		if filter.Participant != "" && !hasParticipant(capture.Participants, filter.Participant) {
			continue
		}
		if filter.Since != nil && capture.CapturedAt.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && capture.CapturedAt.After(*filter.Until) {
			continue
		}
		if filter.MinMessages > 0 && capture.MessageCount < filter.MinMessages {
			continue
		}
		result = append(result, capture)
	}
	return result, nil
}

func hasParticipant(participants []string, name string) bool {
	for _, p := range participants {
		if strings.EqualFold(p, name) {
			return true
		}
	}
	return false
}

// Recent returns the most recent captures, newest first, limited to the
// given count.
func (s *fileCaptureArchive) Recent(limit int) ([]models.CapturedTranscript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.index.Captures) == 0 {
		return nil, nil
	}

	sorted := make([]models.CapturedTranscript, len(s.index.Captures))
	copy(sorted, s.index.Captures)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CapturedAt.After(sorted[j].CapturedAt)
	})

	if limit > 0 && limit < len(sorted) {
		sorted = sorted[:limit]
	}
	return sorted, nil
}

// Records loads the resolved records of a capture from disk.
func (s *fileCaptureArchive) Records(id string) ([]models.MessageRecord, error) {
	if _, err := s.Get(id); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(s.captureDir(id), "records.yaml"))
	if err != nil {
		return nil, fmt.Errorf("reading capture records: %w", err)
	}

	var recordsWrapper struct {
		Records []models.MessageRecord `yaml:"records"`
	}
	if err := yaml.Unmarshal(data, &recordsWrapper); err != nil {
		return nil, fmt.Errorf("parsing capture records: %w", err)
	}
	return recordsWrapper.Records, nil
}

// Transcript loads the rendered transcript of a capture from disk.
func (s *fileCaptureArchive) Transcript(id string) (string, error) {
	if _, err := s.Get(id); err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(s.captureDir(id), "transcript.txt"))
	if err != nil {
		return "", fmt.Errorf("reading capture transcript: %w", err)
	}
	return strings.TrimSuffix(string(data), "\n"), nil
}

// SetSummary records a summary for a capture in the index, its metadata file
// and summary.md.
func (s *fileCaptureArchive) SetSummary(id, summary, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.index.Captures {
		capture := &s.index.Captures[i]
		if capture.ID != id {
			continue
		}
		capture.Summary = summary
		capture.SummarySource = source
		if err := s.saveYAML(filepath.Join(s.captureDir(id), "capture.yaml"), capture); err != nil {
			return fmt.Errorf("setting summary: writing metadata: %w", err)
		}
		if err := s.writeSummary(id, summary); err != nil {
			return fmt.Errorf("setting summary: %w", err)
		}
		return nil
	}
	return fmt.Errorf("capture %s not found", id)
}

func (s *fileCaptureArchive) writeSummary(id, summary string) error {
	content := fmt.Sprintf("# Capture %s\n\n%s\n", id, summary)
	if err := os.WriteFile(filepath.Join(s.captureDir(id), "summary.md"), []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	return nil
}

// Load reads the capture index from disk. Missing files are treated as empty.
func (s *fileCaptureArchive) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadYAML(s.indexPath(), &s.index); err != nil {
		return fmt.Errorf("loading capture index: %w", err)
	}
	if s.index.Version == "" {
		s.index.Version = "1.0"
	}
	return nil
}

// Save persists the capture index to disk.
func (s *fileCaptureArchive) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := os.MkdirAll(s.capturesDir(), 0o755); err != nil {
		return fmt.Errorf("saving capture archive: creating directory: %w", err)
	}
	if err := s.saveYAML(s.indexPath(), &s.index); err != nil {
		return fmt.Errorf("saving capture index: %w", err)
	}
	return nil
}

func (s *fileCaptureArchive) loadYAML(path string, target interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // Missing files are initialized to zero values.
		}
		return err
	}
	return yaml.Unmarshal(data, target)
}

func (s *fileCaptureArchive) saveYAML(path string, source interface{}) error {
	data, err := yaml.Marshal(source)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
