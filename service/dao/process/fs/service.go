package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/option"
	"github.com/viant/afs/url"
	"github.com/viant/procsim/runtime/process"
	"github.com/viant/procsim/service/dao"
	"github.com/viant/procsim/service/dao/criteria"
)

// Service persists process snapshots as one JSON document per pid. The base
// URL may use any afs scheme (file://, mem://, s3:// ...).
type Service struct {
	baseURL string
	fs      afs.Service
	logger  logrus.FieldLogger
	mu      sync.RWMutex
}

var _ dao.Service[int, process.Snapshot] = (*Service)(nil)

// Option customises the snapshot store
type Option func(s *Service)

// WithLogger sets logger used to report unreadable snapshot files
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithFS sets storage service
func WithFS(fs afs.Service) Option {
	return func(s *Service) {
		s.fs = fs
	}
}

// Save writes a snapshot
func (s *Service) Save(ctx context.Context, snapshot *process.Snapshot) error {
	if snapshot == nil {
		return dao.ErrNilEntity
	}
	if snapshot.PID <= 0 {
		return dao.ErrInvalidID
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot %d: %w", snapshot.PID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	URL := s.snapshotURL(snapshot.PID)
	if err = s.fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save snapshot to %s: %w", URL, err)
	}
	return nil
}

// Load reads a snapshot or returns dao.ErrNotFound
func (s *Service) Load(ctx context.Context, pid int) (*process.Snapshot, error) {
	if pid <= 0 {
		return nil, dao.ErrInvalidID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	URL := s.snapshotURL(pid)
	exists, err := s.fs.Exists(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to check snapshot %s: %w", URL, err)
	}
	if !exists {
		return nil, fmt.Errorf("snapshot %d: %w", pid, dao.ErrNotFound)
	}
	data, err := s.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", URL, err)
	}
	ret := &process.Snapshot{}
	if err = json.Unmarshal(data, ret); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot %s: %w", URL, err)
	}
	return ret, nil
}

// Delete removes a snapshot
func (s *Service) Delete(ctx context.Context, pid int) error {
	if pid <= 0 {
		return dao.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	URL := s.snapshotURL(pid)
	exists, err := s.fs.Exists(ctx, URL)
	if err != nil {
		return fmt.Errorf("failed to check snapshot %s: %w", URL, err)
	}
	if !exists {
		return fmt.Errorf("snapshot %d: %w", pid, dao.ErrNotFound)
	}
	if err = s.fs.Delete(ctx, URL); err != nil {
		return fmt.Errorf("failed to delete snapshot %s: %w", URL, err)
	}
	return nil
}

// List returns snapshots ordered by pid, filtered by State parameters.
// Unreadable files are skipped with a warning.
func (s *Service) List(ctx context.Context, parameters ...*dao.Parameter) ([]*process.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if exists, _ := s.fs.Exists(ctx, s.baseURL); !exists {
		return nil, nil
	}
	objects, err := s.fs.List(ctx, s.baseURL, option.NewRecursive(false))
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots in %s: %w", s.baseURL, err)
	}
	var result []*process.Snapshot
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), ".json") {
			continue
		}
		data, err := s.fs.Download(ctx, object)
		if err != nil {
			s.logger.WithError(err).WithField("url", object.URL()).Warn("failed to read snapshot")
			continue
		}
		snapshot := &process.Snapshot{}
		if err := json.Unmarshal(data, snapshot); err != nil {
			s.logger.WithError(err).WithField("url", object.URL()).Warn("failed to unmarshal snapshot")
			continue
		}
		if !criteria.FilterByState(snapshot.State, parameters) {
			continue
		}
		result = append(result, snapshot)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].PID < result[j].PID })
	return result, nil
}

func (s *Service) snapshotURL(pid int) string {
	return url.Join(s.baseURL, strconv.Itoa(pid)+".json")
}

// New creates a snapshot store rooted at baseURL; plain paths use the file scheme.
func New(baseURL string, opts ...Option) (*Service, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("snapshot base URL cannot be empty")
	}
	ret := &Service{fs: afs.New()}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.logger == nil {
		ret.logger = logrus.StandardLogger()
	}
	if url.Scheme(baseURL, "") == "" {
		baseURL = url.Normalize(path.Clean(baseURL), file.Scheme)
	}
	ret.baseURL = baseURL
	return ret, nil
}
