package fake

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/arsession/logging"
)

// ErrMapNotFound is returned for a map id the store does not hold.
var ErrMapNotFound = errors.New("map not found")

const (
	mapFileExt       = ".map"
	thumbnailFileExt = ".png"
)

// storedMap is the persisted form of a map.
type storedMap struct {
	ID string `cbor:"id"`
	// Metadata is the map's metadata JSON document, including its creation time.
	Metadata  string     `cbor:"metadata"`
	Created   uint64     `cbor:"created"`
	Landmarks []landmark `cbor:"landmarks"`
}

// store keeps maps in memory and, when it has a directory, mirrors every map into a CBOR file
// and every thumbnail into a PNG file named after the map id.
type store struct {
	dir    string
	logger logging.Logger

	mu     sync.Mutex
	maps   map[string]*storedMap
	thumbs map[string][]byte
}

func newStore(dir string, logger logging.Logger) (*store, error) {
	s := &store{
		dir:    dir,
		logger: logger,
		maps:   make(map[string]*storedMap),
		thumbs: make(map[string][]byte),
	}
	if dir == "" {
		return s, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating map store %q", dir)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading map store %q", dir)
	}
	var errs error
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != mapFileExt {
			continue
		}
		m, err := readMapFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		s.maps[m.ID] = m
	}
	if errs != nil {
		logger.Warnw("skipped unreadable maps", "dir", dir, "error", errs)
	}
	return s, nil
}

func readMapFile(path string) (*storedMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m storedMap
	if err := cbor.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(err, "decoding %q", path)
	}
	if m.ID == "" {
		m.ID = strings.TrimSuffix(filepath.Base(path), mapFileExt)
	}
	return &m, nil
}

// writeFile replaces path atomically.
func writeFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *store) put(m *storedMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir != "" {
		data, err := cbor.Marshal(m)
		if err != nil {
			return errors.Wrapf(err, "encoding map %q", m.ID)
		}
		if err := writeFile(filepath.Join(s.dir, m.ID+mapFileExt), data); err != nil {
			return errors.Wrapf(err, "writing map %q", m.ID)
		}
	}
	s.maps[m.ID] = m
	return nil
}

// encodedSize returns the size of m on the wire.
func encodedSize(m *storedMap) int64 {
	data, err := cbor.Marshal(m)
	if err != nil {
		return 0
	}
	return int64(len(data))
}

func (s *store) get(id string) (*storedMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.maps[id]
	if !ok {
		return nil, errors.Wrapf(ErrMapNotFound, "%q", id)
	}
	cp := *m
	return &cp, nil
}

func (s *store) delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.maps[id]; !ok {
		return errors.Wrapf(ErrMapNotFound, "%q", id)
	}
	if s.dir != "" {
		if err := os.Remove(filepath.Join(s.dir, id+mapFileExt)); err != nil && !os.IsNotExist(err) {
			return err
		}
		if err := os.Remove(filepath.Join(s.dir, id+thumbnailFileExt)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	delete(s.maps, id)
	delete(s.thumbs, id)
	return nil
}

// list returns every map, oldest first.
func (s *store) list() []*storedMap {
	s.mu.Lock()
	out := make([]*storedMap, 0, len(s.maps))
	for _, m := range s.maps {
		cp := *m
		out = append(out, &cp)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Created != out[j].Created {
			return out[i].Created < out[j].Created
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *store) putThumbnail(id string, png []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.maps[id]; !ok {
		return errors.Wrapf(ErrMapNotFound, "%q", id)
	}
	if s.dir != "" {
		if err := writeFile(filepath.Join(s.dir, id+thumbnailFileExt), png); err != nil {
			return errors.Wrapf(err, "writing thumbnail of %q", id)
		}
		return nil
	}
	s.thumbs[id] = append([]byte(nil), png...)
	return nil
}

func (s *store) thumbnail(id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.maps[id]; !ok {
		return nil, errors.Wrapf(ErrMapNotFound, "%q", id)
	}
	if s.dir == "" {
		png, ok := s.thumbs[id]
		if !ok {
			return nil, errors.Errorf("map %q has no thumbnail", id)
		}
		return png, nil
	}
	png, err := os.ReadFile(filepath.Join(s.dir, id+thumbnailFileExt))
	if err != nil {
		return nil, errors.Wrapf(err, "reading thumbnail of %q", id)
	}
	return png, nil
}
