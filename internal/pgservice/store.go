package pgservice

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/viant/afs"
)

// EnvServiceFile names the libpq variable that overrides the service file location.
const EnvServiceFile = "PGSERVICEFILE"

// ConfigReadError reports a service file that could not be read.
// It is logged and turned into an empty snapshot, never returned to tool callers.
type ConfigReadError struct {
	Path string
	Err  error
}

func (e *ConfigReadError) Error() string {
	return fmt.Sprintf("failed to read service file %s: %v", e.Path, e.Err)
}

func (e *ConfigReadError) Unwrap() error { return e.Err }

// Snapshot is an immutable view of the profiles loaded from one read of the file.
type Snapshot struct {
	profiles []ServiceProfile
	err      error
}

// Profiles returns a copy of the loaded profiles in file order.
func (s *Snapshot) Profiles() []ServiceProfile {
	if s == nil {
		return nil
	}
	out := make([]ServiceProfile, len(s.profiles))
	copy(out, s.profiles)
	return out
}

// Len returns the number of profiles.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.profiles)
}

// Err returns the read error that produced an empty snapshot, if any.
func (s *Snapshot) Err() error { return s.err }

// Lookup finds a profile by name.
func (s *Snapshot) Lookup(name string) (ServiceProfile, bool) {
	if s == nil {
		return ServiceProfile{}, false
	}
	for _, p := range s.profiles {
		if p.Name == name {
			return p, true
		}
	}
	return ServiceProfile{}, false
}

// Store owns the current snapshot. Load replaces it wholesale, so readers
// always observe a complete old or new list.
type Store struct {
	path    string
	fs      afs.Service
	current atomic.Pointer[Snapshot]
}

// NewStore creates a store for the given service file; an empty path
// resolves through DefaultPath.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath()
	}
	s := &Store{path: path, fs: afs.New()}
	s.current.Store(&Snapshot{})
	return s
}

// Path returns the service file location.
func (s *Store) Path() string { return s.path }

// Snapshot returns the current snapshot.
func (s *Store) Snapshot() *Snapshot { return s.current.Load() }

// Load reads and parses the service file and swaps in the result.
// Read failures produce an empty snapshot carrying a *ConfigReadError.
func (s *Store) Load(ctx context.Context) *Snapshot {
	snap := &Snapshot{}

	data, err := s.read(ctx)
	if err != nil {
		snap.err = &ConfigReadError{Path: s.path, Err: err}
		log.Warn().Err(err).Str("path", s.path).Msg("Failed to load service file")
	} else {
		snap.profiles = Parse(string(data))
		log.Info().Str("path", s.path).Int("services", len(snap.profiles)).Msg("Loaded PostgreSQL services")
	}

	s.current.Store(snap)
	return snap
}

func (s *Store) read(ctx context.Context) ([]byte, error) {
	exists, err := s.fs.Exists(ctx, s.path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, os.ErrNotExist
	}
	return s.fs.DownloadWithURL(ctx, s.path)
}

// DefaultPath returns $PGSERVICEFILE or ~/.pg_service.conf.
func DefaultPath() string {
	if v := strings.TrimSpace(os.Getenv(EnvServiceFile)); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pg_service.conf"
	}
	return filepath.Join(home, ".pg_service.conf")
}
