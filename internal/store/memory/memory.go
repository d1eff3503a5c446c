package memory

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"milkman/internal/core"
	"milkman/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store keeps settings and overrides in process memory.
type Store struct {
	mu        sync.Mutex
	settings  *core.Settings
	overrides map[core.DateKey]core.Override
	now       func() time.Time
}

func New() *Store {
	return &Store{overrides: make(map[core.DateKey]core.Override), now: time.Now}
}

// NewFromFiles seeds overrides from base/seed_overrides.txt when present.
// Each non-comment line reads "YYYY-MM-DD <category1> <category2>".
func NewFromFiles(base string) *Store {
	s := New()
	for _, line := range readLines(filepath.Join(base, "seed_overrides.txt")) {
		fields := strings.Fields(line)
		if len(fields) != 3 {
			slog.Warn("Skipping malformed seed line", "line", line)
			continue
		}
		key, err := core.ParseDateKey(fields[0])
		if err != nil {
			slog.Warn("Skipping seed line with bad date", "line", line, "error", err)
			continue
		}
		s.overrides[key] = core.Override{
			Date:            key,
			Category1Amount: core.ParseQuantity(fields[1]),
			Category2Amount: core.ParseQuantity(fields[2]),
		}
	}
	return s
}

func (s *Store) GetSettings(_ context.Context) (core.Settings, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings == nil {
		return core.Settings{}, false, nil
	}
	return *s.settings, true, nil
}

func (s *Store) PutSettings(_ context.Context, settings core.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings.UpdatedAt = s.now().UTC()
	s.settings = &settings
	return nil
}

func (s *Store) ListOverrides(_ context.Context, m core.Month) ([]core.Override, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Override, 0)
	for key, o := range s.overrides {
		if m.Contains(key) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (s *Store) PutOverride(_ context.Context, o core.Override) error {
	if err := o.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o.UpdatedAt = s.now().UTC()
	s.overrides[o.Date] = o
	return nil
}

func (s *Store) Ping(_ context.Context) error { return nil }

// Len returns the number of stored overrides.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.overrides)
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
