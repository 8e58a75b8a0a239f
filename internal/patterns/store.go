package patterns

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/fyrsmithlabs/patternd/internal/fileutil"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const storeVersion = 1

var (
	// ErrStoreCorrupted is returned when the store file cannot be parsed or
	// fails validation. The file is left untouched.
	ErrStoreCorrupted = errors.New("pattern store corrupted")

	// ErrNotFound is returned when a pattern ID does not exist.
	ErrNotFound = errors.New("pattern not found")
)

// Rescorer recomputes a pattern's derived fields (confidence, occurrences,
// success rate, variant values) from its evidence.
type Rescorer interface {
	Rescore(p *Pattern)
}

// RescorerFunc adapts a function to Rescorer.
type RescorerFunc func(p *Pattern)

// Rescore implements Rescorer.
func (f RescorerFunc) Rescore(p *Pattern) { f(p) }

// storeFile is the on-disk layout.
type storeFile struct {
	Version   int        `json:"version"`
	UpdatedAt time.Time  `json:"updatedAt"`
	Patterns  []*Pattern `json:"patterns"`
}

// MergeOutcome describes what Merge did with a candidate.
type MergeOutcome int

const (
	Skipped MergeOutcome = iota
	Created
	Reinforced
	Unchanged
)

func (o MergeOutcome) String() string {
	switch o {
	case Created:
		return "created"
	case Reinforced:
		return "reinforced"
	case Unchanged:
		return "unchanged"
	default:
		return "skipped"
	}
}

// Store is the authoritative pattern collection backed by a JSON file.
//
// Reads return copies of the last committed state and never observe a
// write in progress. Writes go through Update, which is serialised and
// commits only after the new state is validated and atomically persisted.
// The store provides no locking against other processes.
type Store struct {
	path     string
	rescorer Rescorer
	now      func() time.Time
	logger   *zap.Logger

	writeMu sync.Mutex

	mu        sync.RWMutex
	patterns  []*Pattern
	updatedAt time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the store logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open loads the store at path. An absent file yields an empty store.
// A nil rescorer only recounts occurrences on reinforcement.
func Open(path string, rescorer Rescorer, opts ...Option) (*Store, error) {
	s := &Store{
		path:     path,
		rescorer: rescorer,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rescorer == nil {
		s.rescorer = RescorerFunc(func(p *Pattern) { p.Occurrences = len(p.Evidence) })
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Debug("pattern store absent, starting empty", zap.String("path", s.path))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read pattern store: %w", err)
	}

	var f storeFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStoreCorrupted, s.path, err)
	}
	if f.Version > storeVersion {
		return fmt.Errorf("%w: %s: unsupported version %d", ErrStoreCorrupted, s.path, f.Version)
	}
	if err := validateAll(f.Patterns); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrStoreCorrupted, s.path, err)
	}

	s.patterns = f.Patterns
	s.updatedAt = f.UpdatedAt
	return nil
}

// Path returns the store file path.
func (s *Store) Path() string { return s.path }

// UpdatedAt returns the time of the last committed write.
func (s *Store) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// Len returns the number of committed patterns.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.patterns)
}

// List returns copies of all committed patterns in store order.
func (s *Store) List() []*Pattern {
	return s.GetByTrigger(nil)
}

// GetByTrigger returns copies of the committed patterns matching pred.
// A nil predicate matches everything.
func (s *Store) GetByTrigger(pred func(*Pattern) bool) []*Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Pattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		if pred == nil || pred(p) {
			out = append(out, p.Clone())
		}
	}
	return out
}

// Get returns a copy of the pattern with the given ID.
func (s *Store) Get(id string) (*Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.patterns {
		if p.ID == id {
			return p.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Update runs fn against a private copy of the store. If fn returns nil
// and changed anything, the new state is validated, written atomically and
// then made visible to readers. Calls are serialised.
func (s *Store) Update(fn func(*Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	working := make([]*Pattern, len(s.patterns))
	for i, p := range s.patterns {
		working[i] = p.Clone()
	}
	s.mu.RUnlock()

	tx := &Tx{store: s, patterns: working, now: s.now()}
	if err := fn(tx); err != nil {
		return err
	}
	if !tx.dirty {
		return nil
	}

	if err := validateAll(tx.patterns); err != nil {
		return fmt.Errorf("refusing to commit: %w", err)
	}
	if err := s.write(tx.patterns, tx.now); err != nil {
		return err
	}

	s.mu.Lock()
	s.patterns = tx.patterns
	s.updatedAt = tx.now
	s.mu.Unlock()

	s.logger.Debug("pattern store committed",
		zap.String("path", s.path),
		zap.Int("patterns", len(tx.patterns)),
		zap.Int("created", tx.Stats.Created),
		zap.Int("reinforced", tx.Stats.Reinforced))
	return nil
}

// Merge merges one candidate in its own transaction.
func (s *Store) Merge(c Candidate) (MergeOutcome, error) {
	var out MergeOutcome
	err := s.Update(func(tx *Tx) error {
		var err error
		out, err = tx.Merge(c)
		return err
	})
	return out, err
}

// Upsert inserts or replaces one pattern in its own transaction.
func (s *Store) Upsert(p *Pattern) error {
	return s.Update(func(tx *Tx) error { return tx.Upsert(p) })
}

// Save rewrites the committed state wholesale.
func (s *Store) Save() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	patterns, updatedAt := s.patterns, s.updatedAt
	s.mu.RUnlock()

	return s.write(patterns, updatedAt)
}

func (s *Store) write(patterns []*Pattern, updatedAt time.Time) error {
	if patterns == nil {
		patterns = []*Pattern{}
	}
	data, err := json.MarshalIndent(storeFile{
		Version:   storeVersion,
		UpdatedAt: updatedAt,
		Patterns:  patterns,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal pattern store: %w", err)
	}
	if err := fileutil.WriteFileAtomic(s.path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write pattern store: %w", err)
	}
	return nil
}

func validateAll(patterns []*Pattern) error {
	seen := make(map[string]struct{}, len(patterns))
	var errs []error
	for i, p := range patterns {
		if p == nil {
			errs = append(errs, fmt.Errorf("pattern %d is null", i))
			continue
		}
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
		}
		if _, dup := seen[p.ID]; dup {
			errs = append(errs, fmt.Errorf("%w: duplicate id %s", ErrInvalidPattern, p.ID))
		}
		seen[p.ID] = struct{}{}
	}
	return errors.Join(errs...)
}

// TxStats counts what a transaction did.
type TxStats struct {
	Created    int
	Reinforced int
	Unchanged  int
	Skipped    int
	Upserted   int
}

// Tx is a write transaction over a private copy of the store.
type Tx struct {
	store    *Store
	patterns []*Pattern
	now      time.Time
	dirty    bool

	Stats TxStats
}

// Now returns the timestamp applied to this transaction's changes.
func (tx *Tx) Now() time.Time { return tx.now }

// List returns copies of the patterns as seen by this transaction.
func (tx *Tx) List() []*Pattern {
	out := make([]*Pattern, len(tx.patterns))
	for i, p := range tx.patterns {
		out[i] = p.Clone()
	}
	return out
}

func (tx *Tx) find(p *Pattern) int {
	return slices.IndexFunc(tx.patterns, func(e *Pattern) bool { return e.SameIdentity(p) })
}

// Merge reinforces the pattern equivalent to the candidate, or inserts the
// candidate when it is eligible and has no equivalent.
//
// Reinforcement unions evidence by key and affected agents, then
// recomputes derived fields from the combined evidence. Merging evidence
// that is already present changes nothing, so merging is idempotent.
func (tx *Tx) Merge(c Candidate) (MergeOutcome, error) {
	if c.Pattern == nil {
		return Skipped, fmt.Errorf("%w: nil candidate", ErrInvalidPattern)
	}

	if i := tx.find(c.Pattern); i >= 0 {
		existing := tx.patterns[i]
		merged, changed := unionEvidence(existing.Evidence, c.Pattern.Evidence)
		if !changed {
			tx.Stats.Unchanged++
			return Unchanged, nil
		}

		prev := existing.Occurrences
		existing.Evidence = merged
		existing.AffectedAgents = unionStrings(existing.AffectedAgents, c.Pattern.AffectedAgents)
		slices.Sort(existing.AffectedAgents)
		tx.store.rescorer.Rescore(existing)
		if existing.Occurrences < prev {
			existing.Occurrences = prev
		}
		existing.LastSeen = tx.now
		existing.LastUpdated = tx.now

		tx.dirty = true
		tx.Stats.Reinforced++
		return Reinforced, nil
	}

	if !c.Eligible {
		tx.Stats.Skipped++
		return Skipped, nil
	}

	p := c.Pattern.Clone()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.FirstSeen = tx.now
	p.LastSeen = tx.now
	p.LastUpdated = tx.now
	p.InitialConfidence = p.Confidence
	slices.Sort(p.AffectedAgents)
	if err := p.Validate(); err != nil {
		return Skipped, err
	}

	tx.patterns = append(tx.patterns, p)
	tx.dirty = true
	tx.Stats.Created++
	return Created, nil
}

// Upsert inserts p, or replaces the pattern with the same ID. Occurrences
// never decrease across a replace and the original firstSeen is kept.
func (tx *Tx) Upsert(p *Pattern) error {
	if p == nil {
		return fmt.Errorf("%w: nil pattern", ErrInvalidPattern)
	}
	p = p.Clone()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.LastUpdated = tx.now

	i := slices.IndexFunc(tx.patterns, func(e *Pattern) bool { return e.ID == p.ID })
	if i >= 0 {
		old := tx.patterns[i]
		if p.Occurrences < old.Occurrences {
			p.Occurrences = old.Occurrences
		}
		if p.FirstSeen.IsZero() || old.FirstSeen.Before(p.FirstSeen) {
			p.FirstSeen = old.FirstSeen
		}
		if p.InitialConfidence == 0 {
			p.InitialConfidence = old.InitialConfidence
		}
	} else {
		if p.FirstSeen.IsZero() {
			p.FirstSeen = tx.now
		}
		if p.InitialConfidence == 0 {
			p.InitialConfidence = p.Confidence
		}
	}
	if p.LastSeen.IsZero() {
		p.LastSeen = tx.now
	}

	if err := p.Validate(); err != nil {
		return err
	}

	if i >= 0 {
		tx.patterns[i] = p
	} else {
		tx.patterns = append(tx.patterns, p)
	}
	tx.dirty = true
	tx.Stats.Upserted++
	return nil
}
