// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package record

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ErrDuplicateContent is returned by WriteRecord when the normalized content
// hash is already present in the dedup index.
var ErrDuplicateContent = errors.New("record: duplicate content")

// Subdirectories of the store. Record files live under
// memories/{category}/{YYYY-MM}/; archived records move to archive/.
const (
	memoriesDir  = "memories"
	entitiesDir  = "entities"
	questionsDir = "questions"
	summariesDir = "summaries"
	archiveDir   = "archive"

	hashIndexFile = ".content-hashes"
)

// VersionCounter tracks the shared status-version counter for a store
// directory. It must be visible to every Store instance pointed at the same
// directory so a consumer holding a stale read can detect that a re-read is
// needed.
type VersionCounter interface {
	// Bump increments the counter and returns the new value.
	Bump() (int64, error)
	// Current returns the counter without incrementing it.
	Current() (int64, error)
}

// CatalogSink receives best-effort notifications about record file changes
// so a derived index can stay coherent without masking writes from sibling
// store instances. Sink failures never fail the file write.
type CatalogSink interface {
	UpsertRecord(rec *Record, path string) error
	RemoveRecord(id string) error
}

// CatalogQuery is the optional read side of a CatalogSink. A sink that can
// answer recency queries lets RecentActive serve from the catalog instead
// of walking the whole record tree.
type CatalogQuery interface {
	// RecentActivePaths returns file paths of the most recently updated
	// active records, newest first.
	RecentActivePaths(n int) ([]string, error)
}

// processCounters shares counters between Store instances in the same
// process that point at the same directory.
var processCounters sync.Map // abs dir -> *memoryCounter

type memoryCounter struct{ v atomic.Int64 }

func (c *memoryCounter) Bump() (int64, error)    { return c.v.Add(1), nil }
func (c *memoryCounter) Current() (int64, error) { return c.v.Load(), nil }

// Store reads and writes memory records, entity files, questions, and
// summaries under a single base directory. It exclusively owns those files;
// callers never write them directly.
type Store struct {
	baseDir  string
	aliases  *AliasTable
	hashes   *hashIndex
	versions VersionCounter
	sink     CatalogSink

	kmu    sync.Mutex
	kcache *knowledgeCache
}

// Option configures a Store.
type Option func(*Store)

// WithAliasTable supplies the entity alias table used during fuzzy
// resolution.
func WithAliasTable(t *AliasTable) Option {
	return func(s *Store) { s.aliases = t }
}

// WithVersionCounter supplies an external status-version counter, e.g. the
// catalog-backed one that is visible across processes.
func WithVersionCounter(c VersionCounter) Option {
	return func(s *Store) { s.versions = c }
}

// WithCatalogSink mirrors record file changes into a derived catalog.
func WithCatalogSink(sink CatalogSink) Option {
	return func(s *Store) { s.sink = sink }
}

// New opens a store rooted at baseDir, creating the directory tree as
// needed.
func New(baseDir string, opts ...Option) (*Store, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve store directory: %w", err)
	}

	s := &Store{
		baseDir: abs,
		hashes:  newHashIndex(filepath.Join(abs, hashIndexFile)),
		kcache:  &knowledgeCache{},
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.versions == nil {
		counter, _ := processCounters.LoadOrStore(abs, &memoryCounter{})
		s.versions = counter.(*memoryCounter)
	}

	for _, sub := range []string{memoriesDir, entitiesDir, questionsDir, summariesDir, archiveDir} {
		if err := os.MkdirAll(filepath.Join(abs, sub), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create store directory %s: %w", sub, err)
		}
	}
	return s, nil
}

// BaseDir returns the store's root directory.
func (s *Store) BaseDir() string { return s.baseDir }

// StatusVersion returns the current shared status-version counter value.
func (s *Store) StatusVersion() int64 {
	v, err := s.versions.Current()
	if err != nil {
		return 0
	}
	return v
}

func (s *Store) bumpVersion() {
	if _, err := s.versions.Bump(); err != nil {
		slog.Warn("record: failed to bump status version", "err", err)
	}
}

// WriteOptions carries the optional fields of a new record. A nil Confidence
// means "use the default"; an explicit zero is kept as-is.
type WriteOptions struct {
	Source     string
	Confidence *float64
	Tags       []string
	EntityRef  string
	Supersedes string
	Lineage    []string
	Importance *Importance
	ParentID   string
	ChunkIndex int
	ChunkTotal int
	Links      []Link
	// SkipDedup bypasses the content-hash check. Chunk records set it since
	// their parent already passed the check.
	SkipDedup bool
}

// WriteRecord allocates an id, derives the confidence tier, sets the TTL for
// speculative records, and writes the file. Semantically duplicate content
// is rejected with ErrDuplicateContent before anything is written.
func (s *Store) WriteRecord(category Category, content string, opts WriteOptions) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", errors.New("record: empty content")
	}

	digest := ContentHash(content)
	if !opts.SkipDedup {
		if s.hashes.Contains(digest) {
			return "", ErrDuplicateContent
		}
	}

	now := time.Now().UTC()
	confidence := DefaultConfidence
	if opts.Confidence != nil {
		confidence = *opts.Confidence
	}

	rec := &Record{
		ID:         NewRecordID(category),
		Category:   category,
		Created:    now,
		Updated:    now,
		Source:     opts.Source,
		Confidence: confidence,
		Tier:       TierForConfidence(confidence),
		Tags:       opts.Tags,
		EntityRef:  opts.EntityRef,
		Supersedes: opts.Supersedes,
		Lineage:    opts.Lineage,
		Status:     StatusActive,
		Importance: opts.Importance,
		ParentID:   opts.ParentID,
		ChunkIndex: opts.ChunkIndex,
		ChunkTotal: opts.ChunkTotal,
		Links:      opts.Links,
		Content:    content,
	}

	if rec.Tier == TierSpeculative {
		expires := now.AddDate(0, 0, SpeculativeTTLDays)
		rec.ExpiresAt = &expires
	}

	if err := s.writeRecordFile(rec); err != nil {
		return "", err
	}
	if !opts.SkipDedup {
		if err := s.hashes.Add(digest); err != nil {
			slog.Warn("record: failed to update hash index", "err", err)
		}
	}
	return rec.ID, nil
}

// recordPath derives the canonical path for an active record id. The id
// encodes category and timestamp, so the path is a pure function of the id.
func (s *Store) recordPath(rec *Record) string {
	month := rec.Created.UTC().Format("2006-01")
	return filepath.Join(s.baseDir, memoriesDir, string(rec.Category), month, rec.ID+".md")
}

// findPath locates the file for an id, checking the derived location first,
// then the archive, then falling back to a directory walk. Returns "" when
// the record does not exist.
func (s *Store) findPath(id string) string {
	if derived := s.derivePath(id); derived != "" {
		if _, err := os.Stat(derived); err == nil {
			return derived
		}
	}
	archived := filepath.Join(s.baseDir, archiveDir, id+".md")
	if _, err := os.Stat(archived); err == nil {
		return archived
	}

	var found string
	root := filepath.Join(s.baseDir, memoriesDir)
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if strings.TrimSuffix(d.Name(), ".md") == id {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	return found
}

// derivePath reconstructs the expected path from the id's category prefix
// and timestamp segment. Returns "" for ids that do not follow the scheme.
func (s *Store) derivePath(id string) string {
	parts := strings.Split(id, "-")
	if len(parts) < 3 {
		return ""
	}
	category := strings.Join(parts[:len(parts)-2], "-")
	ts := parts[len(parts)-2]
	created, err := time.Parse("20060102T150405", ts)
	if err != nil {
		return ""
	}
	return filepath.Join(s.baseDir, memoriesDir, category, created.Format("2006-01"), id+".md")
}

// GetByID reads one record. A missing record returns (nil, nil).
func (s *Store) GetByID(id string) (*Record, error) {
	path := s.findPath(id)
	if path == "" {
		return nil, nil
	}
	return s.readRecordFile(path)
}

// ReadAllRecords walks the record directories, including the archive, and
// returns every parsable record. Unparsable files are skipped, not fatal.
func (s *Store) ReadAllRecords() ([]*Record, error) {
	var out []*Record
	for _, sub := range []string{memoriesDir, archiveDir} {
		root := filepath.Join(s.baseDir, sub)
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() || filepath.Ext(d.Name()) != ".md" {
				return nil
			}
			rec, rerr := s.readRecordFile(path)
			if rerr != nil {
				slog.Debug("record: skipping unparsable file", "path", path, "err", rerr)
				return nil
			}
			out = append(out, rec)
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to walk %s: %w", sub, err)
		}
	}
	return out, nil
}

// RecentActive returns the n most recently updated active records, sorted
// descending by updated time. When the attached catalog sink can answer
// recency queries the full tree walk is skipped; an absent, failing, or
// empty catalog falls back to the walk.
func (s *Store) RecentActive(n int) ([]*Record, error) {
	if recs, ok := s.recentFromCatalog(n); ok {
		return recs, nil
	}
	all, err := s.ReadAllRecords()
	if err != nil {
		return nil, err
	}
	var active []*Record
	for _, rec := range all {
		if rec.IsActive() {
			active = append(active, rec)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].Updated.After(active[j].Updated)
	})
	if len(active) > n {
		active = active[:n]
	}
	return active, nil
}

// recentFromCatalog resolves the catalog's recent-active rows to records.
// The files stay authoritative: rows pointing at unreadable or no longer
// active files are dropped. Returns ok=false when the sink cannot answer
// queries or yields nothing usable.
func (s *Store) recentFromCatalog(n int) ([]*Record, bool) {
	q, ok := s.sink.(CatalogQuery)
	if !ok {
		return nil, false
	}
	paths, err := q.RecentActivePaths(n)
	if err != nil {
		slog.Debug("record: catalog recency query failed", "err", err)
		return nil, false
	}
	var out []*Record
	for _, path := range paths {
		rec, err := s.readRecordFile(path)
		if err != nil {
			slog.Debug("record: stale catalog row skipped", "path", path, "err", err)
			continue
		}
		if !rec.IsActive() {
			continue
		}
		out = append(out, rec)
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// UpdateOptions carries optional metadata changes for UpdateRecord.
type UpdateOptions struct {
	Supersedes string
	Lineage    []string
}

// UpdateRecord rewrites a record's content in place, appending lineage and
// supersedes metadata when supplied. Returns false when the id is unknown.
func (s *Store) UpdateRecord(id, newContent string, opts UpdateOptions) bool {
	path := s.findPath(id)
	if path == "" {
		return false
	}
	rec, err := s.readRecordFile(path)
	if err != nil {
		return false
	}

	rec.Content = strings.TrimSpace(newContent)
	rec.Updated = time.Now().UTC()
	if opts.Supersedes != "" {
		rec.Supersedes = opts.Supersedes
	}
	if len(opts.Lineage) > 0 {
		rec.Lineage = append(rec.Lineage, opts.Lineage...)
	}

	if err := s.writeRecordFileAt(rec, path); err != nil {
		slog.Warn("record: failed to update record", "id", id, "err", err)
		return false
	}
	if err := s.hashes.Add(ContentHash(rec.Content)); err != nil {
		slog.Debug("record: failed to extend hash index", "err", err)
	}
	s.bumpVersion()
	return true
}

// RecordAccess merges access statistics into a record's header: counts add
// to the on-disk count, the later timestamp wins. Returns false when the id
// is unknown.
func (s *Store) RecordAccess(id string, count int, at time.Time) bool {
	path := s.findPath(id)
	if path == "" {
		return false
	}
	rec, err := s.readRecordFile(path)
	if err != nil {
		return false
	}
	rec.AccessCount += count
	if rec.LastAccessed == nil || at.After(*rec.LastAccessed) {
		t := at
		rec.LastAccessed = &t
	}
	if err := s.writeRecordFileAt(rec, path); err != nil {
		slog.Warn("record: failed to record access", "id", id, "err", err)
		return false
	}
	return true
}

// AddLinkToRecord adds a typed link to an existing record. Returns false
// when the id is unknown.
func (s *Store) AddLinkToRecord(id string, link Link) bool {
	path := s.findPath(id)
	if path == "" {
		return false
	}
	rec, err := s.readRecordFile(path)
	if err != nil {
		return false
	}
	rec.AddLink(link.Target, link.Type, link.Strength, link.Reason)
	rec.Updated = time.Now().UTC()
	if err := s.writeRecordFileAt(rec, path); err != nil {
		return false
	}
	return true
}

func (s *Store) readRecordFile(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}
	rec, err := Parse(string(data))
	if err != nil {
		return nil, err
	}
	if rec.ID == "" {
		return nil, fmt.Errorf("record file %s has no id", path)
	}
	return rec, nil
}

func (s *Store) writeRecordFile(rec *Record) error {
	return s.writeRecordFileAt(rec, s.recordPath(rec))
}

// writeRecordFileAt writes atomically via a temp file and rename.
func (s *Store) writeRecordFileAt(rec *Record, path string) error {
	out, err := rec.Serialize()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create record directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(out), 0o600); err != nil {
		return fmt.Errorf("failed to write record file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace record file: %w", err)
	}
	if s.sink != nil {
		if err := s.sink.UpsertRecord(rec, path); err != nil {
			slog.Debug("record: catalog upsert failed", "id", rec.ID, "err", err)
		}
	}
	return nil
}
