// Package store implements the bounded ring of history metadata plus the
// on-disk payload files backing it. It never touches the
// X connection; the Receiver, Inject Worker and UI bridge all reach it
// through this package's exported, mutually-exclusive operations.
package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/teris-io/shortid"

	"github.com/phuquocloc/xcbd/internal/cmn"
	"github.com/phuquocloc/xcbd/internal/cmn/debug"
	"github.com/phuquocloc/xcbd/internal/xatom"
)

// Store is a fixed-capacity ring with a logical index where 0 is newest.
// The zero value is not usable; build one with New.
type Store struct {
	dir      string
	capacity int

	mu       sync.Mutex
	slots    []*Item // physical slots, len == capacity
	head     int     // physical slot of the newest item, -1 before the first push and after ClearAll or an empty Scan
	size     int
	selected int

	sid *shortid.Shortid
}

// New creates a Store rooted at dir (expected to already exist; callers
// run config.EnsureDataDirs first) with the given ring capacity.
func New(dir string, capacity int) (*Store, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("store: capacity must be positive, got %d", capacity)
	}
	sid, err := shortid.New(1, shortid.DefaultABC, 0xC1)
	if err != nil {
		return nil, cmn.Wrapf(err, "store: initializing filename disambiguator")
	}
	return &Store{
		dir:      dir,
		capacity: capacity,
		slots:    make([]*Item, capacity),
		head:     -1,
		sid:      sid,
	}, nil
}

func (s *Store) path(filename string) string { return filepath.Join(s.dir, filename) }

// physicalFor returns the physical slot for logical index i, using the
// mapping: (head - i + capacity) mod capacity.
func (s *Store) physicalFor(i int) int {
	debug.Assert(i >= 0 && i < s.size, "store: logical index out of ring bounds")
	phys := ((s.head-i)%s.capacity + s.capacity) % s.capacity
	debug.Assert(phys >= 0 && phys < s.capacity, "store: physical slot out of range")
	return phys
}

// Scan rebuilds the ring from the files actually present in the data
// directory: hidden entries are rejected, up to
// capacity files are kept (oldest-first by mtime), any surplus is
// deleted from disk, and head is set to point at the newest slot.
func (s *Store) Scan() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return cmn.Wrapf(err, "store: scanning %s", s.dir)
	}

	type statEntry struct {
		name  string
		mtime int64
	}
	var stats []statEntry
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // individual stat failures just skip that entry
		}
		stats = append(stats, statEntry{name: e.Name(), mtime: info.ModTime().Unix()})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].mtime < stats[j].mtime })

	surplus := len(stats) - s.capacity
	if surplus > 0 {
		for _, e := range stats[:surplus] {
			os.Remove(s.path(e.name))
		}
		stats = stats[surplus:]
	}

	for i := range s.slots {
		s.slots[i] = nil
	}
	for i, e := range stats {
		s.slots[i] = &Item{Filename: e.name, Timestamp: e.mtime, Kind: xatom.ClassifyFilename(e.name)}
	}
	s.size = len(stats)
	if s.size == 0 {
		s.head = -1
	} else {
		s.head = s.size - 1
	}
	if s.selected >= s.size {
		s.selected = 0
	}
	return nil
}

// Push accepts a capture-finalized filename (any directory prefix is
// stripped) and records it as the newest item, evicting the oldest
// item's file first if the ring is at capacity.
func (s *Store) Push(filename string) error {
	return s.push(filename, time.Now().Unix())
}

// PushIfExists stats filename first and only records it if the file is
// actually present, using the file's mtime rather than now as the
// stored timestamp. Used both by the
// Receiver on transfer finalization and by scan/push idempotence.
func (s *Store) PushIfExists(filename string) error {
	info, err := os.Stat(s.path(filepath.Base(filename)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return cmn.Wrapf(err, "store: stat %s", filename)
	}
	return s.push(filename, info.ModTime().Unix())
}

func (s *Store) push(filename string, ts int64) error {
	filename = filepath.Base(filename)
	s.mu.Lock()
	defer s.mu.Unlock()

	newHead := (s.head + 1) % s.capacity
	debug.Assert(newHead >= 0 && newHead < s.capacity, "store: newHead out of ring bounds")
	if s.size == s.capacity {
		if old := s.slots[newHead]; old != nil {
			os.Remove(s.path(old.Filename))
		}
	} else {
		s.size++
	}
	s.slots[newHead] = &Item{Filename: filename, Timestamp: ts, Kind: xatom.ClassifyFilename(filename)}
	s.head = newHead
	return nil
}

// PopOldest removes the oldest record and deletes its file, returning a
// copy of the removed record.
func (s *Store) PopOldest() (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.size == 0 {
		return Item{}, cmn.ErrEmpty
	}
	phys := s.physicalFor(s.size - 1)
	item := *s.slots[phys]
	os.Remove(s.path(item.Filename))
	s.slots[phys] = nil
	s.size--
	if s.selected >= s.size {
		s.selected = 0
	}
	return item, nil
}

// Get copies the record at logical index n (0 == newest).
func (s *Store) Get(n int) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(n)
}

func (s *Store) getLocked(n int) (Item, error) {
	if n < 0 || n >= s.size {
		return Item{}, cmn.ErrOutOfRange
	}
	return *s.slots[s.physicalFor(n)], nil
}

// GetLatest is Get(0).
func (s *Store) GetLatest() (Item, error) { return s.Get(0) }

// Size returns the current record count.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// ReadBinary opens the file backing record n and returns up to maxLen
// bytes, erroring (without mutating the store) if the file is larger
// than maxLen or missing.
func (s *Store) ReadBinary(n int, maxLen int64) ([]byte, error) {
	s.mu.Lock()
	item, err := s.getLocked(n)
	dir := s.dir
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(dir, item.Filename))
	if err != nil {
		return nil, cmn.Wrapf(err, "store: opening %s", item.Filename)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, cmn.Wrapf(err, "store: stat %s", item.Filename)
	}
	if info.Size() > maxLen {
		return nil, cmn.ErrTooLarge
	}
	buf := make([]byte, info.Size())
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, cmn.Wrapf(err, "store: reading %s", item.Filename)
	}
	return buf, nil
}

// SetSelected sets the Inject Worker's selected-index cursor.
func (s *Store) SetSelected(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = n
}

// GetSelected returns the selected-index cursor, clamped to 0 if it has
// been invalidated by eviction.
func (s *Store) GetSelected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected < 0 || s.selected >= s.size {
		return 0
	}
	return s.selected
}

// GetSelectedItem is GetSelected() followed by Get().
func (s *Store) GetSelectedItem() (Item, error) { return s.Get(s.GetSelected()) }

// ClearAll deletes every file and resets the ring to empty.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, item := range s.slots {
		if item != nil {
			os.Remove(s.path(item.Filename))
			s.slots[i] = nil
		}
	}
	s.head = -1
	s.size = 0
	s.selected = 0
	return nil
}

// NewFilename mints a unique filename for a freshly finalized receive
// transaction: "YYYYMMDD_HHMMSS_mmm_<shortid>.<ext>", with the
// disambiguator generated by shortid rather than a shared mutable
// counter, so concurrent finalizations (receive + a stale in-flight one
// being discarded) never collide.
func (s *Store) NewFilename(ts time.Time, k xatom.Kind) string {
	stamp := ts.Format("20060102_150405") + fmt.Sprintf("_%03d", ts.Nanosecond()/int(time.Millisecond))
	return stamp + "_" + s.sid.MustGenerate() + k.Extension()
}
