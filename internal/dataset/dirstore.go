package dataset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gofrs/flock"
)

const lockFileName = ".handsign.lock"

// ErrLocked is returned when another process holds the dataset lock.
var ErrLocked = errors.New("dataset is locked by another process")

// DirStore is a SampleStore over a directory-per-class layout:
//
//	<root>/<label>/<sample file>
//
// Hidden entries are ignored.
type DirStore struct {
	root string
	lock *flock.Flock
}

// NewDirStore returns a DirStore rooted at root.
func NewDirStore(root string) *DirStore {
	return &DirStore{
		root: root,
		lock: flock.New(filepath.Join(root, lockFileName)),
	}
}

// Root returns the dataset root directory.
func (s *DirStore) Root() string {
	return s.root
}

// Inventory lists each label directory and the files it contains.
func (s *DirStore) Inventory(ctx context.Context) (Inventory, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read dataset root %q: %w", s.root, err)
	}

	inv := make(Inventory)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() || hidden(entry.Name()) {
			continue
		}
		samples, err := s.Samples(entry.Name())
		if err != nil {
			return nil, err
		}
		inv[entry.Name()] = samples
	}
	return inv, nil
}

// Samples lists the sample files of one label in lexical order.
func (s *DirStore) Samples(label string) ([]string, error) {
	dir := filepath.Join(s.root, label)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read label directory %q: %w", dir, err)
	}

	samples := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || hidden(entry.Name()) {
			continue
		}
		samples = append(samples, entry.Name())
	}
	sort.Strings(samples)
	return samples, nil
}

// Remove deletes <root>/<label>/<sample>.
func (s *DirStore) Remove(ctx context.Context, label, sample string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validName(label) || !validName(sample) {
		return fmt.Errorf("invalid sample path %q/%q", label, sample)
	}
	path := filepath.Join(s.root, label, sample)
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// Path returns the file path of a sample.
func (s *DirStore) Path(label, sample string) string {
	return filepath.Join(s.root, label, sample)
}

// Lock takes an exclusive, non-blocking lock on the dataset root. A missing
// root has nothing to lock and reports ErrEmptyInventory.
func (s *DirStore) Lock() error {
	ok, err := s.lock.TryLock()
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("dataset root %q does not exist: %w", s.root, ErrEmptyInventory)
	}
	if err != nil {
		return fmt.Errorf("acquire dataset lock: %w", err)
	}
	if !ok {
		return ErrLocked
	}
	return nil
}

// Unlock releases the dataset lock.
func (s *DirStore) Unlock() error {
	return s.lock.Unlock()
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}
