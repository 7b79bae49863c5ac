// Package catalog keeps upload metadata next to the stored images.
//
// The storage backend stays the source of truth for which images exist.
// The catalog only adds what a directory listing cannot tell: the name the
// file was uploaded under, its declared and sniffed types, and a checksum.
// Records whose image has vanished are pruned by Reconcile.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned by Get when no record exists.
var ErrNotFound = errors.New("catalog: record not found")

const keyPrefix = "img/"

// Record is the metadata of one stored image.
type Record struct {
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName"`
	DeclaredType string    `json:"declaredType"`
	DetectedType string    `json:"detectedType"`
	Size         int64     `json:"size"`
	Checksum     string    `json:"checksum"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

// Catalog is a badger-backed record store.
type Catalog struct {
	db *badger.DB
}

// Open opens the catalog in dir, creating it if needed. An empty dir opens
// an in-memory catalog.
func Open(dir string) (*Catalog, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	return &Catalog{db: db}, nil
}

func key(filename string) []byte {
	return []byte(keyPrefix + filename)
}

// Put stores or replaces the record for rec.Filename.
func (c *Catalog) Put(rec Record) error {
	if rec.Filename == "" {
		return fmt.Errorf("catalog: record has no filename")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(rec.Filename), data)
	})
}

// Get returns the record for filename.
func (c *Catalog) Get(filename string) (Record, error) {
	var rec Record
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(filename))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	return rec, err
}

// Delete removes the record for filename. Deleting a missing record is not
// an error.
func (c *Catalog) Delete(filename string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(filename))
	})
}

// List returns every record ordered by filename.
func (c *Catalog) List() ([]Record, error) {
	var records []Record
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog: %w", err)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Filename < records[j].Filename })
	return records, nil
}

// Reconcile deletes every record whose filename is not in present and
// returns the pruned filenames.
func (c *Catalog) Reconcile(present []string) ([]string, error) {
	keep := make(map[string]struct{}, len(present))
	for _, name := range present {
		keep[name] = struct{}{}
	}

	records, err := c.List()
	if err != nil {
		return nil, err
	}

	var stale []string
	for _, rec := range records {
		if _, ok := keep[rec.Filename]; !ok {
			stale = append(stale, rec.Filename)
		}
	}
	if len(stale) == 0 {
		return nil, nil
	}

	wb := c.db.NewWriteBatch()
	defer wb.Cancel()
	for _, name := range stale {
		if err := wb.Delete(key(name)); err != nil {
			return nil, fmt.Errorf("failed to prune %s: %w", name, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return nil, fmt.Errorf("failed to prune catalog: %w", err)
	}
	return stale, nil
}

// Close closes the underlying database.
func (c *Catalog) Close() error {
	return c.db.Close()
}
