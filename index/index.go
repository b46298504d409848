// Package index resolves library file identifiers to locations on disk. It is
// backed by BadgerDB.
//
// Keys:
//
//	f:<library uuid>:<file uuid>  -> JSON FilePath
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrNotFound indicates no entry for the identifier.
var ErrNotFound = errors.New("file not found in index")

const prefixFile = "f:"

// FilePath locates one indexed file.
type FilePath struct {
	ID uuid.UUID `json:"id"`
	// LocationPath is the absolute root of the location the file belongs to.
	LocationPath string `json:"location_path"`
	// RelativePath is the file's path inside LocationPath.
	RelativePath string `json:"relative_path"`
	// CasID is the content identifier, empty until the file was hashed.
	CasID string `json:"cas_id,omitempty"`
	// Extension is lowercase and without the dot.
	Extension string `json:"extension,omitempty"`
}

// FullPath joins LocationPath and RelativePath.
func (p FilePath) FullPath() string {
	return filepath.Join(p.LocationPath, filepath.FromSlash(p.RelativePath))
}

// Index is a BadgerDB backed file index.
type Index struct {
	db *badger.DB
}

// Open opens or creates an index in dir.
func Open(dir string) (*Index, error) {
	opts := badger.DefaultOptions(dir).
		WithLoggingLevel(badger.WARNING).
		WithCompression(options.None)
	return open(opts, dir)
}

// OpenInMemory opens a throwaway index, for tests and ephemeral nodes.
func OpenInMemory() (*Index, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLoggingLevel(badger.WARNING)
	return open(opts, ":memory:")
}

func open(opts badger.Options, where string) (*Index, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", where, err)
	}
	logrus.WithFields(logrus.Fields{
		"function": "Open",
		"path":     where,
	}).Debug("Index opened")
	return &Index{db: db}, nil
}

// Close closes the database.
func (x *Index) Close() error {
	return x.db.Close()
}

func keyFile(library, id uuid.UUID) []byte {
	return []byte(prefixFile + library.String() + ":" + id.String())
}

func keyLibrary(library uuid.UUID) []byte {
	return []byte(prefixFile + library.String() + ":")
}

// Put stores or replaces the entry of p.ID in library.
func (x *Index) Put(library uuid.UUID, p FilePath) error {
	if p.ID == uuid.Nil {
		return errors.New("file path has no id")
	}
	value, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode file path: %w", err)
	}
	return x.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyFile(library, p.ID), value)
	})
}

// Resolve returns the entry of id in library.
func (x *Index) Resolve(ctx context.Context, library, id uuid.UUID) (FilePath, error) {
	if err := ctx.Err(); err != nil {
		return FilePath{}, err
	}

	var p FilePath
	err := x.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyFile(library, id))
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &p)
		})
	})
	if err != nil {
		return FilePath{}, err
	}
	return p, nil
}

// Delete removes the entry of id in library. A missing entry is not an error.
func (x *Index) Delete(library, id uuid.UUID) error {
	return x.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(keyFile(library, id))
	})
}

// List returns every entry of library in key order.
func (x *Index) List(ctx context.Context, library uuid.UUID) ([]FilePath, error) {
	var out []FilePath
	err := x.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := keyLibrary(library)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var p FilePath
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			}); err != nil {
				return fmt.Errorf("failed to decode file path: %w", err)
			}
			out = append(out, p)
		}
		return nil
	})
	return out, err
}
