package history

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/jamesainslie/repotool/pkg/repotool/logging"
)

var (
	// ErrNotFound is returned when no run matches an ID.
	ErrNotFound = errors.New("history record not found")

	// ErrAmbiguous is returned when an ID prefix matches several runs.
	ErrAmbiguous = errors.New("history record ID is ambiguous")
)

// Key layout:
//
//	r <8-byte big-endian unix nanos> <id>  -> gob Record
//	i <id>                                 -> primary key
const (
	recordPrefix = 'r'
	indexPrefix  = 'i'
)

// minPrefixLen is the shortest ID prefix Get accepts.
const minPrefixLen = 4

var logger = logging.Get("history")

// Store is a badger-backed run log.
type Store struct {
	db  *badger.DB
	now func() time.Time
}

// OpenStore opens or creates a store in dir.
func OpenStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	opts := badger.DefaultOptions(dir)
	opts.Logger = badgerLogger{logger}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

func recordKey(t time.Time, id string) []byte {
	key := make([]byte, 0, 9+len(id))
	key = append(key, recordPrefix)
	key = binary.BigEndian.AppendUint64(key, uint64(t.UnixNano()))
	return append(key, id...)
}

func indexKey(id string) []byte {
	return append([]byte{indexPrefix}, id...)
}

// keyTime extracts the timestamp from a record key.
func keyTime(key []byte) time.Time {
	return time.Unix(0, int64(binary.BigEndian.Uint64(key[1:9])))
}

// Put stores rec, assigning an ID and time when they are unset.
func (s *Store) Put(rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Time.IsZero() {
		rec.Time = s.now()
	}
	rec.Time = rec.Time.UTC()

	value, err := rec.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode history record: %w", err)
	}

	key := recordKey(rec.Time, rec.ID)
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, value); err != nil {
			return err
		}
		return txn.Set(indexKey(rec.ID), key)
	})
	if err != nil {
		return fmt.Errorf("failed to store history record: %w", err)
	}

	logger.Debug("recorded run", "id", rec.ID, "command", rec.Command, "root", rec.Root)
	return nil
}

// List returns up to limit records, newest first. A limit of zero or less
// returns every record.
func (s *Store) List(limit int) ([]Record, error) {
	records := []Record{}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte{recordPrefix}
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration seeks from just past the prefix.
		for it.Seek([]byte{recordPrefix + 1}); it.ValidForPrefix(opts.Prefix); it.Next() {
			var rec Record
			if err := it.Item().Value(rec.Decode); err != nil {
				logger.Warn("skipping unreadable history record", "key", fmt.Sprintf("%x", it.Item().Key()), "error", err)
				continue
			}
			records = append(records, rec)
			if limit > 0 && len(records) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return records, nil
}

// Get returns the record with the given ID. A unique prefix of at least
// four characters is also accepted.
func (s *Store) Get(id string) (*Record, error) {
	if id == "" {
		return nil, ErrNotFound
	}

	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		primary, err := s.resolve(txn, id)
		if err != nil {
			return err
		}

		item, err := txn.Get(primary)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(rec.Decode)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// resolve maps an ID or ID prefix to the record's primary key.
func (s *Store) resolve(txn *badger.Txn, id string) ([]byte, error) {
	item, err := txn.Get(indexKey(id))
	if err == nil {
		return item.ValueCopy(nil)
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return nil, err
	}
	if len(id) < minPrefixLen {
		return nil, ErrNotFound
	}

	opts := badger.DefaultIteratorOptions
	opts.Prefix = indexKey(id)
	it := txn.NewIterator(opts)
	defer it.Close()

	var match []byte
	for it.Rewind(); it.Valid(); it.Next() {
		if match != nil {
			return nil, fmt.Errorf("%w: %s", ErrAmbiguous, id)
		}
		if match, err = it.Item().ValueCopy(nil); err != nil {
			return nil, err
		}
	}
	if match == nil {
		return nil, ErrNotFound
	}
	return match, nil
}

// DeleteBefore removes every record older than cutoff and returns how
// many were removed.
func (s *Store) DeleteBefore(cutoff time.Time) (int, error) {
	var stale [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte{recordPrefix}
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			if !keyTime(key).Before(cutoff) {
				break
			}
			stale = append(stale, key)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan history: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, key := range stale {
		if err := wb.Delete(key); err != nil {
			return 0, err
		}
		if err := wb.Delete(indexKey(string(key[9:]))); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("failed to delete history records: %w", err)
	}

	logger.Info("pruned history", "removed", len(stale), "cutoff", cutoff.Format(time.RFC3339))
	return len(stale), nil
}

// Cleanup removes records older than retentionDays. Zero or less keeps
// everything.
func (s *Store) Cleanup(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	return s.DeleteBefore(s.now().AddDate(0, 0, -retentionDays))
}
