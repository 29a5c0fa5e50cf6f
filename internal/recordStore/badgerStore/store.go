// Package badgerStore persists records in an embedded badger database.
//
// Key layout:
//
//	blk:<owner x|y><uvarint len(group)><group><key> -> record
//	bid:<record id>                                -> record key
package badgerStore

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/i5heu/ouroboros-blocks/pkg/codec"
	"github.com/i5heu/ouroboros-blocks/pkg/model"
	"github.com/i5heu/ouroboros-blocks/pkg/secret"
	"github.com/sirupsen/logrus"
)

// Store implements ownership.RecordStore on badger.
type Store struct {
	config       StoreConfig
	log          *logrus.Logger
	badgerDB     *badger.DB
	comp         *compressor
	readCounter  uint64
	writeCounter uint64
}

// Stats counts store operations since open.
type Stats struct {
	Reads  uint64
	Writes uint64
}

// Open opens or creates the database described by config.
func Open(config StoreConfig) (*Store, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	log := config.Logger

	if err := config.checkConfig(); err != nil {
		return nil, fmt.Errorf("error checking config for badger store: %w", err)
	}

	opts := badger.DefaultOptions(config.Path)
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil
	opts.ValueLogFileSize = 1024 * 1024 * 100 // Set max size of each value log file to 100MB
	opts.SyncWrites = true

	comp, err := newCompressor()
	if err != nil {
		return nil, err
	}

	db, err := badger.Open(opts)
	if err != nil {
		comp.close()
		return nil, fmt.Errorf("open badger: %w", err)
	}

	if !config.InMemory {
		if err := displayDiskUsage(log, config.Path); err != nil {
			log.Warn("disk usage report failed")
		}
	}

	return &Store{
		config:   config,
		log:      log,
		badgerDB: db,
		comp:     comp,
	}, nil
}

// Exists reports whether any record of owner is stored.
func (s *Store) Exists(_ context.Context, owner codec.Point) (bool, error) {
	atomic.AddUint64(&s.readCounter, 1)
	prefix := ownerPrefix(owner)
	found := false
	err := s.badgerDB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(prefix)
		found = it.ValidForPrefix(prefix)
		return nil
	})
	return found, err
}

// Groups returns the distinct groups of owner in sorted order.
func (s *Store) Groups(_ context.Context, owner codec.Point) ([]string, error) {
	seen := make(map[string]struct{})
	err := s.scanKeys(ownerPrefix(owner), func(k []byte) error {
		group, _, err := splitRecordKey(k)
		if err != nil {
			return err
		}
		seen[group] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, err
	}
	groups := make([]string, 0, len(seen))
	for g := range seen {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups, nil
}

// Keys returns the keys of one group in sorted order.
func (s *Store) Keys(_ context.Context, owner codec.Point, group string) ([]string, error) {
	keys := []string{}
	err := s.scanKeys(groupPrefix(owner, group), func(k []byte) error {
		_, key, err := splitRecordKey(k)
		if err != nil {
			return err
		}
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// List returns every record of one group ordered by key.
func (s *Store) List(_ context.Context, owner codec.Point, group string) ([]model.Record, error) {
	atomic.AddUint64(&s.readCounter, 1)
	prefix := groupPrefix(owner, group)
	records := []model.Record{}
	err := s.badgerDB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			v, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			rec, err := s.decodeRecord(v)
			if err != nil {
				return fmt.Errorf("decode record: %w", err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
	return records, nil
}

// Get reads one record.
func (s *Store) Get(_ context.Context, owner codec.Point, group, key string) (model.Record, error) {
	atomic.AddUint64(&s.readCounter, 1)
	var rec model.Record
	err := s.badgerDB.View(func(txn *badger.Txn) error {
		var err error
		rec, err = s.readRecord(txn, recordKey(owner, group, key))
		return err
	})
	return rec, err
}

// Insert stores a new record, failing with model.ErrRecordExists if the
// composite key is taken.
func (s *Store) Insert(_ context.Context, rec model.Record) error {
	atomic.AddUint64(&s.writeCounter, 1)
	value, err := s.encodeRecord(rec)
	if err != nil {
		return err
	}
	k := recordKey(rec.Owner, rec.Group, rec.Key)

	return s.badgerDB.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(k)
		if err == nil {
			return model.ErrRecordExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(k, value); err != nil {
			return err
		}
		return txn.Set(idKey(rec.ID), k)
	})
}

// Update overwrites block, version, signature and secret of record id if its
// stored secret still equals expected.
func (s *Store) Update(
	_ context.Context,
	id string,
	expected secret.Secret,
	block []byte,
	version string,
	signature codec.Pair,
	next secret.Secret,
) error {
	atomic.AddUint64(&s.writeCounter, 1)
	return s.badgerDB.Update(func(txn *badger.Txn) error {
		k, err := s.resolveID(txn, id)
		if err != nil {
			return err
		}
		rec, err := s.readRecord(txn, k)
		if err != nil {
			return err
		}
		if !rec.Secret.Equal(expected) {
			return model.ErrSecretMismatch
		}
		rec.Block = block
		rec.Version = version
		rec.Signature = signature
		rec.Secret = next

		value, err := s.encodeRecord(rec)
		if err != nil {
			return err
		}
		return txn.Set(k, value)
	})
}

// Delete removes record id if its stored secret still equals expected.
func (s *Store) Delete(_ context.Context, id string, expected secret.Secret) error {
	atomic.AddUint64(&s.writeCounter, 1)
	return s.badgerDB.Update(func(txn *badger.Txn) error {
		k, err := s.resolveID(txn, id)
		if err != nil {
			return err
		}
		rec, err := s.readRecord(txn, k)
		if err != nil {
			return err
		}
		if !rec.Secret.Equal(expected) {
			return model.ErrSecretMismatch
		}
		if err := txn.Delete(k); err != nil {
			return err
		}
		return txn.Delete(idKey(id))
	})
}

// Stats returns the operation counters.
func (s *Store) Stats() Stats {
	return Stats{
		Reads:  atomic.LoadUint64(&s.readCounter),
		Writes: atomic.LoadUint64(&s.writeCounter),
	}
}

// Close compacts and closes the database.
func (s *Store) Close() error {
	var cleanErr error
	if !s.config.InMemory {
		cleanErr = s.Clean()
	}
	stats := s.Stats()
	s.log.WithFields(logrus.Fields{
		"reads":  stats.Reads,
		"writes": stats.Writes,
	}).Info("badger store closing")

	err := s.badgerDB.Close()
	s.comp.close()
	return errors.Join(cleanErr, err)
}

// Clean syncs, flattens and garbage collects the value log.
func (s *Store) Clean() error {
	err := s.badgerDB.Sync()
	if err != nil {
		return fmt.Errorf("error syncing db: %w", err)
	}

	// flatten the db
	err = s.badgerDB.Flatten(runtime.NumCPU()) // The parameter is the number of concurrent compactions
	if err != nil {
		return fmt.Errorf("error flattening db: %w", err)
	}
	s.log.Info("DB Flattened")

	err = s.badgerDB.RunValueLogGC(0.1)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		return fmt.Errorf("error cleaning db: %w", err)
	}

	return nil
}

func (s *Store) scanKeys(prefix []byte, fn func(k []byte) error) error {
	atomic.AddUint64(&s.readCounter, 1)
	return s.badgerDB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := fn(it.Item().KeyCopy(nil)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) readRecord(txn *badger.Txn, k []byte) (model.Record, error) {
	item, err := txn.Get(k)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return model.Record{}, model.ErrRecordNotFound
	}
	if err != nil {
		return model.Record{}, err
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return model.Record{}, err
	}
	rec, err := s.decodeRecord(v)
	if err != nil {
		return model.Record{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

func (s *Store) resolveID(txn *badger.Txn, id string) ([]byte, error) {
	item, err := txn.Get(idKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, model.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}
