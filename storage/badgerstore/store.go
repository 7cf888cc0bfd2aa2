// Package badgerstore is a persistent raft.Storage[P] backed by
// github.com/Connor1996/badger, the same embedded LSM engine the
// teacher's kv/raftstore uses for its write-ahead state. current_term,
// voted_for, and the log all survive a process restart.
package badgerstore

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"

	"github.com/Connor1996/badger"
	"github.com/pingcap/errors"

	"github.com/raftlab/raftkit/raft"
)

var (
	keyCurrentTerm = []byte("meta/current_term")
	keyVotedFor    = []byte("meta/voted_for")
	logPrefix      = []byte("log/")
)

// Store is a raft.Storage[P] whose current_term/voted_for/log all live
// in a single badger.DB. P must be gob-encodable: no third-party binary
// codec in the corpus accepts a bare, unconstrained type parameter the
// way protobuf's generated marshalers require a concrete message type,
// so entries are framed with the standard library's encoding/gob.
type Store[P any] struct {
	db *badger.DB

	// cached last-log fields, since badger has no native "max key under
	// prefix" index; recomputed on Open and kept current on every write.
	lastIndex raft.LogIndex
	lastTerm  raft.Term
}

// Open opens (creating if absent) a badger database at dir and recovers
// lastIndex/lastTerm by scanning the log prefix once.
func Open[P any](dir string) (*Store[P], error) {
	opts := badger.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Annotatef(err, "badgerstore: open %s", dir)
	}

	s := &Store[P]{db: db}
	if err := s.recoverLastEntry(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying badger.DB.
func (s *Store[P]) Close() error {
	return s.db.Close()
}

func logKey(index raft.LogIndex) []byte {
	key := make([]byte, len(logPrefix)+8)
	copy(key, logPrefix)
	binary.BigEndian.PutUint64(key[len(logPrefix):], uint64(index))
	return key
}

func indexFromLogKey(key []byte) raft.LogIndex {
	return raft.LogIndex(binary.BigEndian.Uint64(key[len(logPrefix):]))
}

func (s *Store[P]) recoverLastEntry() error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = logPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seekFrom := make([]byte, len(logPrefix)+8)
		copy(seekFrom, logPrefix)
		for i := range seekFrom[len(logPrefix):] {
			seekFrom[len(logPrefix)+i] = 0xff
		}

		it.Seek(seekFrom)
		if !it.ValidForPrefix(logPrefix) {
			return nil
		}
		item := it.Item()
		s.lastIndex = indexFromLogKey(item.Key())
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		entry, err := decodeEntry[P](val)
		if err != nil {
			return err
		}
		s.lastTerm = entry.Term
		return nil
	})
}

func encodeEntry[P any](entry raft.LogEntry[P]) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry); err != nil {
		return nil, errors.Annotate(err, "badgerstore: encode entry")
	}
	return buf.Bytes(), nil
}

func decodeEntry[P any](data []byte) (raft.LogEntry[P], error) {
	var entry raft.LogEntry[P]
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&entry); err != nil {
		return entry, errors.Annotate(err, "badgerstore: decode entry")
	}
	return entry, nil
}

func (s *Store[P]) CurrentTerm() raft.Term {
	var term raft.Term
	_ = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyCurrentTerm)
		if err != nil {
			return nil // absent key: term 0
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		term = raft.Term(binary.BigEndian.Uint64(val))
		return nil
	})
	return term
}

func (s *Store[P]) SetCurrentTerm(t raft.Term) error {
	val := make([]byte, 8)
	binary.BigEndian.PutUint64(val, uint64(t))
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyCurrentTerm, val)
	})
	if err != nil {
		return errors.Annotate(err, "badgerstore: persist current_term")
	}
	return nil
}

func (s *Store[P]) VotedFor() (raft.NodeId, bool) {
	var id raft.NodeId
	var ok bool
	_ = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyVotedFor)
		if err != nil {
			return nil // absent key: no vote cast
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		id = raft.NodeId(binary.BigEndian.Uint64(val))
		ok = true
		return nil
	})
	return id, ok
}

func (s *Store[P]) SetVotedFor(id raft.NodeId, ok bool) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if !ok {
			if err := txn.Delete(keyVotedFor); err != nil && err != badger.ErrKeyNotFound {
				return err
			}
			return nil
		}
		val := make([]byte, 8)
		binary.BigEndian.PutUint64(val, uint64(id))
		return txn.Set(keyVotedFor, val)
	})
}

func (s *Store[P]) AppendLogEntries(entries []raft.LogEntry[P]) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, entry := range entries {
			s.lastIndex++
			data, err := encodeEntry(entry)
			if err != nil {
				return err
			}
			if err := txn.Set(logKey(s.lastIndex), data); err != nil {
				return errors.Annotatef(err, "badgerstore: append entry at index %d", s.lastIndex)
			}
			s.lastTerm = entry.Term
		}
		return nil
	})
}

func (s *Store[P]) TruncateFrom(from raft.LogIndex) error {
	if from > s.lastIndex {
		return nil
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = logPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(logKey(from)); it.ValidForPrefix(logPrefix); it.Next() {
			key := append([]byte(nil), it.Item().Key()...)
			if err := txn.Delete(key); err != nil {
				return errors.Annotatef(err, "badgerstore: truncate key %x", key)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if from < 1 {
		s.lastIndex = 0
		s.lastTerm = 0
		return nil
	}
	s.lastIndex = from - 1
	s.lastTerm = s.TermAt(s.lastIndex)
	return nil
}

func (s *Store[P]) GetEntries(from, toExclusive raft.LogIndex) []raft.LogEntry[P] {
	if toExclusive <= from {
		return nil
	}
	var out []raft.LogEntry[P]
	_ = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = logPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(logKey(from)); it.ValidForPrefix(logPrefix); it.Next() {
			idx := indexFromLogKey(it.Item().Key())
			if idx >= toExclusive {
				break
			}
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			entry, err := decodeEntry[P](val)
			if err != nil {
				return err
			}
			out = append(out, entry)
		}
		return nil
	})
	return out
}

func (s *Store[P]) TermAt(index raft.LogIndex) raft.Term {
	if index < 1 {
		return 0
	}
	var term raft.Term
	_ = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(logKey(index))
		if err != nil {
			return nil
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		entry, err := decodeEntry[P](val)
		if err != nil {
			return err
		}
		term = entry.Term
		return nil
	})
	return term
}

func (s *Store[P]) LastLogIndex() raft.LogIndex { return s.lastIndex }
func (s *Store[P]) LastLogTerm() raft.Term      { return s.lastTerm }
