package repositories

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"moonshop/errors"

	"github.com/dgraph-io/badger/v4"
)

const (
	maxConflictRetries = 32
	sequenceBandwidth  = 100
	// Larger than any zero padded 20 digit id, used to seek from the end of a prefix.
	reverseSeekSuffix = "99999999999999999999"
)

// updateWithRetry runs fn in a read-write transaction and replays it when
// Badger detects a conflicting concurrent commit.
func updateWithRetry(db *badger.DB, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func setJSON(txn *badger.Txn, key string, v any) error {
	bytes, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return txn.Set([]byte(key), bytes)
}

func getJSON(txn *badger.Txn, key string, v any) error {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%s: %w", key, errors.ErrNotFound)
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

// nextID hands out ids starting at 1, Badger sequences start at 0.
func nextID(seq *badger.Sequence) (uint64, error) {
	id, err := seq.Next()
	if err != nil {
		return 0, fmt.Errorf("sequence exhausted: %w", err)
	}
	return id + 1, nil
}

func encodeID(id uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	return buf
}

func decodeID(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
