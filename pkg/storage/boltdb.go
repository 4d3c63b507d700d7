package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	bolt "go.etcd.io/bbolt"
)

var namespaceBuckets = [][]byte{
	[]byte(NamespaceConfig),
	[]byte(NamespaceSecurity),
	[]byte(NamespaceFirmware),
	[]byte(NamespacePower),
	[]byte(NamespaceDiagnostics),
}

// BoltStore implements Store on top of bbolt. Writes are additionally
// serialized through writeMu: bbolt already gives one writer at a time, but
// the explicit mutex matches the spec's "global mutex, writes are slow"
// contract and gives callers a place to reason about write latency without
// depending on bbolt internals.
type BoltStore struct {
	db      *bolt.DB
	writeMu sync.Mutex
}

// NewBoltStore opens (creating if absent) the EcoWatt persistent database
// under dataDir and ensures every namespace bucket exists.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "ecowatt.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open persistent store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range namespaceBuckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) get(namespace, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return fmt.Errorf("unknown namespace: %s", namespace)
		}
		if v := b.Get([]byte(key)); v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	return value, err
}

func (s *BoltStore) put(namespace, key string, value []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return fmt.Errorf("unknown namespace: %s", namespace)
		}
		return b.Put([]byte(key), value)
	})
}

func (s *BoltStore) GetUint32(namespace, key string, defaultValue uint32) (uint32, error) {
	raw, err := s.get(namespace, key)
	if err != nil {
		return 0, err
	}
	if len(raw) != 4 {
		return defaultValue, nil
	}
	return binary.BigEndian.Uint32(raw), nil
}

func (s *BoltStore) PutUint32(namespace, key string, value uint32) error {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, value)
	return s.put(namespace, key, buf)
}

func (s *BoltStore) GetUint64(namespace, key string, defaultValue uint64) (uint64, error) {
	raw, err := s.get(namespace, key)
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return defaultValue, nil
	}
	return binary.BigEndian.Uint64(raw), nil
}

func (s *BoltStore) PutUint64(namespace, key string, value uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, value)
	return s.put(namespace, key, buf)
}

func (s *BoltStore) GetBool(namespace, key string, defaultValue bool) (bool, error) {
	raw, err := s.get(namespace, key)
	if err != nil {
		return false, err
	}
	if len(raw) != 1 {
		return defaultValue, nil
	}
	return raw[0] != 0, nil
}

func (s *BoltStore) PutBool(namespace, key string, value bool) error {
	b := byte(0)
	if value {
		b = 1
	}
	return s.put(namespace, key, []byte{b})
}

func (s *BoltStore) GetString(namespace, key string, defaultValue string) (string, error) {
	raw, err := s.get(namespace, key)
	if err != nil {
		return "", err
	}
	if raw == nil {
		return defaultValue, nil
	}
	return string(raw), nil
}

func (s *BoltStore) PutString(namespace, key string, value string) error {
	return s.put(namespace, key, []byte(value))
}

func (s *BoltStore) GetJSON(namespace, key string, out interface{}) (bool, error) {
	raw, err := s.get(namespace, key)
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("unmarshal %s/%s: %w", namespace, key, err)
	}
	return true, nil
}

func (s *BoltStore) PutJSON(namespace, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", namespace, key, err)
	}
	return s.put(namespace, key, data)
}
