package legacy

import (
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/Failure404/xmpp-cloud-auth/pkg/types"
)

// A bbolt file starts with a meta page: a 16-byte page header whose flags
// mark it as meta, followed by the magic number.
const (
	boltHeaderLen = 20
	boltMagic     = 0xED0CDAED
	boltMetaFlag  = 0x04
)

func isBoltHeader(head []byte) bool {
	if len(head) < boltHeaderLen {
		return false
	}
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		if order.Uint16(head[8:10])&boltMetaFlag != 0 && order.Uint32(head[16:20]) == boltMagic {
			return true
		}
	}
	return false
}

// boltSource iterates every top-level bucket of a bbolt file. Legacy pairs
// exported into bbolt are kept one bucket per database; a file holding a
// single database uses a single bucket.
type boltSource struct {
	db   *bolt.DB
	path string
}

func openBolt(path string) (Source, error) {
	db, err := bolt.Open(path, 0o400, &bolt.Options{ReadOnly: true, Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", types.ErrSourceUnavailable, path, err)
	}
	return &boltSource{db: db, path: path}, nil
}

func (s *boltSource) Each(fn func(key, value []byte) error) error {
	if s.db == nil {
		return fmt.Errorf("%w: %s is closed", types.ErrSourceUnavailable, s.path)
	}
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(_ []byte, b *bolt.Bucket) error {
			return b.ForEach(func(k, v []byte) error {
				if v == nil {
					// Nested bucket.
					return nil
				}
				return fn(k, v)
			})
		})
	})
}

func (s *boltSource) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
