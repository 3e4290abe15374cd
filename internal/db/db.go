package db

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"

	badger "github.com/dgraph-io/badger/v3"
	"github.com/pkg/errors"

	"github.com/supby/lorae5/internal/types"
)

var ErrNotFound = errors.New("not found")

var (
	identityKey  = []byte("identity")
	uplinkPrefix = []byte("uplink/")
	sequenceKey  = []byte("uplink-seq")
)

type TelemetryDBOptions struct {
	// InMemory keeps everything in RAM; dirname is ignored.
	InMemory bool
}

func NewTelemetryDB(dirname string, options TelemetryDBOptions) (TelemetryDB, error) {
	opt := badger.DefaultOptions(dirname)
	if options.InMemory {
		opt = badger.DefaultOptions("").WithInMemory(true)
	}
	opt.ValueLogFileSize = 1024 * 1024 * 40
	opt.Logger = nil

	db, err := badger.Open(opt)
	if err != nil {
		return nil, errors.Wrapf(err, "open telemetry db %v", dirname)
	}

	return &telemetryDB{
		db: db,
	}, nil
}

type telemetryDB struct {
	db *badger.DB
}

func (d *telemetryDB) SaveIdentity(ctx context.Context, identity types.Identity) error {
	buf, err := encode(identity)
	if err != nil {
		return err
	}

	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(identityKey, buf)
	})
}

func (d *telemetryDB) GetIdentity(ctx context.Context) (types.Identity, error) {
	var ret types.Identity
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(identityKey)
		if err != nil {
			return err
		}

		return item.Value(func(v []byte) error {
			return decode(v, &ret)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return types.Identity{}, ErrNotFound
	}
	if err != nil {
		return types.Identity{}, err
	}

	return ret, nil
}

// AppendUplink stores uplink under the next sequence number and returns it
// with Sequence filled in.
func (d *telemetryDB) AppendUplink(ctx context.Context, uplink types.Uplink) (types.Uplink, error) {
	err := d.db.Update(func(txn *badger.Txn) error {
		var seq uint64
		item, err := txn.Get(sequenceKey)
		switch {
		case err == nil:
			if err := item.Value(func(v []byte) error {
				seq = binary.BigEndian.Uint64(v)
				return nil
			}); err != nil {
				return err
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		seq++
		uplink.Sequence = seq

		buf, err := encode(uplink)
		if err != nil {
			return err
		}
		if err := txn.Set(uplinkKey(seq), buf); err != nil {
			return err
		}

		seqBuf := make([]byte, 8)
		binary.BigEndian.PutUint64(seqBuf, seq)

		return txn.Set(sequenceKey, seqBuf)
	})

	if err != nil {
		return types.Uplink{}, err
	}

	return uplink, nil
}

// GetUplinks returns up to limit of the most recent uplinks, oldest first.
// A limit of 0 returns all of them.
func (d *telemetryDB) GetUplinks(ctx context.Context, limit int) ([]types.Uplink, error) {
	var ret []types.Uplink
	err := d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = uplinkPrefix
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		seekKey := append(append([]byte{}, uplinkPrefix...), 0xFF)
		for it.Seek(seekKey); it.ValidForPrefix(uplinkPrefix); it.Next() {
			if limit > 0 && len(ret) >= limit {
				break
			}

			var u types.Uplink
			if err := it.Item().Value(func(v []byte) error {
				return decode(v, &u)
			}); err != nil {
				return err
			}

			ret = append(ret, u)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	for i, j := 0, len(ret)-1; i < j; i, j = i+1, j-1 {
		ret[i], ret[j] = ret[j], ret[i]
	}

	return ret, nil
}

func (d *telemetryDB) Close(ctx context.Context) error {
	if err := d.db.Close(); err != nil {
		return err
	}

	return nil
}

func uplinkKey(seq uint64) []byte {
	key := make([]byte, len(uplinkPrefix)+8)
	copy(key, uplinkPrefix)
	binary.BigEndian.PutUint64(key[len(uplinkPrefix):], seq)

	return key
}

func encode(v interface{}) ([]byte, error) {
	buf := bytes.Buffer{}
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decode(v []byte, dst interface{}) error {
	dec := gob.NewDecoder(bytes.NewReader(v))
	return dec.Decode(dst)
}
