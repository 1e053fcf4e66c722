package store

import (
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var settingsBucket = []byte("settings")

// Bolt stores settings in a bbolt file
type Bolt struct {
	db *bolt.DB
}

// NewBolt opens or creates the bbolt file at path
func NewBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "opening settings db")
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(settingsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating settings bucket")
	}

	return &Bolt{db: db}, nil
}

// Load implements Settings
func (b *Bolt) Load(key string) ([]byte, error) {
	var ret []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(settingsBucket).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		// v is only valid inside the transaction
		ret = append([]byte{}, v...)
		return nil
	})
	return ret, err
}

// Save implements Settings
func (b *Bolt) Save(key string, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(settingsBucket).Put([]byte(key), value)
	})
}

// Close implements Settings
func (b *Bolt) Close() error {
	return b.db.Close()
}
