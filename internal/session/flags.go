package session

import (
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	flagsBucket = "flags"
	hintSeenKey = "install_hint_seen"
)

// FlagStore persists the one-time install hint flag. Nothing else about a
// session outlives the process.
type FlagStore interface {
	// HintSeen reports whether the install hint was dismissed before
	HintSeen() (bool, error)

	// MarkHintSeen records that the hint was dismissed
	MarkHintSeen() error

	// Close closes the underlying database
	Close() error
}

// BoltFlags implements FlagStore using BoltDB
type BoltFlags struct {
	db *bbolt.DB
}

// NewBoltFlags opens (or creates) the flag database at path
func NewBoltFlags(path string) (*BoltFlags, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(flagsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltFlags{db: db}, nil
}

// HintSeen reads the flag; a missing key means the hint was never dismissed
func (b *BoltFlags) HintSeen() (bool, error) {
	var seen bool
	err := b.db.View(func(tx *bbolt.Tx) error {
		seen = tx.Bucket([]byte(flagsBucket)).Get([]byte(hintSeenKey)) != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("reading hint flag: %w", err)
	}
	return seen, nil
}

// MarkHintSeen stores the flag
func (b *BoltFlags) MarkHintSeen() error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(flagsBucket)).Put([]byte(hintSeenKey), []byte(time.Now().UTC().Format(time.RFC3339)))
	})
	if err != nil {
		return fmt.Errorf("writing hint flag: %w", err)
	}
	return nil
}

// Close closes the database connection
func (b *BoltFlags) Close() error {
	return b.db.Close()
}
