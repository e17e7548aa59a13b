package store

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Well-known durable state keys.
const (
	KeyScanState      = "scanState"
	KeyUnfollowState  = "unfollowState"
	KeyScanResults    = "scanResults"
	KeyScanSkipped    = "scanSkipped"
	KeyFollowingIndex = "followingIndex"
	KeyScanIntent     = "scanIntent"
	KeyUnfollowDelay  = "unfollowDelay"
	KeyInactiveDays   = "inactiveDays"
	KeyUnfollowDebug  = "unfollowDebug"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("store: key not found")

// Store is a durable key-value store surviving process restarts. Values are
// raw JSON documents.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Remove(key string) error
}

// GetJSON reads a key and unmarshals it into target. Returns ErrNotFound if
// the key is absent.
func GetJSON(s Store, key string, target interface{}) error {
	data, err := s.Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("store: decode %s: %w", key, err)
	}
	return nil
}

// SetJSON marshals value and writes it under key.
func SetJSON(s Store, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", key, err)
	}
	return s.Set(key, data)
}
