// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var credentialsBucket = []byte("credentials")

// credentials is what survives a restart: rejoining with a cached viewer
// token keeps the same participant identity instead of minting a new
// voter.
type credentials struct {
	ViewerToken string `json:"viewer_token"`
	CSRFToken   string `json:"csrf_token"`
	DriverKey   string `json:"driver_key,omitempty"`
}

// credentialCache persists per-round credentials in a local bbolt file.
type credentialCache struct {
	db *bolt.DB
}

func openCache(path string) (*credentialCache, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open credential cache: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(credentialsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init credential cache: %w", err)
	}
	return &credentialCache{db: db}, nil
}

func (c *credentialCache) load(roundID string) (credentials, bool) {
	var creds credentials
	found := false
	_ = c.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(credentialsBucket).Get([]byte(roundID))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &creds); err != nil {
			return nil
		}
		found = true
		return nil
	})
	return creds, found
}

func (c *credentialCache) save(roundID string, creds credentials) error {
	raw, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(credentialsBucket).Put([]byte(roundID), raw)
	})
}

func (c *credentialCache) Close() error {
	return c.db.Close()
}
