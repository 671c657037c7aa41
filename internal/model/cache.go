package model

import (
	"encoding/json"
	"time"
)

// CacheItem wraps an upstream payload stored under a deterministic resource key.
// Entries are written once and expire by store-side TTL; re-fetch after expiry
// overwrites the entry wholesale.
type CacheItem struct {
	Key            string          `json:"key"`
	Payload        json.RawMessage `json:"payload"`
	Timestamp      time.Time       `json:"timestamp"`
	ExpirationDate time.Time       `json:"expirationDate"`
}
