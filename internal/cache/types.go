package cache

import (
	"time"

	"github.com/jmgilman/go/assets/asset"
	asseterrors "github.com/jmgilman/go/assets/errors"
)

// Entry is a cached asset returned by Get.
type Entry struct {
	Key            asset.Key
	Type           asset.Type
	Data           []byte
	SizeBytes      int64
	CreatedAt      time.Time
	LastAccessedAt time.Time
	AccessCount    int64
	Metadata       map[string]string
}

// IndexEntry is the persisted record for one blob.
type IndexEntry struct {
	Key            asset.Key         `json:"key"`
	Digest         string            `json:"digest"`
	SizeBytes      int64             `json:"size_bytes"`
	StoredBytes    int64             `json:"stored_bytes"`
	Encoding       Encoding          `json:"encoding"`
	CreatedAt      time.Time         `json:"created_at"`
	LastAccessedAt time.Time         `json:"last_accessed_at"`
	AccessCount    int64             `json:"access_count"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

func (ie *IndexEntry) clone() *IndexEntry {
	c := *ie
	if ie.Metadata != nil {
		c.Metadata = make(map[string]string, len(ie.Metadata))
		for k, v := range ie.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

func (ie *IndexEntry) toEntry(data []byte) *Entry {
	c := ie.clone()
	return &Entry{
		Key:            c.Key,
		Type:           c.Key.Type,
		Data:           data,
		SizeBytes:      c.SizeBytes,
		CreatedAt:      c.CreatedAt,
		LastAccessedAt: c.LastAccessedAt,
		AccessCount:    c.AccessCount,
		Metadata:       c.Metadata,
	}
}

// TypeStats aggregates the entries of one asset type.
type TypeStats struct {
	Entries int   `json:"entries"`
	Bytes   int64 `json:"bytes"`
}

// Stats is a point-in-time view of the store.
type Stats struct {
	Entries     int                      `json:"entries"`
	UsedBytes   int64                    `json:"used_bytes"`
	MaxBytes    int64                    `json:"max_bytes"`
	Utilization float64                  `json:"utilization"`
	ByType      map[asset.Type]TypeStats `json:"by_type"`
	Metrics     MetricsSnapshot          `json:"metrics"`
}

// IsMiss reports whether err is a cache miss.
func IsMiss(err error) bool {
	return asseterrors.HasCode(err, asseterrors.CodeNotFound)
}

func errMiss(key asset.Key) error {
	return asseterrors.WithContext(
		asseterrors.New(asseterrors.CodeNotFound, "cache miss"),
		"key", key.String(),
	)
}
