package storage

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/voxalabs/storage-redundancy-engine/interfaces"
)

const (
	infoCacheSize = 512
	infoCacheTTL  = 5 * time.Minute
)

// infoCache keeps recently observed file metadata so GetFileInfo can answer
// without a network round trip. Entries expire so callers never see stale
// metadata for long after an external change.
type infoCache struct {
	lru *expirable.LRU[string, interfaces.FileRecord]
}

func newInfoCache() *infoCache {
	return &infoCache{
		lru: expirable.NewLRU[string, interfaces.FileRecord](infoCacheSize, nil, infoCacheTTL),
	}
}

func (c *infoCache) put(record interfaces.FileRecord) {
	c.lru.Add(record.Name, record)
}

func (c *infoCache) get(filename string) (interfaces.FileRecord, bool) {
	return c.lru.Get(filename)
}

func (c *infoCache) drop(filename string) {
	c.lru.Remove(filename)
}
