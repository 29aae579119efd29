package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// HandoffKey returns the cache key for a single pre-redirect handoff record
func (r *CacheKeyStruct) HandoffKey(handle string) string {
	return fmt.Sprintf("handoff:%s", handle)
}

// ExportEventsChannel returns the Redis PubSub channel name for an export's state changes
func (r *CacheKeyStruct) ExportEventsChannel(exportID string) string {
	return fmt.Sprintf("export:%s:events", exportID)
}

// GenerateRateKey returns the cache key counting generation requests per client IP
func (r *CacheKeyStruct) GenerateRateKey(ip string) string {
	return fmt.Sprintf("ratelimit:generate:%s", ip)
}

var CacheKey = NewCacheKeyStruct()
