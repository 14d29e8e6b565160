package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemHandlers serves service health and process statistics
type SystemHandlers struct {
	log         zerolog.Logger
	startupTime time.Time
	resolver    CompanyResolver
	cache       CacheStatsProvider
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(log zerolog.Logger, resolver CompanyResolver, cache CacheStatsProvider) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		startupTime: time.Now(),
		resolver:    resolver,
		cache:       cache,
	}
}

// MemoryStats is process and host memory usage
type MemoryStats struct {
	HeapAllocMB     float64 `json:"heap_alloc_mb"`
	SysMB           float64 `json:"sys_mb"`
	Goroutines      int     `json:"goroutines"`
	HostUsedPercent float64 `json:"host_used_percent"`
}

// DirectoryStats describes the loaded company directory
type DirectoryStats struct {
	Loaded  bool       `json:"loaded"`
	Records int        `json:"records"`
	Names   int        `json:"names"`
	Tickers int        `json:"tickers"`
	AsOf    *time.Time `json:"as_of,omitempty"`
}

// CacheStats describes the response cache database
type CacheStats struct {
	Profile   string  `json:"profile"`
	SizeMB    float64 `json:"size_mb"`
	WALSizeMB float64 `json:"wal_size_mb"`
	Pages     int64   `json:"pages"`
}

// HealthResponse is the body of GET /api/v1/health
type HealthResponse struct {
	Status        string         `json:"status"`
	Timestamp     time.Time      `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Memory        MemoryStats    `json:"memory"`
	Directory     DirectoryStats `json:"directory"`
	Cache         *CacheStats    `json:"cache,omitempty"`
}

// HandleHealth reports liveness plus memory, directory and cache statistics.
// It never triggers a directory download or opens the cache.
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		Timestamp:     time.Now(),
		Version:       Version,
		UptimeSeconds: int64(time.Since(h.startupTime).Seconds()),
		Memory:        h.memoryStats(),
		Directory:     h.directoryStats(),
		Cache:         h.cacheStats(r),
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode health response")
	}
}

func (h *SystemHandlers) memoryStats() MemoryStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	stats := MemoryStats{
		HeapAllocMB: bytesToMB(int64(ms.HeapAlloc)),
		SysMB:       bytesToMB(int64(ms.Sys)),
		Goroutines:  runtime.NumGoroutine(),
	}

	// Host memory is instant, no blocking
	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return stats
	}
	stats.HostUsedPercent = memStat.UsedPercent
	return stats
}

func (h *SystemHandlers) directoryStats() DirectoryStats {
	if h.resolver == nil {
		return DirectoryStats{}
	}
	dir := h.resolver.Current()
	if dir == nil {
		return DirectoryStats{}
	}
	asOf := dir.AsOf()
	return DirectoryStats{
		Loaded:  true,
		Records: dir.Len(),
		Names:   dir.Names(),
		Tickers: dir.Tickers(),
		AsOf:    &asOf,
	}
}

func (h *SystemHandlers) cacheStats(r *http.Request) *CacheStats {
	if h.cache == nil {
		return nil
	}
	stats, err := h.cache.Stats(r.Context())
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get cache statistics")
		return nil
	}
	if stats == nil {
		return nil
	}
	return &CacheStats{
		Profile:   string(stats.Profile),
		SizeMB:    bytesToMB(stats.SizeBytes),
		WALSizeMB: bytesToMB(stats.WALSizeBytes),
		Pages:     stats.PageCount,
	}
}

func bytesToMB(n int64) float64 {
	return float64(n) / 1024 / 1024
}
