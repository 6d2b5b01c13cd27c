// Package batch implements the batch processor: adaptive batch sizing
// by device tier, the per-item O(1) derive/stats/groups/series loop,
// and the flush-with-fallback policy.
package batch

import (
	"runtime"
	"strings"
)

// DeviceTier selects the (batch_size, gc_interval, series_chunk_size)
// profile for a job.
type DeviceTier string

const (
	TierSmartTV DeviceTier = "tv"
	TierMobile  DeviceTier = "mobile"
	TierDesktop DeviceTier = "desktop"
)

// Config is the adaptive batching profile for one job.
type Config struct {
	BatchSize       int
	GCInterval      int
	SeriesChunkSize int
}

var tierConfigs = map[DeviceTier]Config{
	TierSmartTV: {BatchSize: 250, GCInterval: 5, SeriesChunkSize: 10_000},
	TierMobile:  {BatchSize: 400, GCInterval: 8, SeriesChunkSize: 20_000},
	TierDesktop: {BatchSize: 1000, GCInterval: 10, SeriesChunkSize: 50_000},
}

// TierSizes carries the operator-configured batch size per device tier,
// overriding tierConfigs' built-in BatchSize while leaving GCInterval
// and SeriesChunkSize at their defaults.
type TierSizes struct {
	TV      int
	Mobile  int
	Desktop int
}

func (s TierSizes) forTier(tier DeviceTier) int {
	switch tier {
	case TierSmartTV:
		return s.TV
	case TierMobile:
		return s.Mobile
	case TierDesktop:
		return s.Desktop
	default:
		return 0
	}
}

// lowFreeHeapBytes and criticalFreeHeapBytes are the free-heap
// thresholds that halve, then clamp, the batch profile.
const (
	lowFreeHeapBytes      = 200 << 20
	criticalFreeHeapBytes = 100 << 20
)

// DetectTier resolves a device tier from an explicit hint (if given)
// or by sniffing the User-Agent; defaults to desktop when neither
// signal is conclusive.
func DetectTier(userAgent, hint string) DeviceTier {
	switch strings.ToLower(strings.TrimSpace(hint)) {
	case "tv", "smarttv", "smart_tv":
		return TierSmartTV
	case "mobile":
		return TierMobile
	case "desktop":
		return TierDesktop
	}

	ua := strings.ToLower(userAgent)
	switch {
	case containsAny(ua, "tizen", "webos", "smarttv", "smart-tv", "googletv", "appletv", "roku", "tvos", "crkey", "hbbtv"):
		return TierSmartTV
	case containsAny(ua, "mobile", "android", "iphone", "ipad", "ipod"):
		return TierMobile
	default:
		return TierDesktop
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// ResolveConfig returns tier's base profile, adjusted for current free
// heap when runtime memory stats are available. sizes, when non-zero
// for tier, overrides the compiled-in BatchSize with an operator-configured
// value.
func ResolveConfig(tier DeviceTier, memStatsAvailable bool, sizes TierSizes) Config {
	cfg := tierConfigs[tier]
	if cfg == (Config{}) {
		cfg = tierConfigs[TierDesktop]
	}
	if override := sizes.forTier(tier); override > 0 {
		cfg.BatchSize = override
	}
	if !memStatsAvailable {
		return cfg
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	freeHeap := int64(ms.HeapSys) - int64(ms.HeapInuse)
	if freeHeap < 0 {
		freeHeap = 0
	}

	switch {
	case freeHeap < criticalFreeHeapBytes:
		return Config{BatchSize: 100, GCInterval: 3, SeriesChunkSize: 1}
	case freeHeap < lowFreeHeapBytes:
		cfg.BatchSize /= 2
		cfg.GCInterval /= 2
		if cfg.GCInterval < 1 {
			cfg.GCInterval = 1
		}
		return cfg
	default:
		return cfg
	}
}
