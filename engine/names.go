package engine

import (
	"github.com/golang/glog"
	"github.com/hashicorp/golang-lru/simplelru"
)

// RegionNames is a bounded cache from region id to its human-readable
// name, populated from definition records as they arrive. The full
// region/location definition table is an external concern; the engine
// itself only wants readable names for its own warning
// messages, and a long-running trace's definition table can be large
// enough that keeping every name forever is wasteful, so this is bounded
// by Config.MemLimitMB rather than grown unboundedly.
type RegionNames struct {
	cache *simplelru.LRU
}

// newRegionNames returns a RegionNames cache sized per cfg.
func newRegionNames(cfg Config) *RegionNames {
	lru, err := simplelru.NewLRU(cfg.regionCacheSize(), nil)
	if err != nil {
		// Only returned by simplelru.NewLRU for a non-positive size, which
		// regionCacheSize never produces.
		glog.Fatalf("engine: region name cache: %v", err)
	}
	return &RegionNames{cache: lru}
}

// Put records name for region id.
func (r *RegionNames) Put(id int64, name string) {
	r.cache.Add(id, name)
}

// Name returns the cached name for id, if still resident.
func (r *RegionNames) Name(id int64) (string, bool) {
	v, ok := r.cache.Get(id)
	if !ok {
		return "", false
	}
	return v.(string), true
}
