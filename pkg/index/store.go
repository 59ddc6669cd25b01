package index

import (
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jellydator/ttlcache/v3"

	"sitedex/pkg/logging"
)

// Store holds the merged, queryable snapshot of all sites' metadata.
// Update is the only mutator; reads and writes are guarded by a mutex
// scoped to the individual call, never held across network waits.
type Store struct {
	mu          sync.RWMutex
	sites       map[string]*SiteIndex
	cache       *ttlcache.Cache[string, *SiteIndex]
	lastIndexed time.Time
}

// Options configures a Store.
type Options struct {
	// CacheTTL bounds how long a cached site entry stays fresh.
	CacheTTL time.Duration
	// CacheMaxSize bounds the number of cached site entries.
	CacheMaxSize int
}

// NewStore creates an empty store with a TTL-bounded site cache.
func NewStore(opts Options) *Store {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	if opts.CacheMaxSize <= 0 {
		opts.CacheMaxSize = 1000
	}

	cache := ttlcache.New[string, *SiteIndex](
		ttlcache.WithTTL[string, *SiteIndex](opts.CacheTTL),
		ttlcache.WithCapacity[string, *SiteIndex](uint64(opts.CacheMaxSize)),
		ttlcache.WithDisableTouchOnHit[string, *SiteIndex](),
	)

	return &Store{
		sites: make(map[string]*SiteIndex),
		cache: cache,
	}
}

// Update merges the given site indexes into the store. For a site that
// already exists, file sets are merged by record ID (incoming wins on
// conflict, union otherwise) and the incoming folder, path and stat fields
// are adopted. Files present in the prior snapshot but absent from the
// incoming one are preserved, so a partially re-indexed site never loses
// unrelated data.
func (s *Store) Update(sites ...*SiteIndex) {
	log := logging.Get("index")

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, incoming := range sites {
		if incoming == nil || incoming.SiteID == "" {
			continue
		}

		existing := s.sites[incoming.SiteID]
		if existing != nil && existing.Root != nil && incoming.Root != nil {
			merged := mergeFiles(existing.Root.Files, incoming.Root.Files)
			incoming.Root = &FolderNode{
				Folder:   incoming.Root.Folder,
				Files:    merged,
				Children: incoming.Root.Children,
				Path:     incoming.Root.Path,
			}
			incoming.TotalFiles = len(merged)
		}

		s.sites[incoming.SiteID] = incoming
		s.cache.Set(incoming.SiteID, incoming, ttlcache.DefaultTTL)
	}

	s.lastIndexed = time.Now()
	log.Info("index updated", "sites", len(sites), "total_sites", len(s.sites))
}

// mergeFiles unions two file sets by record ID; incoming wins on conflict.
// Preserves the prior set's order, appending genuinely new records.
func mergeFiles(existing, incoming []FileRecord) []FileRecord {
	seen := make(map[string]int, len(existing))
	merged := make([]FileRecord, len(existing))
	copy(merged, existing)
	for i, f := range merged {
		seen[f.ID] = i
	}

	for _, f := range incoming {
		if i, ok := seen[f.ID]; ok {
			merged[i] = f
			continue
		}
		seen[f.ID] = len(merged)
		merged = append(merged, f)
	}

	return merged
}

// Get returns the index for one site. The TTL cache is consulted first,
// falling back to the authoritative map.
func (s *Store) Get(siteID string) (*SiteIndex, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if item := s.cache.Get(siteID); item != nil {
		return item.Value(), true
	}

	site, ok := s.sites[siteID]
	return site, ok
}

// ListAll returns all indexed sites. Order is unspecified.
func (s *Store) ListAll() []*SiteIndex {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sites := make([]*SiteIndex, 0, len(s.sites))
	for _, site := range s.sites {
		sites = append(sites, site)
	}
	return sites
}

// Len returns the number of indexed sites.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sites)
}

// LastIndexed returns when the store was last updated.
// The zero time means the store has never been updated.
func (s *Store) LastIndexed() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastIndexed
}

// Stats recomputes aggregate statistics across all sites, including a
// file-type histogram. Types fall back to the upper-cased file-name suffix,
// then to "UNKNOWN".
func (s *Store) Stats() IndexStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := IndexStats{
		TotalSites:  len(s.sites),
		FileTypes:   make(map[string]int),
		LastIndexed: s.lastIndexed,
	}

	for _, site := range s.sites {
		stats.TotalFiles += site.TotalFiles
		stats.TotalFolders += site.TotalFolders
		stats.TotalSize += site.TotalSize

		if site.Root == nil {
			continue
		}
		site.Root.Walk(func(node *FolderNode) {
			for _, f := range node.Files {
				stats.FileTypes[f.FileType()]++
			}
		})
	}

	logging.Get("index").Debug("stats computed",
		"sites", stats.TotalSites,
		"files", stats.TotalFiles,
		"size", humanize.Bytes(uint64(stats.TotalSize)))

	return stats
}

// Clear empties the authoritative map and the cache and resets the
// last-updated timestamp.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sites = make(map[string]*SiteIndex)
	s.cache.DeleteAll()
	s.lastIndexed = time.Time{}
	logging.Get("index").Info("index cleared")
}
