package schedule

import (
	"encoding/json"
	"errors"
	"log"
	"sync"

	"github.com/sweeney/dose-dispenser/internal/kv"
)

// Stamper supplies the freshness label written into UpdatedAt.
type Stamper interface {
	Stamp() string
}

// Cache holds the three category caches.
// Get is safe from any goroutine. Replace calls the Stamper, so it must be
// called wherever the Stamper itself is safe to read.
type Cache struct {
	store kv.Store
	stamp Stamper

	mu   sync.RWMutex
	cats map[Category]CategoryCache
}

// NewCache creates an empty cache. Nothing is read from the store until
// LoadAll or EnsureLoaded.
func NewCache(store kv.Store, stamp Stamper) *Cache {
	return &Cache{
		store: store,
		stamp: stamp,
		cats:  make(map[Category]CategoryCache),
	}
}

// Get returns a copy of the category's cache.
func (c *Cache) Get(cat Category) CategoryCache {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cats[cat].clone()
}

// Replace swaps in a fresh record list, stamps it and persists it. Lists
// longer than MaxRecords keep the first MaxRecords entries in server order.
func (c *Cache) Replace(cat Category, records []DoseRecord) {
	if len(records) > MaxRecords {
		records = records[:MaxRecords]
	}
	next := CategoryCache{
		Records:   append([]DoseRecord{}, records...),
		UpdatedAt: Truncate(c.stamp.Stamp(), MaxUpdatedAt),
		Valid:     true,
	}

	c.mu.Lock()
	c.cats[cat] = next
	c.mu.Unlock()

	c.persist(cat, next)
}

func (c *Cache) persist(cat Category, cc CategoryCache) {
	blob, err := json.Marshal(cc)
	if err != nil {
		log.Printf("schedule: encode %s: %v", cat, err)
		return
	}
	if err := c.store.Set(cat.StoreKey(), blob); err != nil {
		log.Printf("schedule: persist %s: %v", cat, err)
	}
}

// EnsureLoaded hydrates the category from the store if it is not yet valid
// in memory. It reports whether the category is valid afterwards.
func (c *Cache) EnsureLoaded(cat Category) bool {
	c.mu.RLock()
	valid := c.cats[cat].Valid
	c.mu.RUnlock()
	if valid {
		return true
	}

	blob, err := c.store.Get(cat.StoreKey())
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			log.Printf("schedule: load %s: %v", cat, err)
		}
		return false
	}
	var cc CategoryCache
	if err := json.Unmarshal(blob, &cc); err != nil {
		log.Printf("schedule: decode %s: %v", cat, err)
		return false
	}
	if len(cc.Records) > MaxRecords {
		cc.Records = cc.Records[:MaxRecords]
	}
	for i, r := range cc.Records {
		cc.Records[i] = NewDoseRecord(r.Name, r.Dose, r.ScheduledTime, r.Status, r.DoseID, r.Slot)
	}
	cc.Valid = true

	c.mu.Lock()
	defer c.mu.Unlock()
	// A concurrent Replace wins over what was on disk.
	if c.cats[cat].Valid {
		return true
	}
	c.cats[cat] = cc
	return true
}

// LoadAll hydrates every category at boot.
func (c *Cache) LoadAll() {
	for _, cat := range Categories {
		if c.EnsureLoaded(cat) {
			log.Printf("schedule: loaded %d cached %s records", len(c.Get(cat).Records), cat)
		}
	}
}

// Next returns the next upcoming dose, if the upcoming list is known and
// non-empty.
func (c *Cache) Next() (DoseRecord, bool) {
	if !c.EnsureLoaded(Upcoming) {
		return DoseRecord{}, false
	}
	up := c.Get(Upcoming)
	if len(up.Records) == 0 {
		return DoseRecord{}, false
	}
	return up.Records[0], true
}
