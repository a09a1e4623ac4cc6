package review

import "sync"

// Deck is the per-session lookup of due vocabulary items keyed by id. Items
// are immutable for the session except for their scheduler card.
//
// Deck is safe for concurrent use.
type Deck struct {
	mu    sync.RWMutex
	order []string
	items map[string]VocabularyItem
}

// NewDeck builds a Deck from items, preserving their order. Later duplicates
// of an id are ignored.
func NewDeck(items []VocabularyItem) *Deck {
	d := &Deck{items: make(map[string]VocabularyItem, len(items))}
	for _, it := range items {
		if _, dup := d.items[it.ID]; dup || it.ID == "" {
			continue
		}
		d.order = append(d.order, it.ID)
		d.items[it.ID] = it
	}
	return d
}

// Get returns the item for id.
func (d *Deck) Get(id string) (VocabularyItem, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	it, ok := d.items[id]
	return it, ok
}

// Resolve maps ids to items in order, dropping unknown ids.
func (d *Deck) Resolve(ids []string) []VocabularyItem {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]VocabularyItem, 0, len(ids))
	for _, id := range ids {
		if it, ok := d.items[id]; ok {
			out = append(out, it)
		}
	}
	return out
}

// ReplaceCard swaps the scheduler card of id. It reports false when id is
// unknown.
func (d *Deck) ReplaceCard(id string, card SchedulerCard) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	it, ok := d.items[id]
	if !ok {
		return false
	}
	it.Card = card
	d.items[id] = it
	return true
}

// At returns the i-th item in load order.
func (d *Deck) At(i int) (VocabularyItem, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if i < 0 || i >= len(d.order) {
		return VocabularyItem{}, false
	}
	return d.items[d.order[i]], true
}

// Items returns all items in load order.
func (d *Deck) Items() []VocabularyItem {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]VocabularyItem, len(d.order))
	for i, id := range d.order {
		out[i] = d.items[id]
	}
	return out
}

// Len returns the number of items.
func (d *Deck) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.order)
}
