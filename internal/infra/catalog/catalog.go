// Package catalog holds the reward catalog: the fixed list of items
// StepCoins can be redeemed for. The catalog is read-only at runtime and may
// be cached freely without locking.
package catalog

import "github.com/letsbehealthy/stepcoin/internal/domain"

// Catalog is an immutable, ordered list of reward items indexed by name.
type Catalog struct {
	items []domain.RewardItem
	index map[string]int
}

// New builds a catalog from an ordered item list. Duplicate names keep the
// first occurrence.
func New(items []domain.RewardItem) *Catalog {
	c := &Catalog{index: make(map[string]int, len(items))}
	for _, item := range items {
		if _, dup := c.index[item.Name]; dup {
			continue
		}
		c.index[item.Name] = len(c.items)
		c.items = append(c.items, item)
	}
	return c
}

// Default returns the stock reward catalog.
func Default() *Catalog {
	return New([]domain.RewardItem{
		{Name: "10% Discount Coupon", Cost: 500},
		{Name: "Free Gym Pass", Cost: 1000},
		{Name: "5$ gift card", Cost: 2500},
		{Name: "Fitness Band Giveaway Entry", Cost: 5000},
	})
}

// ListItems returns the items in catalog order.
func (c *Catalog) ListItems() []domain.RewardItem {
	out := make([]domain.RewardItem, len(c.items))
	copy(out, c.items)
	return out
}

// Lookup returns the item with the given name, or nil if absent.
func (c *Catalog) Lookup(name string) *domain.RewardItem {
	i, ok := c.index[name]
	if !ok {
		return nil
	}
	item := c.items[i]
	return &item
}
