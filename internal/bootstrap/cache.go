package bootstrap

import (
	gocache "github.com/patrickmn/go-cache"
	"github.com/stripe/stripe-go/v76"
)

// ResultCache memoizes resolved provider records within one synchronization
// run, preventing repeated lookups or creates for the same unique name. It
// is scoped to a single run and never persisted; concurrent overlapping runs
// must each use their own instance.
type ResultCache struct {
	store *gocache.Cache
}

// NewResultCache creates an empty run-scoped cache.
func NewResultCache() *ResultCache {
	return &ResultCache{store: gocache.New(gocache.NoExpiration, 0)}
}

func (c *ResultCache) GetProduct(uniqueName string) *stripe.Product {
	if v, ok := c.store.Get("products:" + uniqueName); ok {
		return v.(*stripe.Product)
	}
	return nil
}

func (c *ResultCache) SetProduct(uniqueName string, product *stripe.Product) *stripe.Product {
	c.store.Set("products:"+uniqueName, product, gocache.NoExpiration)
	return product
}

func (c *ResultCache) GetPrice(uniqueName string) *stripe.Price {
	if v, ok := c.store.Get("prices:" + uniqueName); ok {
		return v.(*stripe.Price)
	}
	return nil
}

func (c *ResultCache) SetPrice(uniqueName string, price *stripe.Price) *stripe.Price {
	c.store.Set("prices:"+uniqueName, price, gocache.NoExpiration)
	return price
}
