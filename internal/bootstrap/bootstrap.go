package bootstrap

import (
	"context"
	"sync"

	"github.com/sourcegraph/conc/pool"
	"github.com/stripe/stripe-go/v76"

	"github.com/instpay/instpay/internal/domain/catalog"
	ierr "github.com/instpay/instpay/internal/errors"
	stripegw "github.com/instpay/instpay/internal/integration/stripe"
	"github.com/instpay/instpay/internal/logger"
	"github.com/instpay/instpay/internal/types"
)

// Bootstrapper reconciles the local catalog with the billing provider:
// one product per plan and per priced line item, one price per scope key
// and currency. The whole operation is idempotent; a second run against an
// in-sync account performs only list calls.
type Bootstrapper struct {
	gateway stripegw.Gateway
	cache   *ResultCache
	logger  *logger.Logger
}

func NewBootstrapper(gateway stripegw.Gateway, logger *logger.Logger) *Bootstrapper {
	return &Bootstrapper{
		gateway: gateway,
		cache:   NewResultCache(),
		logger:  logger,
	}
}

// Run instantiates every plan, resolves the provider products and prices
// they need, and returns the plans with StripeData attached. Products are
// resolved concurrently; prices sequentially per plan so that template
// prices shared across plans are created exactly once.
func (b *Bootstrapper) Run(ctx context.Context, cat *catalog.Catalog) ([]*catalog.Plan, error) {
	plans, err := cat.Instantiate()
	if err != nil {
		return nil, err
	}

	products, err := b.resolveProducts(ctx, cat, plans)
	if err != nil {
		return nil, err
	}

	for _, plan := range plans {
		if err := b.resolvePlanPrices(ctx, plan, products); err != nil {
			return nil, err
		}
	}
	return plans, nil
}

// resolveProducts finds or creates the product for every plan and every
// priced base line item. Line item products are shared across plans, so
// they are keyed by line item name rather than scope.
func (b *Bootstrapper) resolveProducts(ctx context.Context, cat *catalog.Catalog, plans []*catalog.Plan) (map[string]*stripe.Product, error) {
	var (
		mu       sync.Mutex
		products = make(map[string]*stripe.Product)
	)
	group := pool.New().WithContext(ctx).WithCancelOnError()

	resolve := func(key string, identity catalog.ProductIdentity) {
		group.Go(func(ctx context.Context) error {
			product, err := b.findOrCreateProduct(ctx, identity)
			if err != nil {
				return err
			}
			mu.Lock()
			products[key] = product
			mu.Unlock()
			return nil
		})
	}

	for _, plan := range plans {
		resolve("plan:"+plan.Name, catalog.PlanIdentity(plan))
	}
	for _, item := range cat.LineItems {
		if item.Type == types.LINE_ITEM_TYPE_FLAG {
			continue
		}
		resolve("line_item:"+item.Name, catalog.LineItemIdentity(item))
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return products, nil
}

func (b *Bootstrapper) findOrCreateProduct(ctx context.Context, identity catalog.ProductIdentity) (*stripe.Product, error) {
	name := identity.Tags[types.MetadataKeyName]
	if cached := b.cache.GetProduct(name); cached != nil {
		return cached, nil
	}

	listed, err := b.gateway.ListProducts(ctx, &stripe.ProductListParams{
		Active: stripe.Bool(true),
	})
	if err != nil {
		return nil, err
	}

	matches := make([]*stripe.Product, 0, 1)
	for _, product := range listed {
		if identity.Tags.Matches(product.Metadata) {
			matches = append(matches, product)
		}
	}
	if len(matches) > 1 {
		return nil, ierr.NewErrorf("Duplicate products (x %d) found for %q", len(matches), name).
			WithHint("Deactivate the extra products in the billing provider dashboard and retry").
			Mark(ierr.ErrAmbiguousRemoteState)
	}

	if len(matches) == 0 {
		params := &stripe.ProductParams{Name: stripe.String(identity.DisplayName)}
		params.Metadata = identity.Tags.Clone()
		created, err := b.gateway.CreateProduct(ctx, params)
		if err != nil {
			return nil, err
		}
		b.logger.Infof("created product %s for %q", created.ID, name)
		return b.cache.SetProduct(name, created), nil
	}

	product := matches[0]
	if product.Name != identity.DisplayName || !metadataEqual(product.Metadata, identity.Tags) {
		params := &stripe.ProductParams{Name: stripe.String(identity.DisplayName)}
		params.Metadata = identity.Tags.Clone()
		updated, err := b.gateway.UpdateProduct(ctx, product.ID, params)
		if err != nil {
			return nil, err
		}
		b.logger.Infof("updated product %s for %q", updated.ID, name)
		product = updated
	}
	return b.cache.SetProduct(name, product), nil
}

// resolvePlanPrices attaches a product and per-currency prices to the plan
// itself and to each of its priced line items.
func (b *Bootstrapper) resolvePlanPrices(ctx context.Context, plan *catalog.Plan, products map[string]*stripe.Product) error {
	planProduct := products["plan:"+plan.Name]
	plan.StripeData = &catalog.StripeData{
		Product: planProduct,
		Prices:  make(map[types.Currency]*stripe.Price),
	}

	price := plan.EffectivePrice()
	for _, currency := range price.Currencies() {
		amount, _ := price.Amount(currency)
		target := targetForPlan(plan, currency, amount)
		resolved, err := b.findOrCreatePrice(ctx, plan.Name, planProduct, currency, target)
		if err != nil {
			return err
		}
		plan.StripeData.Prices[currency] = resolved
	}

	for _, item := range plan.LineItems {
		product := products["line_item:"+item.Name]
		if product == nil {
			continue
		}
		itemPrice := item.Settings.Price()
		if itemPrice == nil {
			continue
		}
		item.StripeData = &catalog.StripeData{
			Product: product,
			Prices:  make(map[types.Currency]*stripe.Price),
		}
		for _, currency := range itemPrice.Currencies() {
			amount, _ := itemPrice.Amount(currency)
			target := targetFor(item, currency, amount)
			resolved, err := b.findOrCreatePrice(ctx, item.ScopeKey(), product, currency, target)
			if err != nil {
				return err
			}
			item.StripeData.Prices[currency] = resolved
		}
	}
	return nil
}

// findOrCreatePrice resolves a single price by scope key and currency.
// Duplicate matches keep the first and deactivate the rest best effort;
// an economically drifted match is deactivated and recreated since the
// provider does not allow price mutation.
func (b *Bootstrapper) findOrCreatePrice(ctx context.Context, scopeKey string, product *stripe.Product, currency types.Currency, target priceTarget) (*stripe.Price, error) {
	uniqueName := scopeKey + ":" + string(currency)
	if cached := b.cache.GetPrice(uniqueName); cached != nil {
		return cached, nil
	}

	listParams := &stripe.PriceListParams{
		Product:  stripe.String(product.ID),
		Currency: stripe.String(string(currency)),
		Active:   stripe.Bool(true),
	}
	listParams.AddExpand("data.tiers")
	listed, err := b.gateway.ListPrices(ctx, listParams)
	if err != nil {
		return nil, err
	}

	matches := make([]*stripe.Price, 0, 1)
	for _, price := range listed {
		if target.metadata.Matches(price.Metadata) {
			matches = append(matches, price)
		}
	}
	if len(matches) > 1 {
		b.logger.Warnf("duplicate prices (x %d) found for %q, deactivating extras", len(matches), uniqueName)
		for _, extra := range matches[1:] {
			if err := b.deactivatePrice(ctx, extra); err != nil {
				b.logger.Warnf("failed to deactivate duplicate price %s: %v", extra.ID, err)
			}
		}
	}

	if len(matches) > 0 {
		existing := matches[0]
		if target.matches(existing) {
			return b.cache.SetPrice(uniqueName, existing), nil
		}
		b.logger.Infof("price %s for %q changed, recreating", existing.ID, uniqueName)
		if err := b.deactivatePrice(ctx, existing); err != nil {
			return nil, err
		}
	}

	created, err := b.gateway.CreatePrice(ctx, target.params(product.ID))
	if err != nil {
		return nil, err
	}
	b.logger.Infof("created price %s for %q", created.ID, uniqueName)
	return b.cache.SetPrice(uniqueName, created), nil
}

func (b *Bootstrapper) deactivatePrice(ctx context.Context, price *stripe.Price) error {
	_, err := b.gateway.UpdatePrice(ctx, price.ID, &stripe.PriceParams{
		Active: stripe.Bool(false),
	})
	return err
}

func metadataEqual(remote map[string]string, tags types.Metadata) bool {
	if len(remote) != len(tags) {
		return false
	}
	return tags.Matches(remote)
}
