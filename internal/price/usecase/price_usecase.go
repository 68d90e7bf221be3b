package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"smartshop-backend/internal/price/domain"
	"smartshop-backend/internal/price/repository"
	"smartshop-backend/pkg/apperror"
	"smartshop-backend/pkg/chroma"
	"smartshop-backend/pkg/fuzzy"
	"smartshop-backend/pkg/logger"
	"smartshop-backend/pkg/platform"

	"github.com/google/uuid"
)

const (
	quoteLimit         = 10
	refreshConcurrency = 4
)

var ErrAllPlatformsFailed = errors.New("all platforms failed")

type priceUsecase struct {
	repo            repository.TrackingRepository
	searchers       []platform.Searcher
	notifier        Notifier
	indexer         ListingIndexer
	platformTimeout time.Duration
	now             func() time.Time
}

// NewPriceUsecase wires the engine. Searchers are queried concurrently; their
// order is the tie-break order. indexer may be nil.
func NewPriceUsecase(repo repository.TrackingRepository, searchers []platform.Searcher, notifier Notifier, indexer ListingIndexer, platformTimeout time.Duration) PriceUsecase {
	return &priceUsecase{
		repo:            repo,
		searchers:       searchers,
		notifier:        notifier,
		indexer:         indexer,
		platformTimeout: platformTimeout,
		now:             time.Now,
	}
}

func (u *priceUsecase) StartTracking(ctx context.Context, userID, productName string, targetPrice float64) (*domain.TrackedProduct, error) {
	name := domain.NormalizeName(productName)
	if name == "" {
		return nil, apperror.Validation("Please tell me which product to track.")
	}
	if targetPrice <= 0 {
		return nil, apperror.Validation("Target price must be greater than 0.")
	}

	product, err := u.repo.Upsert(userID, name, targetPrice)
	if err != nil {
		return nil, apperror.Store(err)
	}

	// The entry exists from here on; a failed first round is retried by the
	// scheduled refresh.
	updated, err := u.AggregatePrices(ctx, product)
	if err != nil {
		lg := logger.Component("price")
		lg.Warn().Err(err).Str("product_id", product.ID).Msg("initial aggregation failed")
		return product, nil
	}
	if _, err := u.EvaluateThreshold(ctx, updated); err != nil {
		lg := logger.Component("price")
		lg.Warn().Err(err).Str("product_id", product.ID).Msg("initial threshold evaluation failed")
	}
	return updated, nil
}

type platformResult struct {
	listings []platform.Listing
	err      error
}

// searchAll queries every platform concurrently. Each call has its own
// timeout and one retry on timeout; results keep registration order.
func (u *priceUsecase) searchAll(ctx context.Context, name string) []platformResult {
	results := make([]platformResult, len(u.searchers))
	var wg sync.WaitGroup
	for i, s := range u.searchers {
		wg.Add(1)
		go func(i int, s platform.Searcher) {
			defer wg.Done()
			var listings []platform.Listing
			err := apperror.RetryOnTimeout(ctx, "search "+s.Name(), u.platformTimeout, func(ctx context.Context) error {
				var err error
				listings, err = s.Search(ctx, name)
				return err
			})
			results[i] = platformResult{listings: listings, err: err}
		}(i, s)
	}
	wg.Wait()
	return results
}

func (u *priceUsecase) AggregatePrices(ctx context.Context, product *domain.TrackedProduct) (*domain.TrackedProduct, error) {
	log := logger.Component("price").With().Str("product_id", product.ID).Logger()
	results := u.searchAll(ctx, product.ProductName)

	var (
		observations []*domain.PriceObservation
		winner       *platform.Listing
		responded    int
	)
	observedAt := u.now()
	for i, res := range results {
		if res.err != nil {
			log.Warn().Err(res.err).Str("platform", u.searchers[i].Name()).Msg("platform excluded from round")
			continue
		}
		responded++

		idx := domain.Cheapest(product.ProductName, res.listings)
		if idx < 0 {
			continue
		}
		best := res.listings[idx]
		observations = append(observations, &domain.PriceObservation{
			ID:               uuid.New().String(),
			TrackedProductID: product.ID,
			Platform:         best.Platform,
			Vendor:           best.Vendor,
			Title:            best.Title,
			Price:            best.Price,
			URL:              best.URL,
			ObservedAt:       observedAt,
		})
		// strict comparison keeps the earlier platform on ties
		if winner == nil || best.Price < winner.Price {
			winner = &best
		}
	}

	if responded == 0 && len(u.searchers) > 0 {
		return nil, apperror.Upstream("price aggregation", ErrAllPlatformsFailed)
	}
	if winner == nil {
		log.Debug().Msg("no relevant listings in round")
		return product, nil
	}

	update := domain.RoundUpdate{ProductID: product.ID, Observations: observations}
	if product.CurrentLowestPrice == nil || *product.CurrentLowestPrice != winner.Price {
		update.Lowest = &domain.LowestPrice{Price: winner.Price, Platform: winner.Platform, URL: winner.URL}
	}
	if product.CanonicalName == "" {
		update.CanonicalName = winner.Title
	}

	if err := u.repo.RecordRound(update); err != nil {
		return nil, apperror.Store(err)
	}

	updated := *product
	if update.Lowest != nil {
		price := update.Lowest.Price
		updated.CurrentLowestPrice = &price
		updated.LowestPricePlatform = update.Lowest.Platform
		updated.LowestPriceURL = update.Lowest.URL
	}
	if update.CanonicalName != "" {
		updated.CanonicalName = update.CanonicalName
	}

	u.index(ctx, &updated, observations)
	return &updated, nil
}

func (u *priceUsecase) index(ctx context.Context, product *domain.TrackedProduct, observations []*domain.PriceObservation) {
	if u.indexer == nil {
		return
	}
	for _, o := range observations {
		err := u.indexer.Upsert(ctx, chroma.ListingDocument{
			ObservationID: o.ID,
			UserID:        product.UserID,
			ProductID:     product.ID,
			ProductName:   product.ProductName,
			Platform:      o.Platform,
			Title:         o.Title,
			Price:         o.Price,
		})
		if err != nil {
			lg := logger.Component("price")
			lg.Debug().Err(err).Str("observation_id", o.ID).Msg("listing not indexed")
			return
		}
	}
}

func (u *priceUsecase) EvaluateThreshold(ctx context.Context, product *domain.TrackedProduct) (bool, error) {
	if product.CurrentLowestPrice == nil {
		return false, nil
	}
	price := *product.CurrentLowestPrice

	if price > product.TargetPrice {
		if product.NotificationSent {
			if _, err := u.repo.ResetNotified(product.ID); err != nil {
				return false, apperror.Store(err)
			}
			product.NotificationSent = false
		}
		return false, nil
	}

	if product.NotificationSent {
		return false, nil
	}
	changed, err := u.repo.MarkNotified(product.ID)
	if err != nil {
		return false, apperror.Store(err)
	}
	product.NotificationSent = true
	if !changed {
		// another round already claimed this crossing
		return false, nil
	}

	event := domain.PriceDropEvent{
		UserID:      product.UserID,
		ProductID:   product.ID,
		ProductName: product.ProductName,
		TargetPrice: product.TargetPrice,
		Price:       price,
		Platform:    product.LowestPricePlatform,
		URL:         product.LowestPriceURL,
	}
	if u.notifier != nil {
		if err := u.notifier.NotifyPriceDrop(ctx, event); err != nil {
			lg := logger.Component("price")
			lg.Warn().Err(err).Str("product_id", product.ID).Msg("price drop notification failed")
		}
	}
	return true, nil
}

func (u *priceUsecase) ListTracking(ctx context.Context, userID string) ([]*domain.TrackedProduct, error) {
	products, err := u.repo.ListActiveByUser(userID)
	if err != nil {
		return nil, apperror.Store(err)
	}
	return products, nil
}

// StopTracking deactivates the entry named productName, falling back to the
// closest active name when there is no exact match.
func (u *priceUsecase) StopTracking(ctx context.Context, userID, productName string) (*domain.TrackedProduct, error) {
	name := domain.NormalizeName(productName)
	if name == "" {
		return nil, apperror.Validation("Please tell me which product to stop tracking.")
	}

	products, err := u.repo.ListActiveByUser(userID)
	if err != nil {
		return nil, apperror.Store(err)
	}

	target := -1
	key := domain.NameKey(name)
	names := make([]string, len(products))
	for i, p := range products {
		names[i] = p.ProductName
		if domain.NameKey(p.ProductName) == key {
			target = i
		}
	}
	if target < 0 {
		target = fuzzy.Closest(name, names)
	}
	if target < 0 {
		return nil, apperror.Validationf("You are not tracking \"%s\".", name)
	}

	product := products[target]
	if _, err := u.repo.Deactivate(product.ID); err != nil {
		return nil, apperror.Store(err)
	}
	product.Active = false
	return product, nil
}

func (u *priceUsecase) StopAll(ctx context.Context, userID string) (int64, error) {
	n, err := u.repo.DeactivateAll(userID)
	if err != nil {
		return 0, apperror.Store(err)
	}
	return n, nil
}

// QueryPrices is a read-only quote: the cheapest relevant listings across
// all responding platforms.
func (u *priceUsecase) QueryPrices(ctx context.Context, productName string) ([]platform.Listing, error) {
	name := domain.NormalizeName(productName)
	if name == "" {
		return nil, apperror.Validation("Please tell me which product to look up.")
	}

	var (
		listings  []platform.Listing
		responded int
	)
	for _, res := range u.searchAll(ctx, name) {
		if res.err != nil {
			continue
		}
		responded++
		for _, l := range res.listings {
			if domain.IsRelevant(name, l) {
				listings = append(listings, l)
			}
		}
	}
	if responded == 0 && len(u.searchers) > 0 {
		return nil, apperror.Upstream("price query", ErrAllPlatformsFailed)
	}

	sort.SliceStable(listings, func(i, j int) bool { return listings[i].Price < listings[j].Price })
	if len(listings) > quoteLimit {
		listings = listings[:quoteLimit]
	}
	return listings, nil
}

// RefreshAll runs one aggregation round per active entry with bounded
// concurrency.
func (u *priceUsecase) RefreshAll(ctx context.Context) (RefreshSummary, error) {
	products, err := u.repo.ListAllActive()
	if err != nil {
		return RefreshSummary{}, apperror.Store(err)
	}

	var (
		mu      sync.Mutex
		summary = RefreshSummary{Products: len(products)}
		wg      sync.WaitGroup
		sem     = make(chan struct{}, refreshConcurrency)
	)
	for _, p := range products {
		wg.Add(1)
		sem <- struct{}{}
		go func(p *domain.TrackedProduct) {
			defer wg.Done()
			defer func() { <-sem }()

			updated, err := u.AggregatePrices(ctx, p)
			if err != nil {
				mu.Lock()
				summary.Failed++
				mu.Unlock()
				return
			}
			notified, err := u.EvaluateThreshold(ctx, updated)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				return
			}
			summary.Updated++
			if notified {
				summary.Notified++
			}
		}(p)
	}
	wg.Wait()

	lg := logger.Component("price")
	lg.Info().
		Int("products", summary.Products).
		Int("updated", summary.Updated).
		Int("failed", summary.Failed).
		Int("notified", summary.Notified).
		Msg("price refresh finished")
	return summary, nil
}
