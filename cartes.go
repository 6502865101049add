package goCartes

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strconv"

	"github.com/MrEthical07/goCartes/api"
	"github.com/MrEthical07/goCartes/cache"
	"github.com/MrEthical07/goCartes/permission"
	"golang.org/x/sync/errgroup"
)

// Cache keys of the dashboard reads.
const (
	CacheKeyGlobalStats = "stats_globales"
	CacheKeySiteStats   = "stats_sites"
	CacheKeyTotalStats  = "stats_total"
	CacheKeyCartes      = "cartes_all"
)

// inventoryKeys are dropped after every successful write.
var inventoryKeys = []string{CacheKeyGlobalStats, CacheKeySiteStats, CacheKeyTotalStats, CacheKeyCartes}

const (
	defaultPage  = 1
	defaultLimit = 100
)

/*
====================================
STATISTICS
====================================
*/

// GlobalStatistics returns inventory-wide counts, cached for Config.Cache.TTL.
func (c *Client) GlobalStatistics(ctx context.Context) (GlobalStatistics, error) {
	return cachedRead(ctx, c, CacheKeyGlobalStats, func(ctx context.Context) (GlobalStatistics, error) {
		var out GlobalStatistics
		_, err := c.api.Get(ctx, "/statistiques/globales", nil, &out)
		return out, err
	})
}

// SiteStatistics returns per-site counts, cached for Config.Cache.TTL. The slice is
// the caller's own copy.
func (c *Client) SiteStatistics(ctx context.Context) ([]SiteStatistics, error) {
	sites, err := cachedRead(ctx, c, CacheKeySiteStats, func(ctx context.Context) ([]SiteStatistics, error) {
		var out []SiteStatistics
		_, err := c.api.Get(ctx, "/statistiques/sites", nil, &out)
		return out, err
	})
	return slices.Clone(sites), err
}

// TotalStatistics returns the inventory summary, cached for Config.Cache.TTL.
func (c *Client) TotalStatistics(ctx context.Context) (TotalStatistics, error) {
	return cachedRead(ctx, c, CacheKeyTotalStats, func(ctx context.Context) (TotalStatistics, error) {
		var out TotalStatistics
		_, err := c.api.Get(ctx, "/cartes/statistiques/total", nil, &out)
		return out, err
	})
}

// RefreshStatistics reads the global and per-site statistics concurrently. Either
// failure fails the whole call.
func (c *Client) RefreshStatistics(ctx context.Context) (Statistics, error) {
	var out Statistics
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		global, err := c.GlobalStatistics(gctx)
		out.Global = global
		return err
	})
	g.Go(func() error {
		sites, err := c.SiteStatistics(gctx)
		out.Sites = sites
		return err
	})
	if err := g.Wait(); err != nil {
		return Statistics{}, err
	}
	return out, nil
}

// ForceRefreshStatistics asks the backend to recompute its statistics, waits
// Config.Statistics.SettleDelay and re-reads them. When the recomputation request
// fails, the current statistics are returned instead.
func (c *Client) ForceRefreshStatistics(ctx context.Context) (Statistics, error) {
	if err := c.require(ctx, permission.StatsRefresh); err != nil {
		return Statistics{}, err
	}

	err := api.Retry(ctx, c.retryPolicy(), func(ctx context.Context) error {
		_, err := c.api.Post(ctx, "/statistiques/refresh", nil, nil)
		return err
	})
	if err != nil {
		if KindOf(err) == api.KindSessionExpired || KindOf(err) == api.KindCanceled {
			return Statistics{}, err
		}
		c.logger.Warn().Err(err).Msg("statistics recomputation failed; reading current values")
		c.cache.Invalidate(CacheKeyGlobalStats, CacheKeySiteStats, CacheKeyTotalStats)
		return c.RefreshStatistics(ctx)
	}

	if err := c.sleep(ctx, c.config.Statistics.SettleDelay); err != nil {
		return Statistics{}, api.CanceledError(err)
	}
	c.cache.Invalidate(CacheKeyGlobalStats, CacheKeySiteStats, CacheKeyTotalStats)
	return c.RefreshStatistics(ctx)
}

/*
====================================
CARTES
====================================
*/

// ListCartes returns every carte, cached for Config.Cache.TTL. The slice is the
// caller's own copy.
func (c *Client) ListCartes(ctx context.Context) ([]Carte, error) {
	all, err := cachedRead(ctx, c, CacheKeyCartes, func(ctx context.Context) ([]Carte, error) {
		var out struct {
			Cartes []Carte `json:"cartes"`
		}
		_, err := c.api.Get(ctx, "/cartes", nil, &out)
		return out.Cartes, err
	})
	return cloneCartes(all), err
}

func cloneCartes(in []Carte) []Carte {
	if in == nil {
		return nil
	}
	out := make([]Carte, len(in))
	for i, carte := range in {
		carte.Extra = maps.Clone(carte.Extra)
		out[i] = carte
	}
	return out
}

// cachedRead reads through the client cache. A caller whose own ctx ends while
// waiting on a shared fetch gets the same error kinds as an uncached request.
func cachedRead[T any](ctx context.Context, c *Client, key string, fetch func(context.Context) (T, error)) (T, error) {
	v, err := cache.Get(ctx, c.cache, key, fetch)
	if err == nil || api.KindOf(err) != "" {
		return v, err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return v, api.CanceledError(err)
	case errors.Is(err, context.DeadlineExceeded):
		return v, api.TimeoutError(err)
	}
	return v, err
}

// ListCartesPage returns one page of the listing. Non-positive page and limit fall
// back to 1 and 100.
func (c *Client) ListCartesPage(ctx context.Context, page, limit int) (CartesPage, error) {
	if page < 1 {
		page = defaultPage
	}
	if limit < 1 {
		limit = defaultLimit
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	var out CartesPage
	if _, err := c.api.Get(ctx, "/cartes", q, &out); err != nil {
		return CartesPage{}, err
	}
	return out, nil
}

// SearchCartes queries the inventory. Search results are never cached.
func (c *Client) SearchCartes(ctx context.Context, criteria SearchCriteria) (SearchResult, error) {
	var out SearchResult
	if _, err := c.api.Get(ctx, "/inventaire/recherche", criteria.Query(), &out); err != nil {
		return SearchResult{}, err
	}
	return out, nil
}

// CreateCarte stores a new carte and returns its id.
func (c *Client) CreateCarte(ctx context.Context, carte Carte) (int, error) {
	if err := c.require(ctx, permission.CartesCreate); err != nil {
		return 0, err
	}
	if carte.LastName == "" || carte.FirstNames == "" {
		return 0, api.ValidationError("Nom et prénoms requis")
	}
	carte.ID = 0

	var out struct {
		ID int `json:"id"`
	}
	resp, err := c.api.Post(ctx, "/cartes", carte, &out)
	if err != nil {
		return 0, err
	}
	if resp.NotFound {
		return 0, api.NewError(api.KindServer, "Création impossible", resp.Status, nil)
	}
	c.invalidateInventory()
	return out.ID, nil
}

type batchUpdate struct {
	Cartes []Carte `json:"cartes"`
	Role   Role    `json:"role"`
}

// UpdateCartes writes a batch of modified cartes. The backend checks the submitted
// role against the fields each role may change.
func (c *Client) UpdateCartes(ctx context.Context, cartes []Carte) error {
	if err := c.require(ctx, permission.CartesUpdate); err != nil {
		return err
	}
	if len(cartes) == 0 {
		return nil
	}
	for i, carte := range cartes {
		if carte.ID == 0 {
			return api.ValidationError(fmt.Sprintf("Carte %d sans identifiant", i+1))
		}
	}
	user := c.CurrentUser()
	if user == nil {
		return api.SessionExpiredError()
	}

	if _, err := c.api.Put(ctx, "/cartes/batch", batchUpdate{Cartes: cartes, Role: user.Role}, nil); err != nil {
		return err
	}
	c.invalidateInventory()
	c.logger.Debug().Int("count", len(cartes)).Msg("cartes updated")
	return nil
}

func (c *Client) DeleteCarte(ctx context.Context, id int) error {
	if err := c.require(ctx, permission.CartesDelete); err != nil {
		return err
	}
	if id <= 0 {
		return api.ValidationError("Identifiant de carte invalide")
	}
	if _, err := c.api.Delete(ctx, "/cartes/"+strconv.Itoa(id), nil); err != nil {
		return err
	}
	c.invalidateInventory()
	return nil
}

// InvalidateCache drops every cached read.
func (c *Client) InvalidateCache() {
	c.cache.InvalidateAll()
}

func (c *Client) invalidateInventory() {
	c.cache.Invalidate(inventoryKeys...)
}
