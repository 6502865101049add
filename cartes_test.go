package goCartes

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"testing"
	"time"

	"github.com/MrEthical07/goCartes/api"
	"github.com/MrEthical07/goCartes/cache"
	"github.com/MrEthical07/goCartes/internal/stubapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatisticsAreCachedUntilAWrite(t *testing.T) {
	stub := newStub(t)
	h := newHarness(t, stub)
	h.login(t, "alice")
	ctx := context.Background()

	global, err := h.client.GlobalStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, GlobalStatistics{Total: 3, Withdrawn: 1, Remaining: 2}, global)
	assert.Equal(t, 33, global.WithdrawalPercent())

	_, err = h.client.GlobalStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stub.Hits(stubapi.RouteGlobalStats))

	carte := Carte{ID: 1, LastName: "KOFFI", FirstNames: "Jean", Delivery: "OUI"}
	require.NoError(t, h.client.UpdateCartes(ctx, []Carte{carte}))

	global, err = h.client.GlobalStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stub.Hits(stubapi.RouteGlobalStats))
	assert.Equal(t, 2, global.Withdrawn)

	snap := h.client.MetricsSnapshot()
	assert.Equal(t, uint64(1), snap.Counters[MetricCacheHit])
	assert.Equal(t, uint64(2), snap.Counters[MetricCacheMiss])
}

func TestStatisticsExpireAfterTTL(t *testing.T) {
	stub := newStub(t)
	h := newHarness(t, stub)
	h.login(t, "alice")
	ctx := context.Background()

	_, err := h.client.SiteStatistics(ctx)
	require.NoError(t, err)

	h.clock.Advance(4 * time.Minute)
	_, err = h.client.SiteStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stub.Hits(stubapi.RouteSiteStats))

	h.clock.Advance(time.Minute)
	sites, err := h.client.SiteStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stub.Hits(stubapi.RouteSiteStats))

	require.Len(t, sites, 2)
	assert.Equal(t, "Cocody", sites[0].Site)
	assert.Equal(t, 50, sites[0].WithdrawalPercent())
	assert.Equal(t, "Yopougon", sites[1].Site)
	assert.Equal(t, 0, sites[1].WithdrawalPercent())
}

func TestCachedReadsReturnPrivateCopies(t *testing.T) {
	stub := newStub(t)
	h := newHarness(t, stub)
	h.login(t, "alice")
	ctx := context.Background()

	sites, err := h.client.SiteStatistics(ctx)
	require.NoError(t, err)
	require.Len(t, sites, 2)
	sites[0].Site = "changed"
	slices.Reverse(sites)

	sites, err = h.client.SiteStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Cocody", sites[0].Site)
	assert.Equal(t, "Yopougon", sites[1].Site)

	all, err := h.client.ListCartes(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	all[0].LastName = "changed"
	all[2].Extra["NUMERO DE LOT"] = json.RawMessage(`"X"`)

	all, err = h.client.ListCartes(ctx)
	require.NoError(t, err)
	assert.Equal(t, "KOFFI", all[0].LastName)
	assert.JSONEq(t, `"L-17"`, string(all[2].Extra["NUMERO DE LOT"]))

	assert.Equal(t, 1, stub.Hits(stubapi.RouteSiteStats))
	assert.Equal(t, 1, stub.Hits(stubapi.RouteCartesList))
}

func TestCachedReadMapsCallerContextErrors(t *testing.T) {
	c := &Client{cache: cache.New(cache.Config{})}
	release := make(chan struct{})
	defer close(release)
	fetch := func(context.Context) (int, error) {
		<-release
		return 1, nil
	}

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := cachedRead(canceled, c, "a", fetch)
	assert.Equal(t, api.KindCanceled, KindOf(err))
	assert.ErrorIs(t, err, context.Canceled)

	expired, cancelExpired := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancelExpired()
	_, err = cachedRead(expired, c, "b", fetch)
	assert.Equal(t, api.KindTimeout, KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoginAndLogoutDropCachedReads(t *testing.T) {
	stub := newStub(t)
	h := newHarness(t, stub)
	h.login(t, "alice")
	ctx := context.Background()

	_, err := h.client.GlobalStatistics(ctx)
	require.NoError(t, err)
	require.NoError(t, h.client.Logout(ctx))
	h.login(t, "bob")

	_, err = h.client.GlobalStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stub.Hits(stubapi.RouteGlobalStats))
}

func TestRefreshStatisticsReadsBoth(t *testing.T) {
	stub := newStub(t)
	h := newHarness(t, stub)
	h.login(t, "bob")

	stats, err := h.client.RefreshStatistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Global.Total)
	assert.Len(t, stats.Sites, 2)
}

func TestRefreshStatisticsFailsWhenEitherReadFails(t *testing.T) {
	stub := newStub(t)
	h := newHarness(t, stub)
	h.login(t, "bob")

	stub.FailNext(stubapi.RouteSiteStats, http.StatusInternalServerError)
	_, err := h.client.RefreshStatistics(context.Background())
	assert.ErrorIs(t, err, ErrServer)
}

func TestForceRefreshRetriesThenSettles(t *testing.T) {
	stub := newStub(t)
	h := newHarness(t, stub)
	h.login(t, "alice")
	ctx := context.Background()

	_, err := h.client.GlobalStatistics(ctx)
	require.NoError(t, err)

	stub.FailNext(stubapi.RouteStatsRefresh, http.StatusServiceUnavailable, http.StatusServiceUnavailable)
	stats, err := h.client.ForceRefreshStatistics(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, stub.Hits(stubapi.RouteStatsRefresh))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, time.Second}, h.sleeps.Delays())
	assert.Equal(t, 2, stub.Hits(stubapi.RouteGlobalStats), "cached value is re-read after the settle delay")
	assert.Equal(t, 3, stats.Global.Total)
	assert.Equal(t, uint64(2), h.client.MetricsSnapshot().Counters[MetricRetry])
}

func TestForceRefreshFallsBackToCurrentValues(t *testing.T) {
	stub := newStub(t)
	h := newHarness(t, stub)
	h.login(t, "alice")

	stub.FailNext(stubapi.RouteStatsRefresh,
		http.StatusServiceUnavailable, http.StatusServiceUnavailable, http.StatusServiceUnavailable)
	stats, err := h.client.ForceRefreshStatistics(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, stub.Hits(stubapi.RouteStatsRefresh))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, h.sleeps.Delays())
	assert.Equal(t, 3, stats.Global.Total)
}

func TestForceRefreshDoesNotRetryForbidden(t *testing.T) {
	stub := newStub(t)
	h := newHarness(t, stub)
	h.login(t, "dave")

	stub.FailNext(stubapi.RouteStatsRefresh, http.StatusForbidden)
	_, err := h.client.ForceRefreshStatistics(context.Background())
	require.NoError(t, err, "falls back to the current values")
	assert.Equal(t, 1, stub.Hits(stubapi.RouteStatsRefresh))
	assert.Empty(t, h.sleeps.Delays())
	assert.Len(t, h.events.Of(EventPermissionDenied), 1)
	assert.True(t, h.client.IsAuthenticated())
}

func TestForceRefreshRequiresPermission(t *testing.T) {
	stub := newStub(t)
	h := newHarness(t, stub)
	h.login(t, "bob")

	_, err := h.client.ForceRefreshStatistics(context.Background())
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Zero(t, stub.Hits(stubapi.RouteStatsRefresh))
}

func TestNotFoundIsSoftSuccess(t *testing.T) {
	stub := newStub(t)
	h := newHarness(t, stub)
	h.login(t, "alice")

	stub.FailNext(stubapi.RouteTotalStats, http.StatusNotFound)
	total, err := h.client.TotalStatistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TotalStatistics{}, total)
	assert.Zero(t, h.client.MetricsSnapshot().Counters[MetricRequestFailure])
}

func TestTotalStatistics(t *testing.T) {
	stub := newStub(t)
	h := newHarness(t, stub)
	h.login(t, "carol")

	total, err := h.client.TotalStatistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, total.Total)
	assert.Equal(t, 2, total.Available)
	assert.Equal(t, map[string]int{"Cocody": 2, "Yopougon": 1}, total.BySite)
}

func TestListCreateAndSearchCartes(t *testing.T) {
	stub := newStub(t)
	h := newHarness(t, stub)
	h.login(t, "carol")
	ctx := context.Background()

	all, err := h.client.ListCartes(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 1, all[0].ID)
	assert.Equal(t, "KOFFI", all[0].LastName)
	assert.True(t, all[1].Delivered())

	id, err := h.client.CreateCarte(ctx, Carte{LastName: "BAMBA", FirstNames: "Fatou", WithdrawalSite: "Cocody"})
	require.NoError(t, err)
	assert.Equal(t, 4, id)
	assert.Equal(t, 4, stub.Count())

	all, err = h.client.ListCartes(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, 2, stub.Hits(stubapi.RouteCartesList))

	found, err := h.client.SearchCartes(ctx, SearchCriteria{WithdrawalSite: "cocody"})
	require.NoError(t, err)
	assert.Equal(t, 3, found.Total)
	require.Len(t, found.Cartes, 3)
	assert.Equal(t, "BAMBA", found.Cartes[2].LastName)

	_, err = h.client.SearchCartes(ctx, SearchCriteria{WithdrawalSite: "cocody"})
	require.NoError(t, err)
	assert.Equal(t, 2, stub.Hits(stubapi.RouteSearch), "search is never cached")
}

func TestListCartesPageDefaults(t *testing.T) {
	stub := newStub(t)
	h := newHarness(t, stub)
	h.login(t, "bob")

	page, err := h.client.ListCartesPage(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 100, page.Limit)
	assert.Equal(t, 3, page.Total)

	page, err = h.client.ListCartesPage(context.Background(), 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Cartes, 1)
	assert.Equal(t, 3, page.Cartes[0].ID)
}

func TestCreateCarteValidatesLocally(t *testing.T) {
	stub := newStub(t)
	h := newHarness(t, stub)
	h.login(t, "alice")

	_, err := h.client.CreateCarte(context.Background(), Carte{LastName: "SEUL"})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, stub.Hits(stubapi.RouteCartesCreate))
}

func TestUpdateCartesKeepsUnknownColumns(t *testing.T) {
	stub := newStub(t)
	h := newHarness(t, stub)
	h.login(t, "alice")
	ctx := context.Background()

	all, err := h.client.ListCartes(ctx)
	require.NoError(t, err)
	carte := all[2]
	require.Contains(t, carte.Extra, "NUMERO DE LOT")

	carte.Storage = "B2"
	require.NoError(t, h.client.UpdateCartes(ctx, []Carte{carte}))

	stored, ok := stub.Carte(3)
	require.True(t, ok)
	assert.Equal(t, "B2", stored[ColumnStorage])
	assert.Equal(t, "L-17", stored["NUMERO DE LOT"])
}

func TestUpdateCartesSendsRole(t *testing.T) {
	stub := newStub(t)
	h := newHarness(t, stub)
	h.login(t, "bob")

	carte := Carte{ID: 1, LastName: "KOFFI", FirstNames: "Jean", Storage: "Z9", Delivery: "OUI"}
	require.NoError(t, h.client.UpdateCartes(context.Background(), []Carte{carte}))

	stored, ok := stub.Carte(1)
	require.True(t, ok)
	assert.Equal(t, "OUI", stored[ColumnDelivery])
	assert.Equal(t, "A1", stored[ColumnStorage], "operators cannot move cards")
}

func TestUpdateCartesRejectsMissingID(t *testing.T) {
	stub := newStub(t)
	h := newHarness(t, stub)
	h.login(t, "alice")

	err := h.client.UpdateCartes(context.Background(), []Carte{{LastName: "X", FirstNames: "Y"}})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, stub.Hits(stubapi.RouteCartesBatch))

	require.NoError(t, h.client.UpdateCartes(context.Background(), nil))
	assert.Zero(t, stub.Hits(stubapi.RouteCartesBatch))
}

func TestDeleteCarte(t *testing.T) {
	stub := newStub(t)
	h := newHarness(t, stub)
	h.login(t, "dave")

	require.NoError(t, h.client.DeleteCarte(context.Background(), 2))
	assert.Equal(t, 2, stub.Count())

	err := h.client.DeleteCarte(context.Background(), 0)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDeleteCarteDeniedLocally(t *testing.T) {
	stub := newStub(t)
	h := newHarness(t, stub)
	h.login(t, "bob")

	err := h.client.DeleteCarte(context.Background(), 1)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Zero(t, stub.Hits(stubapi.RouteCartesDelete))

	denied := h.events.Of(EventPermissionDenied)
	require.Len(t, denied, 1)
	assert.Equal(t, "bob", denied[0].User.Username)
	assert.Equal(t, uint64(1), h.client.MetricsSnapshot().Counters[MetricPermissionDenied])
}

func TestForbiddenKeepsSession(t *testing.T) {
	stub := newStub(t)
	h := newHarness(t, stub)
	h.login(t, "alice")

	stub.FailNext(stubapi.RouteCartesDelete, http.StatusForbidden)
	err := h.client.DeleteCarte(context.Background(), 1)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.True(t, h.client.IsAuthenticated())
	assert.Len(t, h.events.Of(EventPermissionDenied), 1)
	assert.Empty(t, h.events.Of(EventSessionExpired))
}

func TestCallsWithoutSessionFailFast(t *testing.T) {
	stub := newStub(t)
	h := newHarness(t, stub)

	_, err := h.client.CreateCarte(context.Background(), Carte{LastName: "A", FirstNames: "B"})
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Zero(t, stub.Hits(stubapi.RouteCartesCreate))
}
