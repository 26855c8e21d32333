package adsapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georgeshao/clinic-crm/internal/cache"
	"github.com/georgeshao/clinic-crm/internal/ratelimit"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return New(Config{
		BaseURL:     srv.URL,
		AccessToken: "token",
		AccountID:   "123",
		Limiter:     ratelimit.Config{MinDelay: time.Millisecond, EscalatedDelay: 3 * time.Millisecond},
	}, cache.NewMemory())
}

func TestFetchResource_NotConfigured(t *testing.T) {
	c := New(Config{}, nil)
	assert.False(t, c.Configured())

	_, err := c.FetchResource(context.Background(), "me", nil)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = c.Campaigns(context.Background(), "ALL")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, _, err = c.CostPerLeadByRegion(context.Background(), RangeLast7d)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, _, err = c.AdSetGeoInsights(context.Background(), "c1", RangeLast7d)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestFetchResource_SendsBearerAndCaches(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		assert.Equal(t, "/act_123/campaigns", r.URL.Path)
		fmt.Fprint(w, `{"data":[]}`)
	})

	ctx := context.Background()
	params := url.Values{"b": {"2"}, "a": {"1"}}

	body, err := c.FetchResource(ctx, "act_123/campaigns", params)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[]}`, string(body))

	// same params in a different order hit the cache
	_, err = c.FetchResource(ctx, "act_123/campaigns", url.Values{"a": {"1"}, "b": {"2"}})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	_, err = c.FetchResource(ctx, "act_123/campaigns", url.Values{"a": {"other"}})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchResource_CacheHitSkipsLimiter(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[]}`)
	})
	ctx := context.Background()

	_, err := c.FetchResource(ctx, "x", nil)
	require.NoError(t, err)
	first := c.Limiter().LastRequestAt()

	time.Sleep(5 * time.Millisecond)
	_, err = c.FetchResource(ctx, "x", nil)
	require.NoError(t, err)
	assert.Equal(t, first, c.Limiter().LastRequestAt())
}

func TestFetchResource_ThrottleEscalatesLimiter(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"User request limit reached","type":"OAuthException","code":17}}`)
	})

	_, err := c.FetchResource(context.Background(), "x", nil)
	require.Error(t, err)

	var te *ThrottledError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 17, te.API.Code)
	assert.True(t, c.Limiter().Throttled())
	assert.Equal(t, 3*time.Millisecond, c.Limiter().MinDelay())
	assert.LessOrEqual(t, te.RetryAfter, 3*time.Millisecond)
}

func TestFetchResource_SharedCallOutlivesFirstCaller(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(100 * time.Millisecond)
		fmt.Fprint(w, `{"data":["ok"]}`)
	})

	shortCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	firstErr := make(chan error, 1)
	go func() {
		_, err := c.FetchResource(shortCtx, "x", nil)
		firstErr <- err
	}()

	// let the first caller start the remote call before joining it
	time.Sleep(5 * time.Millisecond)
	body, err := c.FetchResource(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":["ok"]}`, string(body))

	assert.ErrorIs(t, <-firstErr, context.DeadlineExceeded)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchResource_RemoteErrorDoesNotEscalate(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"boom","code":1}}`)
	})

	_, err := c.FetchResource(context.Background(), "x", nil)
	var re *RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusInternalServerError, re.StatusCode)
	assert.False(t, c.Limiter().Throttled())

	// failures are not cached
	_, err = c.FetchResource(context.Background(), "x", nil)
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchResource_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	c := New(Config{BaseURL: srv.URL, AccessToken: "t", AccountID: "1"}, nil)
	_, err := c.FetchResource(context.Background(), "x", nil)

	var re *RemoteError
	require.True(t, errors.As(err, &re))
	assert.NotNil(t, re.Err)
}

func TestCampaigns_StatusFilter(t *testing.T) {
	var gotStatus string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotStatus = r.URL.Query().Get("effective_status")
		fmt.Fprint(w, `{"data":[{"id":"1","name":"Implante","status":"ACTIVE"}]}`)
	})

	campaigns, err := c.Campaigns(context.Background(), "all")
	require.NoError(t, err)
	require.Len(t, campaigns, 1)
	assert.Equal(t, "Implante", campaigns[0].Name)
	assert.Equal(t, `["ACTIVE","PAUSED"]`, gotStatus)
}

func TestEffectiveStatuses(t *testing.T) {
	assert.Equal(t, []string{"ACTIVE"}, EffectiveStatuses("ACTIVE"))
	assert.Equal(t, []string{"PAUSED"}, EffectiveStatuses("PAUSED"))
	assert.Equal(t, []string{"ACTIVE", "PAUSED"}, EffectiveStatuses("ALL"))
	assert.Equal(t, []string{"ACTIVE"}, EffectiveStatuses("ARCHIVED"))
	assert.Equal(t, []string{"ACTIVE"}, EffectiveStatuses(""))
}

func TestCostPerLeadByRegion(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "region", r.URL.Query().Get("breakdowns"))
		fmt.Fprint(w, `{"data":[
			{"campaign_id":"1","campaign_name":"A","spend":"100.50","region":"São Paulo (state)",
			 "actions":[{"action_type":"lead","value":"3"},{"action_type":"offsite_conversion","value":"2"},{"action_type":"link_click","value":"40"}]},
			{"campaign_id":"1","campaign_name":"A","spend":"20","region":"Atlantis","actions":[]}
		]}`)
	})

	_, rows, err := c.CostPerLeadByRegion(context.Background(), RangeLast30d)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, 5, rows[0].Leads)
	assert.InDelta(t, 20.10, rows[0].CostPerLead, 0.0001)
	assert.Equal(t, "São Paulo", rows[0].City)
	assert.Equal(t, "SP", rows[0].State)

	assert.Equal(t, 0, rows[1].Leads)
	assert.Equal(t, 0.0, rows[1].CostPerLead)
	assert.Equal(t, "Atlantis", rows[1].City)
	assert.Equal(t, UnknownStateCode, rows[1].State)
}

func TestAdSetGeoInsights_PartialFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/c1/adsets":
			fmt.Fprint(w, `{"data":[
				{"id":"as1","name":"one","campaign_id":"c1","targeting":{"geo_locations":{"cities":[{"name":"Campinas","region":"São Paulo"}]}}},
				{"id":"as2","name":"two","campaign_id":"c1","targeting":{"geo_locations":{"countries":["BR"]}}},
				{"id":"as3","name":"three","campaign_id":"c1","targeting":{"geo_locations":{"regions":[{"name":"Bahia"}]}}}
			]}`)
		case r.URL.Path == "/as2/insights":
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"error":{"message":"unknown","code":2}}`)
		case strings.HasSuffix(r.URL.Path, "/insights"):
			id := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")[0]
			fmt.Fprintf(w, `{"data":[{"campaign_id":"c1","adset_id":%q,"spend":"10","actions":[{"action_type":"lead","value":"2"}]}]}`, id)
		default:
			http.NotFound(w, r)
		}
	})

	_, rows, err := c.AdSetGeoInsights(context.Background(), "c1", RangeLast7d)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "as1", rows[0].AdSetID)
	assert.Equal(t, "Campinas", rows[0].City)
	assert.Equal(t, "as3", rows[1].AdSetID)
	assert.Equal(t, WholeState, rows[1].City)
	assert.Equal(t, "BA", rows[1].State)
	assert.InDelta(t, 5.0, rows[1].CostPerLead, 0.0001)
}

func TestCampaignInsights(t *testing.T) {
	var query url.Values
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		fmt.Fprint(w, `{"data":[
			{"campaign_id":"1","campaign_name":"Implante","spend":"90","actions":[{"action_type":"lead","value":"3"}]},
			{"campaign_id":"2","campaign_name":"Clareamento","spend":"15.5","actions":[]}
		]}`)
	})
	c.now = func() time.Time { return time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC) }

	r, rows, err := c.CampaignInsights(context.Background(), "paused", RangeYesterday)
	require.NoError(t, err)
	assert.Equal(t, RangeYesterday, r.Preset)
	assert.Equal(t, "campaign", query.Get("level"))
	assert.Equal(t, `{"since":"2024-05-09","until":"2024-05-09"}`, query.Get("time_range"))
	assert.Contains(t, query.Get("filtering"), `["PAUSED"]`)

	require.Len(t, rows, 2)
	assert.Equal(t, 3, rows[0].Leads)
	assert.InDelta(t, 30.0, rows[0].CostPerLead, 0.0001)
	assert.Equal(t, 0.0, rows[1].CostPerLead)
}
