package adsapi

import (
	"context"
	"fmt"
	"log"
	"net/url"

	"golang.org/x/sync/errgroup"

	"github.com/georgeshao/clinic-crm/pkg/types"
)

const (
	WholeState   = "Whole state"
	WholeCountry = "Whole country"
)

type AdSet struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	CampaignID string    `json:"campaign_id"`
	Targeting  Targeting `json:"targeting"`
}

type Targeting struct {
	GeoLocations GeoLocations `json:"geo_locations"`
}

type GeoLocations struct {
	Countries []string    `json:"countries"`
	Regions   []GeoRegion `json:"regions"`
	Cities    []GeoCity   `json:"cities"`
}

type GeoRegion struct {
	Key     string `json:"key"`
	Name    string `json:"name"`
	Country string `json:"country"`
}

type GeoCity struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Region   string `json:"region"`
	RegionID string `json:"region_id"`
	Country  string `json:"country"`
}

// ExpandGeo attributes an ad set's metrics to the most specific targeting
// level present: one row per city, else one per region, else a single
// country row. Each row carries the ad set's full metrics.
func ExpandGeo(base types.InsightRow, geo GeoLocations, defaultCountry string) []types.InsightRow {
	country := defaultCountry
	if len(geo.Countries) > 0 && geo.Countries[0] != "" {
		country = geo.Countries[0]
	}

	switch {
	case len(geo.Cities) > 0:
		rows := make([]types.InsightRow, 0, len(geo.Cities))
		for _, city := range geo.Cities {
			row := base
			row.Country = firstNonEmpty(city.Country, country)
			row.Region = city.Region
			row.State = StateCode(city.Region)
			row.City = city.Name
			row.Level = types.GeoLevelCity
			rows = append(rows, row)
		}
		return rows

	case len(geo.Regions) > 0:
		rows := make([]types.InsightRow, 0, len(geo.Regions))
		for _, region := range geo.Regions {
			row := base
			row.Country = firstNonEmpty(region.Country, country)
			row.Region = region.Name
			row.State = StateCode(region.Name)
			row.City = WholeState
			row.Level = types.GeoLevelRegion
			rows = append(rows, row)
		}
		return rows

	default:
		row := base
		row.Country = country
		row.City = WholeCountry
		row.Level = types.GeoLevelCountry
		return []types.InsightRow{row}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// AdSets lists a campaign's ad sets with their targeting.
func (c *Client) AdSets(ctx context.Context, campaignID string) ([]AdSet, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	params := url.Values{}
	params.Set("fields", "id,name,status,campaign_id,targeting")
	params.Set("limit", "200")

	adSets, err := fetchList[AdSet](ctx, c, campaignID+"/adsets", params, adSetTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to list ad sets: %w", err)
	}
	return adSets, nil
}

// AdSetGeoInsights fetches insights for every ad set of a campaign and
// expands them by targeting location. An ad set whose insight call fails is
// logged and left out; the call as a whole still succeeds.
func (c *Client) AdSetGeoInsights(ctx context.Context, campaignID, preset string) (Range, []types.InsightRow, error) {
	r := ResolveRange(preset, c.now())
	if !c.Configured() {
		return r, nil, ErrNotConfigured
	}

	adSets, err := c.AdSets(ctx, campaignID)
	if err != nil {
		return r, nil, err
	}

	results := make([][]types.InsightRow, len(adSets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.MaxWorkers)

	for i, adSet := range adSets {
		i, adSet := i, adSet
		g.Go(func() error {
			base, err := c.adSetInsight(gctx, adSet, r)
			if err != nil {
				log.Printf("[ads] Insights for ad set %s (%s) failed, skipping: %v", adSet.ID, adSet.Name, err)
				return nil
			}
			results[i] = ExpandGeo(base, adSet.Targeting.GeoLocations, c.config.CountryCode)
			return nil
		})
	}
	_ = g.Wait()

	var rows []types.InsightRow
	for _, rs := range results {
		rows = append(rows, rs...)
	}
	return r, rows, nil
}

func (c *Client) adSetInsight(ctx context.Context, adSet AdSet, r Range) (types.InsightRow, error) {
	params := url.Values{}
	params.Set("fields", "campaign_id,campaign_name,adset_id,adset_name,spend,actions")
	params.Set("time_range", r.TimeRangeParam())

	raw, err := fetchList[insight](ctx, c, adSet.ID+"/insights", params, c.config.CacheTTL)
	if err != nil {
		return types.InsightRow{}, err
	}

	// No rows means the ad set did not deliver in the range.
	row := types.InsightRow{
		CampaignID: adSet.CampaignID,
		AdSetID:    adSet.ID,
		AdSetName:  adSet.Name,
	}
	if len(raw) > 0 {
		row = raw[0].toRow()
		if row.AdSetID == "" {
			row.AdSetID = adSet.ID
		}
		if row.AdSetName == "" {
			row.AdSetName = adSet.Name
		}
	}
	return row, nil
}
