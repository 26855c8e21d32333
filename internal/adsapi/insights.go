package adsapi

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/georgeshao/clinic-crm/pkg/types"
)

// Action is one entry of an insight's actions list.
type Action struct {
	ActionType string `json:"action_type"`
	Value      string `json:"value,omitempty"`
}

var leadActionTypes = map[string]bool{
	"lead":               true,
	"offsite_conversion": true,
}

// CountLeads sums the values of lead actions. A missing or unparseable value
// counts as one.
func CountLeads(actions []Action) int {
	total := 0
	for _, a := range actions {
		if !leadActionTypes[a.ActionType] {
			continue
		}
		total += actionCount(a.Value)
	}
	return total
}

func actionCount(value string) int {
	value = strings.TrimSpace(value)
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return int(math.Round(f))
	}
	return 1
}

func CostPerLead(spend float64, leads int) float64 {
	if leads <= 0 {
		return 0
	}
	return spend / float64(leads)
}

func parseSpend(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

type insight struct {
	CampaignID   string   `json:"campaign_id"`
	CampaignName string   `json:"campaign_name"`
	AdSetID      string   `json:"adset_id"`
	AdSetName    string   `json:"adset_name"`
	Spend        string   `json:"spend"`
	Region       string   `json:"region"`
	Actions      []Action `json:"actions"`
}

func (in insight) toRow() types.InsightRow {
	spend := parseSpend(in.Spend)
	leads := CountLeads(in.Actions)
	return types.InsightRow{
		CampaignID:   in.CampaignID,
		CampaignName: in.CampaignName,
		AdSetID:      in.AdSetID,
		AdSetName:    in.AdSetName,
		Spend:        spend,
		Leads:        leads,
		CostPerLead:  CostPerLead(spend, leads),
	}
}

// CostPerLeadByRegion breaks campaign spend and leads down by region and
// annotates each row with the region's principal city and state code.
func (c *Client) CostPerLeadByRegion(ctx context.Context, preset string) (Range, []types.InsightRow, error) {
	r := ResolveRange(preset, c.now())
	if !c.Configured() {
		return r, nil, ErrNotConfigured
	}

	params := url.Values{}
	params.Set("level", "campaign")
	params.Set("breakdowns", "region")
	params.Set("fields", "campaign_id,campaign_name,spend,actions")
	params.Set("time_range", r.TimeRangeParam())
	params.Set("limit", "500")

	raw, err := fetchList[insight](ctx, c, c.config.AccountID+"/insights", params, c.config.CacheTTL)
	if err != nil {
		return r, nil, fmt.Errorf("failed to fetch regional insights: %w", err)
	}

	rows := make([]types.InsightRow, 0, len(raw))
	for _, in := range raw {
		row := in.toRow()
		row.Country = c.config.CountryCode
		row.Region = in.Region
		row.City = PrincipalCity(in.Region)
		row.State = StateCode(in.Region)
		row.Level = types.GeoLevelRegion
		rows = append(rows, row)
	}
	return r, rows, nil
}
