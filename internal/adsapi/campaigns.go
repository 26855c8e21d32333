package adsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/georgeshao/clinic-crm/pkg/types"
)

const (
	StatusActive = "ACTIVE"
	StatusPaused = "PAUSED"
	StatusAll    = "ALL"
)

// EffectiveStatuses maps a status filter to the allow-list sent upstream.
// Anything unrecognised means active campaigns only.
func EffectiveStatuses(status string) []string {
	switch strings.ToUpper(status) {
	case StatusActive:
		return []string{StatusActive}
	case StatusPaused:
		return []string{StatusPaused}
	case StatusAll:
		return []string{StatusActive, StatusPaused}
	default:
		return []string{StatusActive}
	}
}

func statusParam(status string) string {
	b, _ := json.Marshal(EffectiveStatuses(status))
	return string(b)
}

// Campaigns lists the account's campaigns filtered by status.
func (c *Client) Campaigns(ctx context.Context, status string) ([]types.Campaign, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	params := url.Values{}
	params.Set("fields", "id,name,status,objective,daily_budget,lifetime_budget")
	params.Set("effective_status", statusParam(status))
	params.Set("limit", "200")

	campaigns, err := fetchList[types.Campaign](ctx, c, c.config.AccountID+"/campaigns", params, c.config.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return campaigns, nil
}

// CampaignInsights returns spend, leads and cost per lead per campaign.
func (c *Client) CampaignInsights(ctx context.Context, status, preset string) (Range, []types.InsightRow, error) {
	r := ResolveRange(preset, c.now())
	if !c.Configured() {
		return r, nil, ErrNotConfigured
	}

	params := url.Values{}
	params.Set("level", "campaign")
	params.Set("fields", "campaign_id,campaign_name,spend,actions")
	params.Set("time_range", r.TimeRangeParam())
	params.Set("filtering", fmt.Sprintf(`[{"field":"campaign.effective_status","operator":"IN","value":%s}]`, statusParam(status)))
	params.Set("limit", "500")

	raw, err := fetchList[insight](ctx, c, c.config.AccountID+"/insights", params, c.config.CacheTTL)
	if err != nil {
		return r, nil, fmt.Errorf("failed to fetch campaign insights: %w", err)
	}

	rows := make([]types.InsightRow, 0, len(raw))
	for _, in := range raw {
		rows = append(rows, in.toRow())
	}
	return r, rows, nil
}
