package types

// GeoLevel tells how specific the location attribution of an insight row is.
type GeoLevel string

const (
	GeoLevelCity    GeoLevel = "city"
	GeoLevelRegion  GeoLevel = "region"
	GeoLevelCountry GeoLevel = "country"
)

type Campaign struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Status         string `json:"status"`
	Objective      string `json:"objective,omitempty"`
	DailyBudget    string `json:"daily_budget,omitempty"`
	LifetimeBudget string `json:"lifetime_budget,omitempty"`
}

// InsightRow is a derived metrics row. It is computed from ads API responses
// and never persisted.
type InsightRow struct {
	CampaignID   string   `json:"campaign_id"`
	CampaignName string   `json:"campaign_name"`
	AdSetID      string   `json:"adset_id,omitempty"`
	AdSetName    string   `json:"adset_name,omitempty"`
	Spend        float64  `json:"spend"`
	Leads        int      `json:"leads"`
	CostPerLead  float64  `json:"cost_per_lead"`
	Country      string   `json:"country,omitempty"`
	Region       string   `json:"region,omitempty"`
	State        string   `json:"state,omitempty"`
	City         string   `json:"city,omitempty"`
	Level        GeoLevel `json:"level,omitempty"`
}

type DateRange struct {
	Preset string `json:"preset"`
	Since  string `json:"since"`
	Until  string `json:"until"`
}

type InsightsResponse struct {
	Range DateRange    `json:"range"`
	Rows  []InsightRow `json:"rows"`
}

type CampaignsResponse struct {
	Status    string     `json:"status"`
	Campaigns []Campaign `json:"campaigns"`
}
