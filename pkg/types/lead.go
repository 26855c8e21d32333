package types

type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "new"
	LeadStatusContacted LeadStatus = "contacted"
	LeadStatusScheduled LeadStatus = "scheduled"
	LeadStatusClosed    LeadStatus = "closed"
	LeadStatusLost      LeadStatus = "lost"
)

func (s LeadStatus) Valid() bool {
	switch s {
	case LeadStatusNew, LeadStatusContacted, LeadStatusScheduled, LeadStatusClosed, LeadStatusLost:
		return true
	}
	return false
}

type Lead struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Phone     string     `json:"phone"`
	Email     *string    `json:"email,omitempty"`
	Source    string     `json:"source"`
	Status    LeadStatus `json:"status"`
	Notes     string     `json:"notes,omitempty"`
	CreatedAt string     `json:"created_at"`
	UpdatedAt string     `json:"updated_at"`
}

type LeadStats struct {
	Total     int `json:"total"`
	New       int `json:"new"`
	Contacted int `json:"contacted"`
	Scheduled int `json:"scheduled"`
	Closed    int `json:"closed"`
	Lost      int `json:"lost"`
}

type CreateLeadRequest struct {
	Name   string  `json:"name"`
	Phone  string  `json:"phone"`
	Email  *string `json:"email,omitempty"`
	Source string  `json:"source,omitempty"`
	Notes  string  `json:"notes,omitempty"`
}

type UpdateLeadRequest struct {
	Name   *string     `json:"name,omitempty"`
	Email  *string     `json:"email,omitempty"`
	Status *LeadStatus `json:"status,omitempty"`
	Notes  *string     `json:"notes,omitempty"`
}

type ListLeadsResponse struct {
	Leads      []Lead     `json:"leads"`
	Total      int        `json:"total"`
	Limit      int        `json:"limit"`
	Stats      *LeadStats `json:"stats,omitempty"`
	NextCursor *string    `json:"next_cursor,omitempty"`
}
