package models

// HealthReport is the queue audit result. Score is in [0,100].
type HealthReport struct {
	Score               int `json:"score"`
	ActiveCompanies     int `json:"activeCompanies"`
	InvalidPositions    int `json:"invalidPositions"`
	DuplicatePositions  int `json:"duplicatePositions"`
	UnprocessedBookings int `json:"unprocessedBookings"`
}

func (h HealthReport) Clean() bool {
	return h.InvalidPositions == 0 && h.DuplicatePositions == 0 && h.UnprocessedBookings == 0
}

type RenumberResult struct {
	FixedCount int `json:"fixedCount"`
}

type ResetResult struct {
	CompaniesUpdated int `json:"companiesUpdated"`
}

type BacklogResult struct {
	Assigned int     `json:"assigned"`
	Skipped  int     `json:"skipped"`
	Held     []int64 `json:"held,omitempty"`
}
