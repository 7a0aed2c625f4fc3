package service

import "transferhub/pkg/models"

// Deduction policy for the queue health score. Each category is capped so a
// large backlog cannot mask position corruption.
const (
	invalidPositionPenalty   = 10
	invalidPositionCap       = 40
	duplicatePositionPenalty = 15
	duplicatePositionCap     = 45
	unprocessedPenalty       = 2
	unprocessedCap           = 30
)

// ComputeHealth builds a report from the active companies and the number of
// dispatchable bookings that still have no assignment.
func ComputeHealth(active []*models.Company, unprocessed int) models.HealthReport {
	report := models.HealthReport{
		ActiveCompanies:     len(active),
		UnprocessedBookings: unprocessed,
	}

	holders := make(map[int]int, len(active))
	for _, c := range active {
		if !c.HasValidPosition() {
			report.InvalidPositions++
			continue
		}
		holders[*c.QueuePosition]++
	}
	for _, n := range holders {
		if n > 1 {
			report.DuplicatePositions += n
		}
	}

	score := 100
	score -= capped(report.InvalidPositions*invalidPositionPenalty, invalidPositionCap)
	score -= capped(report.DuplicatePositions*duplicatePositionPenalty, duplicatePositionCap)
	score -= capped(report.UnprocessedBookings*unprocessedPenalty, unprocessedCap)
	if score < 0 {
		score = 0
	}
	report.Score = score
	return report
}

func capped(v, limit int) int {
	if v > limit {
		return limit
	}
	if v < 0 {
		return 0
	}
	return v
}
