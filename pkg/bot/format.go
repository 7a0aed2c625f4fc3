package bot

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	errs "transferhub/pkg/errors"
	"transferhub/pkg/models"
	"transferhub/service"
)

// ParseIDs reads exactly n positive ids from command arguments.
func ParseIDs(args []string, n int) ([]int64, error) {
	if len(args) != n {
		return nil, fmt.Errorf("expected %d arguments, got %d", n, len(args))
	}
	ids := make([]int64, 0, n)
	for _, a := range args {
		id, err := strconv.ParseInt(strings.TrimPrefix(a, "#"), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func FormatQueue(companies []*models.Company) string {
	var sb strings.Builder
	sb.WriteString("<b>📋 Dispatch queue</b>\n\n")
	for i, c := range companies {
		pos := "-"
		if c.QueuePosition != nil {
			pos = strconv.Itoa(*c.QueuePosition)
		}
		marker := ""
		if i == 0 {
			marker = " ⬅️ next"
		}
		fmt.Fprintf(&sb, "%d. %s (id %d, pos %s)%s\n", i+1, html.EscapeString(c.Name), c.ID, pos, marker)
	}
	return sb.String()
}

func FormatHealth(r *models.HealthReport) string {
	icon := "🟢"
	switch {
	case r.Score < 50:
		icon = "🔴"
	case r.Score < 80:
		icon = "🟡"
	}
	return fmt.Sprintf(
		"<b>%s Queue health: %d/100</b>\n\nActive companies: %d\nInvalid positions: %d\nDuplicate positions: %d\nUnprocessed bookings: %d",
		icon, r.Score, r.ActiveCompanies, r.InvalidPositions, r.DuplicatePositions, r.UnprocessedBookings,
	)
}

func FormatAssignment(a *models.Assignment) string {
	return fmt.Sprintf(
		"✅ Booking #%d assigned to company #%d (%s)\n🆔 Assignment #%d\n📍 %s ➡️ %s\n📅 %s",
		a.BookingID, a.CompanyID, a.Source, a.ID,
		html.EscapeString(a.Origin), html.EscapeString(a.Destination),
		a.PickupAt.Format("2006-01-02 15:04"),
	)
}

func FormatCompany(c *models.Company) string {
	pos := "not placed"
	if c.QueuePosition != nil {
		pos = strconv.Itoa(*c.QueuePosition)
	}
	return fmt.Sprintf("🏢 <b>%s</b> (id %d)\nStatus: %s\nQueue position: %s", html.EscapeString(c.Name), c.ID, c.Status, pos)
}

func FormatRenumber(r *models.RenumberResult) string {
	if r.FixedCount == 0 {
		return "🔢 Queue already dense, nothing changed."
	}
	return fmt.Sprintf("🔢 Renumbered %d compan%s.", r.FixedCount, plural(r.FixedCount, "y", "ies"))
}

func FormatReset(r *models.ResetResult) string {
	return fmt.Sprintf("♻️ Queue reset: %d compan%s reordered by name.", r.CompaniesUpdated, plural(r.CompaniesUpdated, "y", "ies"))
}

func FormatBacklog(r *models.BacklogResult) string {
	out := fmt.Sprintf("📦 Backlog: %d assigned, %d skipped", r.Assigned, r.Skipped)
	if len(r.Held) > 0 {
		ids := make([]string, 0, len(r.Held))
		for _, id := range r.Held {
			ids = append(ids, "#"+strconv.FormatInt(id, 10))
		}
		out += fmt.Sprintf(", %d on hold (%s). Use /override.", len(r.Held), strings.Join(ids, ", "))
	}
	return out
}

// FormatError renders the error code and message; unknown errors stay generic.
func FormatError(err error) string {
	typed := errs.As(err)
	if typed == nil {
		return "⚠️ " + html.EscapeString(errs.MetadataFor(errs.CodeInternal).PublicMessage)
	}
	if existing, ok := service.ExistingAssignment(err); ok {
		return fmt.Sprintf("ℹ️ Booking #%d is already assigned to company #%d (assignment #%d).",
			existing.BookingID, existing.CompanyID, existing.ID)
	}
	meta := errs.MetadataFor(typed.Code())
	return fmt.Sprintf("⚠️ <b>%s</b>: %s", html.EscapeString(meta.PublicMessage), html.EscapeString(typed.Message()))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
