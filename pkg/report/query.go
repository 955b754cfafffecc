package report

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"
)

// All disables a filter, same as leaving it empty.
const All = "all"

type Criteria struct {
	Status     Status
	Category   Category
	Urgency    Urgency
	Department string
	SearchText string
}

// Query filters and orders a snapshot of reports, newest first with ties broken by id.
// The input slice is never modified; the result is always non-nil.
func Query(reports []Report, c Criteria) []Report {
	// A Caser keeps state, so each call gets its own.
	fold := cases.Fold()
	needle := fold.String(c.SearchText)

	out := make([]Report, 0, len(reports))
	for _, r := range reports {
		if !isAny(string(c.Status)) && r.Status != c.Status {
			continue
		}
		if !isAny(string(c.Category)) && r.Category != c.Category {
			continue
		}
		if !isAny(string(c.Urgency)) && r.Urgency != c.Urgency {
			continue
		}
		if !isAny(c.Department) && !sameDepartment(c.Department, r.AssignedDepartment) {
			continue
		}
		if needle != "" && !matchesText(fold, needle, r) {
			continue
		}
		out = append(out, r.Clone())
	}

	slices.SortStableFunc(out, func(a, b Report) int {
		if n := b.CreatedAt.Compare(a.CreatedAt); n != 0 {
			return n
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func isAny(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, All)
}

func matchesText(fold cases.Caser, needle string, r Report) bool {
	for _, field := range []string{r.Title, r.Description, r.Location} {
		if field != "" && strings.Contains(fold.String(field), needle) {
			return true
		}
	}
	return false
}

// Stats is what the dashboard cards and charts are built from.
type Stats struct {
	Total              int              `json:"total"`
	ByStatus           map[Status]int   `json:"by_status"`
	ByCategory         map[Category]int `json:"by_category"`
	ByUrgency          map[Urgency]int  `json:"by_urgency"`
	ResolutionRate     float64          `json:"resolution_rate"`
	AvgResolutionHours float64          `json:"avg_resolution_hours"`
}

func Summarize(reports []Report) Stats {
	s := Stats{
		Total:      len(reports),
		ByStatus:   make(map[Status]int, 3),
		ByCategory: make(map[Category]int, 6),
		ByUrgency:  make(map[Urgency]int, 4),
	}
	for _, st := range Statuses() {
		s.ByStatus[st] = 0
	}

	var resolvedHours float64
	var resolved int
	for _, r := range reports {
		s.ByStatus[r.Status]++
		s.ByCategory[r.Category]++
		s.ByUrgency[r.Urgency]++
		if r.Status.IsResolved() && r.ResolvedAt != nil {
			resolved++
			resolvedHours += r.ResolvedAt.Sub(r.CreatedAt).Hours()
		}
	}

	if s.Total > 0 {
		s.ResolutionRate = float64(s.ByStatus[StatusResolved]) / float64(s.Total) * 100
	}
	if resolved > 0 {
		s.AvgResolutionHours = resolvedHours / float64(resolved)
	}
	return s
}
