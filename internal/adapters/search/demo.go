package search

import "strings"

type record struct {
	Type    string
	ID      string
	Title   string
	Snippet string
}

var demoIndex = []record{
	{Type: "customer", ID: "C-1001", Title: "John Smith", Snippet: "12 Riverside Ave, HVAC service customer since 2021"},
	{Type: "customer", ID: "C-1002", Title: "Maria Lopez", Snippet: "water heater install scheduled"},
	{Type: "work_order", ID: "WO-1001", Title: "HVAC repair for John Smith", Snippet: "scheduled 09:00, technician T-07"},
	{Type: "work_order", ID: "WO-1003", Title: "Furnace inspection for Acme Property Mgmt", Snippet: "overdue, unassigned"},
	{Type: "ticket", ID: "TK-201", Title: "No heat", Snippet: "furnace not producing heat since Monday"},
	{Type: "technician", ID: "T-07", Title: "Marcus Webb", Snippet: "hvac, electrical"},
}

// demoSearch scores each record by the fraction of terms it contains.
func demoSearch(terms []string) []hit {
	if len(terms) == 0 {
		return nil
	}
	var hits []hit
	for _, r := range demoIndex {
		haystack := strings.ToLower(r.Title + " " + r.Snippet + " " + r.ID)
		matched := 0
		for _, term := range terms {
			if strings.Contains(haystack, strings.ToLower(term)) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		hits = append(hits, hit{
			Type:      r.Type,
			ID:        r.ID,
			Title:     r.Title,
			Snippet:   r.Snippet,
			Relevance: 100 * float64(matched) / float64(len(terms)),
		})
	}
	return hits
}
