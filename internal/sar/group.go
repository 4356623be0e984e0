package sar

import (
	"sort"

	"github.com/robert-malhotra/ewoc-work-plan/internal/catalog"
	"github.com/robert-malhotra/ewoc-work-plan/internal/product"
)

// GroupByDate batches product ids acquired on the same day. Groups are
// ordered by date; ids inside a group keep their input order. Records whose
// id is empty or unparseable are left out.
func GroupByDate(records []catalog.Record) [][]string {
	byDate := make(map[string][]string)
	for _, rec := range records {
		if rec.ID == "" {
			continue
		}
		id, err := product.ParseS1(rec.ID)
		if err != nil {
			continue
		}
		token := id.DateToken()
		byDate[token] = append(byDate[token], rec.ID)
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	groups := make([][]string, 0, len(dates))
	for _, d := range dates {
		groups = append(groups, byDate[d])
	}
	return groups
}
