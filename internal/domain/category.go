package domain

import "strings"

// Category is the SFPD "Incident Category" label.
type Category string

// Categories examined individually by the analysis.
const (
	CategoryAssault           Category = "Assault"
	CategoryFraud             Category = "Fraud"
	CategoryMissingPerson     Category = "Missing Person"
	CategoryTrafficCollision  Category = "Traffic Collision"
	CategoryWarrant           Category = "Warrant"
	CategoryDisorderlyConduct Category = "Disorderly Conduct"
	CategoryDrugOffense       Category = "Drug Offense"
)

// NormalizeCategory trims surrounding whitespace from a raw category label.
func NormalizeCategory(raw string) Category {
	return Category(strings.TrimSpace(raw))
}

// Predicate selects rows for a subset.
type Predicate[T any] func(T) bool

// Filter returns the rows matching keep, preserving order.
func Filter[T any](rows []T, keep Predicate[T]) []T {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// InCategory matches enriched incidents of the given category.
func InCategory(c Category) Predicate[EnrichedIncident] {
	return func(e EnrichedIncident) bool { return e.Category == c }
}
