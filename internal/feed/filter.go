package feed

import (
	"strings"

	"github.com/pauljones0/komsu/internal/models"
)

// Filter returns the listings whose name or description contains query,
// ignoring case. An empty query returns listings unchanged.
func Filter(listings []models.Listing, query string) []models.Listing {
	if query == "" {
		return listings
	}
	q := strings.ToLower(query)
	matched := make([]models.Listing, 0, len(listings))
	for _, l := range listings {
		if strings.Contains(strings.ToLower(l.Name), q) || strings.Contains(strings.ToLower(l.Description), q) {
			matched = append(matched, l)
		}
	}
	return matched
}
