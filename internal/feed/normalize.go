// Package feed turns raw store snapshots into canonical listings and narrows
// them for display.
package feed

import (
	"sort"
	"strconv"

	"github.com/pauljones0/komsu/internal/models"
	"github.com/pauljones0/komsu/internal/storage"
)

// Normalize maps every snapshot entry to a Listing, keeping store order.
// Records are never dropped; only images is defaulted.
func Normalize(snap *storage.Snapshot) []models.Listing {
	if !snap.Exists() {
		return []models.Listing{}
	}

	listings := make([]models.Listing, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		listings = append(listings, NormalizeRecord(e.Key, e.Value))
	}
	return listings
}

// NormalizeRecord converts one keyed record value into a Listing.
func NormalizeRecord(id string, value any) models.Listing {
	l := models.Listing{ID: id, Images: []string{}}
	record, ok := value.(map[string]any)
	if !ok {
		return l
	}
	l.Name, _ = record["name"].(string)
	l.Description, _ = record["description"].(string)
	l.Images = Images(record["images"])
	return l
}

// Images coerces a stored images field into a sequence:
// array as-is, keyed mapping by value in key order, string as a singleton,
// anything else empty.
func Images(v any) []string {
	switch val := v.(type) {
	case []string:
		return append([]string{}, val...)
	case []any:
		return stringsOf(val)
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sortKeys(keys)
		values := make([]any, 0, len(keys))
		for _, k := range keys {
			values = append(values, val[k])
		}
		return stringsOf(values)
	case string:
		return []string{val}
	default:
		return []string{}
	}
}

func stringsOf(values []any) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// sortKeys orders keys the way the store orders children: 32-bit integer keys
// first by numeric value, then everything else lexicographically.
func sortKeys(keys []string) {
	sort.SliceStable(keys, func(i, j int) bool {
		a, aErr := integerKey(keys[i])
		b, bErr := integerKey(keys[j])
		switch {
		case aErr == nil && bErr == nil:
			return a < b
		case aErr == nil:
			return true
		case bErr == nil:
			return false
		default:
			return keys[i] < keys[j]
		}
	})
}

// integerKey parses k only when it is the canonical form of a 32-bit integer,
// so "01" stays a string key.
func integerKey(k string) (int64, error) {
	n, err := strconv.ParseInt(k, 10, 32)
	if err != nil {
		return 0, err
	}
	if strconv.FormatInt(n, 10) != k {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}
