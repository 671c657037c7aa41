package util

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var spaceRun = regexp.MustCompile(`\s+`)

// NormalizeField trims and collapses interior whitespace so that semantically
// identical inputs produce identical cache keys.
func NormalizeField(raw string) string {
	return spaceRun.ReplaceAllString(strings.TrimSpace(raw), " ")
}

// FullAddress builds the canonical "street, city, state, zip" string used both
// as the property cache key and as the upstream query address.
func FullAddress(street, city, state, zip string) string {
	return fmt.Sprintf("%s, %s, %s, %s",
		NormalizeField(street),
		NormalizeField(city),
		strings.ToUpper(NormalizeField(state)),
		NormalizeField(zip),
	)
}

// RentEstimateKey derives the cache key for a rent estimate request. The key
// covers every field the estimate depends on; zip is deliberately excluded to
// match the upstream estimate granularity.
func RentEstimateKey(street, city, state, propertyType string, bedrooms, bathrooms float64, squareFootage int) string {
	return strings.Join([]string{
		NormalizeField(street),
		NormalizeField(city),
		strings.ToUpper(NormalizeField(state)),
		NormalizeField(propertyType),
		strconv.FormatFloat(bedrooms, 'f', -1, 64),
		strconv.FormatFloat(bathrooms, 'f', -1, 64),
		strconv.Itoa(squareFootage),
	}, "-")
}
