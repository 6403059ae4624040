package intent

import "strings"

// Known spending categories. Anything else collapses to CategoryOther.
const (
	CategoryUtilities = "utilities"
	CategorySoftware  = "software"
	CategoryTravel    = "travel"
	CategoryOffice    = "office"
	CategoryMarketing = "marketing"
	CategoryRent      = "rent"
	CategoryOther     = "other"
)

var knownCategories = map[string]bool{
	CategoryUtilities: true,
	CategorySoftware:  true,
	CategoryTravel:    true,
	CategoryOffice:    true,
	CategoryMarketing: true,
	CategoryRent:      true,
	CategoryOther:     true,
}

// IsKnownCategory reports whether c is a recognized category name.
func IsKnownCategory(c string) bool {
	return knownCategories[c]
}

// categoryKeywords maps vendor/title substrings to categories. Checked in
// insertion order per category; first hit wins.
var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{CategoryUtilities, []string{"electric", "power", "gas", "water", "utility", "telecom", "internet"}},
	{CategorySoftware, []string{"aws", "amazon web services", "github", "google cloud", "azure", "saas", "software", "license", "subscription"}},
	{CategoryTravel, []string{"airline", "flight", "hotel", "rail", "taxi", "travel"}},
	{CategoryOffice, []string{"office", "stationery", "supplies", "furniture"}},
	{CategoryMarketing, []string{"ads", "advertising", "marketing", "campaign"}},
	{CategoryRent, []string{"rent", "lease", "landlord"}},
}

// InferCategory derives a category from a free-text vendor or title label.
// Matching is case-insensitive substring; unmatched labels yield "other".
func InferCategory(vendorOrTitle string) string {
	label := strings.ToLower(vendorOrTitle)
	for _, entry := range categoryKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(label, kw) {
				return entry.category
			}
		}
	}
	return CategoryOther
}
