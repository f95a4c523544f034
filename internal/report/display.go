package report

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// titleCaser is package-level because constructing one allocates a
// language tag table; every bucket name in a report reuses it.
var titleCaser = cases.Title(language.English)

// DisplayName turns a raw bucket key like "code_search" into "Code
// Search" for the JSON/CSV reports' human-facing column.
func DisplayName(bucket string) string {
	words := strings.Split(bucket, "_")
	return titleCaser.String(strings.Join(words, " "))
}
