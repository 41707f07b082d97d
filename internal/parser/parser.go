// Package parser extracts structured identifiers from free-form language
// service responses. The service is asked for "<id>: <title>" lines but is
// free to add preamble or commentary, so parsing is best-effort: lines that
// do not match the expected shape contribute nothing, and there is no error
// case.
package parser

import (
	"regexp"
	"strings"
)

// idLineRegex matches lines that start with one or more digits, a colon, and
// whitespace. Only such lines carry an identifier.
var idLineRegex = regexp.MustCompile(`^\d+:\s`)

// ExtractIDs returns the identifiers found in the response text, in line
// order. Duplicates are preserved; callers de-duplicate. Malformed input
// yields an empty or partial result, never a failure.
func ExtractIDs(response string) []string {
	lines := strings.Split(response, "\n")
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		if !idLineRegex.MatchString(line) {
			continue
		}
		id, _, _ := strings.Cut(line, ":")
		ids = append(ids, strings.TrimSpace(id))
	}
	return ids
}
