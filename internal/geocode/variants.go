package geocode

import (
	"regexp"
	"strings"
)

// Road-type abbreviations the upstream feed tends to use.
var abbreviations = []struct{ short, full string }{
	{"Ch.", "Chaussée"},
	{"Chée", "Chaussée"},
	{"Av.", "Avenue"},
	{"Bd", "Boulevard"},
	{"Pl.", "Place"},
	{"R.", "Rue"},
}

// A 4-digit postal code glued to the preceding house number or street, e.g.
// "Rue Haute 12 1000 Bruxelles".
var postalRe = regexp.MustCompile(`([^,\s])\s+(\d{4}\s+\p{L})`)

// Variants returns the ordered, deterministic spellings attempted for an
// address: the original, abbreviation-expanded, comma-normalized postal-code
// form, and the country-qualified form. Duplicates are removed while
// preserving order; the function is pure and provider-independent.
func Variants(address, country string) []string {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil
	}

	candidates := []string{address}

	expanded := address
	for _, ab := range abbreviations {
		expanded = replaceToken(expanded, ab.short, ab.full)
	}
	candidates = append(candidates, expanded)

	candidates = append(candidates,
		postalRe.ReplaceAllString(address, "$1, $2"),
		postalRe.ReplaceAllString(expanded, "$1, $2"),
	)

	if country != "" {
		withCountry := make([]string, 0, len(candidates))
		for _, c := range candidates {
			if !strings.Contains(strings.ToLower(c), strings.ToLower(country)) {
				withCountry = append(withCountry, c+", "+country)
			}
		}
		candidates = append(candidates, withCountry...)
	}

	seen := make(map[string]struct{}, len(candidates))
	out := candidates[:0]
	for _, c := range candidates {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// replaceToken swaps whole-word occurrences only, so "Chemin" is not mangled
// by the "Ch." rule.
func replaceToken(s, short, full string) string {
	fields := strings.Split(s, " ")
	for i, f := range fields {
		if strings.EqualFold(f, short) {
			fields[i] = full
		}
	}
	return strings.Join(fields, " ")
}
