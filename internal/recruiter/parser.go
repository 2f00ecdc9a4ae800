// Package recruiter parses recruiter contact info out of free-text
// spreadsheet cells. A cell may hold one or many "Name - email" pairs,
// bare emails, or junk.
package recruiter

import (
	"log"
	"regexp"
	"strings"
)

// Contact is one parsed recipient. Name is empty when the cell only had an
// email address.
type Contact struct {
	Name  string
	Email string
}

const emailPattern = `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`

var (
	emailRe = regexp.MustCompile(emailPattern)
	// Primary strategy: repeated "name - email" pairs anywhere in the cell.
	// The name part stops at commas so entries don't bleed into each other.
	pairRe = regexp.MustCompile(`([^,]+?)\s*-\s*(` + emailPattern + `)`)
	// Fallback per-segment match, tolerant of en/em dashes.
	segmentRe   = regexp.MustCompile(`^(.+?)\s*[-–—]\s*(` + emailPattern + `)$`)
	fullEmailRe = regexp.MustCompile(`^` + emailPattern + `$`)
)

// Parse extracts an ordered, deduplicated contact list from a cell.
// Segments with no email address are dropped with a warning; segments that
// contain "@" but fail strict syntax are kept as email-without-name so a
// typo'd address still surfaces in the send loop instead of vanishing.
func Parse(cell string) []Contact {
	if strings.TrimSpace(cell) == "" {
		return nil
	}

	// Collapse newlines and runs of whitespace to single spaces.
	cell = strings.Join(strings.Fields(cell), " ")

	var contacts []Contact
	for _, m := range pairRe.FindAllStringSubmatch(cell, -1) {
		contacts = append(contacts, Contact{
			Name:  strings.TrimSpace(m[1]),
			Email: strings.TrimSpace(m[2]),
		})
	}

	if len(contacts) == 0 {
		for _, part := range strings.Split(cell, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if c, ok := parseSegment(part); ok {
				contacts = append(contacts, c)
			}
		}
	}

	return dedupe(contacts)
}

func parseSegment(part string) (Contact, bool) {
	if m := segmentRe.FindStringSubmatch(part); m != nil {
		return Contact{Name: strings.TrimSpace(m[1]), Email: m[2]}, true
	}

	if loc := emailRe.FindStringIndex(part); loc != nil {
		name := strings.TrimSpace(part[:loc[0]])
		name = strings.TrimSpace(strings.TrimSuffix(name, "-"))
		return Contact{Name: name, Email: part[loc[0]:loc[1]]}, true
	}

	// No syntactically valid email. Anything with an "@" is treated as an
	// address anyway; anything else is unusable.
	if strings.Contains(part, "@") {
		return Contact{Email: part}, true
	}
	log.Printf("level=warn msg=\"could not parse recruiter segment (no email found)\" segment=%q", part)
	return Contact{}, false
}

func dedupe(contacts []Contact) []Contact {
	seen := make(map[string]bool, len(contacts))
	var out []Contact
	for _, c := range contacts {
		if c.Email == "" {
			continue
		}
		key := strings.ToLower(c.Email)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

// ValidEmail reports whether s is a whole, syntactically valid address.
func ValidEmail(s string) bool {
	return fullEmailRe.MatchString(s)
}
