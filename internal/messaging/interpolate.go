package messaging

import (
	"regexp"
	"strings"
)

// PlaceholderStyle selects the brace syntax a call site uses. Campaign
// templates use {{token}}; nurturing step content uses {token}. The two
// syntaxes are intentionally kept separate.
type PlaceholderStyle int

const (
	// DoubleBrace matches {{token}} placeholders.
	DoubleBrace PlaceholderStyle = iota
	// SingleBrace matches {token} placeholders.
	SingleBrace
)

// Contact carries the attributes a template can reference.
type Contact struct {
	Name     string
	Phone    string
	Email    string
	Company  string
	Position string
	Notes    string
}

// placeholder aliases, Portuguese and English, all resolving to the same
// contact attribute. Unrecognized placeholders are left intact.
var placeholderAliases = map[string]func(Contact) string{
	"nome":        func(c Contact) string { return c.Name },
	"name":        func(c Contact) string { return c.Name },
	"telefone":    func(c Contact) string { return c.Phone },
	"phone":       func(c Contact) string { return c.Phone },
	"email":       func(c Contact) string { return c.Email },
	"empresa":     func(c Contact) string { return c.Company },
	"company":     func(c Contact) string { return c.Company },
	"cargo":       func(c Contact) string { return c.Position },
	"position":    func(c Contact) string { return c.Position },
	"observacoes": func(c Contact) string { return c.Notes },
	"notes":       func(c Contact) string { return c.Notes },
}

var (
	doubleBracePatterns = compilePatterns(`\{\{`, `\}\}`)
	singleBracePatterns = compilePatterns(`\{`, `\}`)
)

type tokenPattern struct {
	re    *regexp.Regexp
	alias string
}

func compilePatterns(opening, closing string) []tokenPattern {
	patterns := make([]tokenPattern, 0, len(placeholderAliases))
	for alias := range placeholderAliases {
		patterns = append(patterns, tokenPattern{
			re:    regexp.MustCompile(`(?i)` + opening + alias + closing),
			alias: alias,
		})
	}
	return patterns
}

// Interpolate replaces recognized placeholders in template with the contact's
// attributes. Matching is case-insensitive; a recognized placeholder whose
// attribute is empty becomes the empty string, never the literal token.
// Empty templates are returned unchanged.
func Interpolate(template string, contact Contact, style PlaceholderStyle) string {
	if strings.TrimSpace(template) == "" {
		return template
	}

	patterns := doubleBracePatterns
	if style == SingleBrace {
		patterns = singleBracePatterns
	}

	out := template
	for _, p := range patterns {
		if !p.re.MatchString(out) {
			continue
		}
		value := placeholderAliases[p.alias](contact)
		// ReplaceAllStringFunc keeps $ in attribute values literal.
		out = p.re.ReplaceAllStringFunc(out, func(string) string { return value })
	}
	return out
}
