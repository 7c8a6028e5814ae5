package core

// convert.go turns raw CSV cells into record fields.

import (
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// ToPgText converts a string to pgtype.Text.
// Returns invalid if the string is empty or only whitespace.
func ToPgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// CleanCell trims whitespace and unwraps spreadsheet formula artifacts
// such as ="value".
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
		s = s[2 : len(s)-1]
	}

	return s
}

// FullNames builds the two derived keys used for duplicate matching:
// "name, surname" and "surname, name". An absent surname becomes the
// empty string, so "Smith" alone yields "Smith, " and ", Smith".
func FullNames(name string, surname pgtype.Text) (nameSurname, surnameName string) {
	s := ""
	if surname.Valid {
		s = surname.String
	}
	return name + ", " + s, s + ", " + name
}

// SplitTokens splits a comma-separated cell into trimmed, non-empty,
// de-duplicated tokens in first-seen order.
func SplitTokens(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	parts := strings.Split(s, ",")
	tokens := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		tokens = append(tokens, p)
	}
	return tokens
}

// ParseHasImage reports whether the Have Image cell is exactly "Y".
// Padding, quoting and lowercase all read as false.
func ParseHasImage(s string) bool {
	return s == "Y"
}
