// Package naming renders artifact base names from a positional template.
package naming

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
)

// DefaultTemplate places the role first and the employer last, hyphen-separated.
const DefaultTemplate = "{0}-{1}"

// FieldSeparator separates fields in a base name. Sanitize removes it from
// arguments so the employer can be recovered as the last field.
const FieldSeparator = "-"

// maxSuffix bounds the random disambiguation suffix (exclusive).
const maxSuffix = 1000

var placeholderPattern = regexp.MustCompile(`\{(\d+)\}`)

// Sanitize replaces characters that are illegal in file names, and the field
// separator, with an underscore. Sanitize is idempotent.
func Sanitize(arg string) string {
	if arg == "" {
		return ""
	}

	var result strings.Builder
	result.Grow(len(arg))

	for _, r := range arg {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', '-':
			result.WriteByte('_')
		default:
			result.WriteRune(r)
		}
	}

	return result.String()
}

// Format substitutes {N} placeholders with the sanitized Nth argument.
// Placeholders without a matching argument become empty.
func Format(template string, args ...string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		index, err := strconv.Atoi(match[1 : len(match)-1])
		if err != nil || index >= len(args) {
			return ""
		}
		return Sanitize(args[index])
	})
}

// ExpectedFileName is the base name for a role at an employer. It depends
// only on its inputs.
func ExpectedFileName(template, roleTitle, employerName string) string {
	if template == "" {
		template = DefaultTemplate
	}
	return Format(template, roleTitle, employerName)
}

// Disambiguate appends a parenthesised integer to a base name.
func Disambiguate(base string, n int) string {
	return fmt.Sprintf("%s(%d)", base, n)
}

// RandomSuffix draws a small integer for Disambiguate. Two draws may collide;
// writers must refuse to overwrite rather than rely on uniqueness.
func RandomSuffix() int {
	return rand.IntN(maxSuffix)
}

// EmployerToken recovers the employer field from a base name: the segment
// after the last field separator, or the whole name when there is none.
func EmployerToken(base string) string {
	if idx := strings.LastIndex(base, FieldSeparator); idx >= 0 {
		return base[idx+len(FieldSeparator):]
	}
	return base
}
