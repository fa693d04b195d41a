// Package redact masks payment instrument data before it is written to
// durable audit records.
package redact

import (
	"regexp"
	"sort"
	"strings"
)

// Kind is a class of sensitive value.
type Kind string

const (
	KindCardNumber Kind = "card_number"
	KindEmail      Kind = "email"
	KindIBAN       Kind = "iban"
)

// Detection is one sensitive value found in a string.
type Detection struct {
	Kind     Kind
	Value    string
	StartPos int
	EndPos   int
}

var (
	// Email pattern - RFC 5322 simplified
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)

	// Card numbers, optionally grouped by spaces or dashes
	cardPattern = regexp.MustCompile(`\b(?:[0-9][ -]?){12,18}[0-9]\b`)

	// IBAN - country code, check digits, up to 30 alphanumerics
	ibanPattern = regexp.MustCompile(`\b[A-Z]{2}[0-9]{2}[A-Z0-9]{11,30}\b`)
)

// Detect returns every sensitive value in s, ordered by position.
func Detect(s string) []Detection {
	var detections []Detection

	for _, match := range cardPattern.FindAllStringIndex(s, -1) {
		value := s[match[0]:match[1]]
		if luhnCheck(value) {
			detections = append(detections, Detection{Kind: KindCardNumber, Value: value, StartPos: match[0], EndPos: match[1]})
		}
	}
	for _, match := range emailPattern.FindAllStringIndex(s, -1) {
		detections = append(detections, Detection{Kind: KindEmail, Value: s[match[0]:match[1]], StartPos: match[0], EndPos: match[1]})
	}
	for _, match := range ibanPattern.FindAllStringIndex(s, -1) {
		if overlaps(detections, match[0], match[1]) {
			continue
		}
		detections = append(detections, Detection{Kind: KindIBAN, Value: s[match[0]:match[1]], StartPos: match[0], EndPos: match[1]})
	}

	sort.Slice(detections, func(i, j int) bool { return detections[i].StartPos < detections[j].StartPos })
	return detections
}

// Text replaces every sensitive value in s with its mask.
func Text(s string) string {
	detections := Detect(s)
	if len(detections) == 0 {
		return s
	}

	var b strings.Builder
	last := 0
	for _, d := range detections {
		if d.StartPos < last {
			continue
		}
		b.WriteString(s[last:d.StartPos])
		b.WriteString(mask(d))
		last = d.EndPos
	}
	b.WriteString(s[last:])
	return b.String()
}

// Account masks an account identifier. Card numbers and IBANs keep their
// last four characters; other identifiers pass through unchanged.
func Account(id string) string {
	return Text(id)
}

func mask(d Detection) string {
	switch d.Kind {
	case KindCardNumber, KindIBAN:
		digits := strings.NewReplacer(" ", "", "-", "").Replace(d.Value)
		return strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]
	case KindEmail:
		return "[EMAIL_REDACTED]"
	default:
		return "[REDACTED]"
	}
}

func overlaps(detections []Detection, start, end int) bool {
	for _, d := range detections {
		if start < d.EndPos && d.StartPos < end {
			return true
		}
	}
	return false
}

// luhnCheck validates a card number using the Luhn algorithm
func luhnCheck(cardNumber string) bool {
	// Remove spaces and dashes
	cardNumber = strings.ReplaceAll(cardNumber, " ", "")
	cardNumber = strings.ReplaceAll(cardNumber, "-", "")

	if len(cardNumber) < 13 || len(cardNumber) > 19 {
		return false
	}

	sum := 0
	isSecond := false

	// Traverse from right to left
	for i := len(cardNumber) - 1; i >= 0; i-- {
		digit := int(cardNumber[i] - '0')

		if isSecond {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}

		sum += digit
		isSecond = !isSecond
	}

	return sum%10 == 0
}
