// Package security holds the PII masking, input sanitizing and details
// minimization rules applied before anything is written to the audit trail.
package security

import (
	"errors"
	"regexp"
	"strings"
)

// MaxInputLength bounds the text accepted by MaskPII.
const MaxInputLength = 10_000_000

var ErrInputTooLarge = errors.New("input too large")

var (
	emailPattern      = regexp.MustCompile(`\b[A-Za-z0-9._%+-]{1,64}@[A-Za-z0-9.-]{1,255}\.[A-Za-z|]{2,}\b`)
	aadhaarPattern    = regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`)
	panPattern        = regexp.MustCompile(`\b[A-Z]{5}\d{4}[A-Z]\b`)
	creditCardPattern = regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{1,7}\b`)
	ssnPattern        = regexp.MustCompile(`\b\d{3}[-\s]?\d{2}[-\s]?\d{4}\b`)

	// RE2 has no lookbehind: the leading group captures the character before
	// the number (or start of text) so it can be preserved on replacement.
	phonePattern = regexp.MustCompile(`(^|[^0-9A-Za-z_])((?:\+91[-\s]?)?[6-9](?:[-\s]?\d){9})\b`)

	nonDigit = regexp.MustCompile(`\D`)
)

// PII type names reported by DetectPII.
const (
	PIIEmail      = "email"
	PIIPhone      = "phone"
	PIIAadhaar    = "aadhaar"
	PIIPAN        = "pan"
	PIICreditCard = "credit_card"
	PIISSN        = "ssn"
)

// MaskOptions selects which PII categories MaskPII rewrites.
type MaskOptions struct {
	Email      bool
	Phone      bool
	Aadhaar    bool
	PAN        bool
	CreditCard bool
	SSN        bool
}

// AllPII masks every supported category.
var AllPII = MaskOptions{Email: true, Phone: true, Aadhaar: true, PAN: true, CreditCard: true, SSN: true}

// MaskPII rewrites PII in text. Categories are applied most sensitive first:
// card, aadhaar, ssn, pan, email, phone.
func MaskPII(text string, opts MaskOptions) (string, error) {
	if text == "" {
		return text, nil
	}
	if len(text) > MaxInputLength {
		return "", ErrInputTooLarge
	}
	if opts.CreditCard {
		text = creditCardPattern.ReplaceAllStringFunc(text, maskCreditCard)
	}
	if opts.Aadhaar {
		text = aadhaarPattern.ReplaceAllStringFunc(text, maskAadhaar)
	}
	if opts.SSN {
		text = ssnPattern.ReplaceAllStringFunc(text, maskSSN)
	}
	if opts.PAN {
		text = panPattern.ReplaceAllStringFunc(text, maskPAN)
	}
	if opts.Email {
		text = emailPattern.ReplaceAllStringFunc(text, maskEmail)
	}
	if opts.Phone {
		text = maskPhones(text)
	}
	return text, nil
}

// MaskAll masks every category and returns "" for oversized input.
func MaskAll(text string) string {
	out, err := MaskPII(text, AllPII)
	if err != nil {
		return ""
	}
	return out
}

// DetectPII returns the PII categories present in text, in a fixed order.
func DetectPII(text string) []string {
	if text == "" {
		return nil
	}
	var found []string
	if emailPattern.MatchString(text) {
		found = append(found, PIIEmail)
	}
	if phonePattern.MatchString(text) {
		found = append(found, PIIPhone)
	}
	if aadhaarPattern.MatchString(text) {
		found = append(found, PIIAadhaar)
	}
	if panPattern.MatchString(text) {
		found = append(found, PIIPAN)
	}
	if creditCardPattern.MatchString(text) {
		found = append(found, PIICreditCard)
	}
	if ssnPattern.MatchString(text) {
		found = append(found, PIISSN)
	}
	return found
}

func digitsOf(s string) string {
	return nonDigit.ReplaceAllString(s, "")
}

func maskCreditCard(card string) string {
	d := digitsOf(card)
	if len(d) >= 13 {
		return "****-****-****-" + d[len(d)-4:]
	}
	return "****-****-****-****"
}

func maskAadhaar(s string) string {
	d := digitsOf(s)
	if len(d) == 12 {
		return "XXXX-XXXX-" + d[8:]
	}
	return "XXXX-XXXX-XXXX"
}

func maskSSN(s string) string {
	d := digitsOf(s)
	if len(d) == 9 {
		return "XXX-XX-" + d[5:]
	}
	return "XXX-XX-XXXX"
}

func maskPAN(pan string) string {
	if len(pan) == 10 {
		return pan[:3] + "**" + pan[5:9] + pan[9:]
	}
	return "XXXXX****X"
}

func maskEmail(email string) string {
	user, domain, ok := strings.Cut(email, "@")
	if !ok {
		return "***@***.com"
	}
	if len(user) > 1 {
		return user[:1] + "***@" + domain
	}
	return "***@" + domain
}

func maskPhones(text string) string {
	idx := phonePattern.FindAllStringSubmatchIndex(text, -1)
	if len(idx) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	for _, m := range idx {
		// m[4]:m[5] is the phone number itself; the prefix group is kept.
		b.WriteString(text[last:m[4]])
		phone := text[m[4]:m[5]]
		d := digitsOf(phone)
		switch {
		case len(d) >= 10 && strings.HasPrefix(phone, "+91"):
			b.WriteString("+91-*******")
		case len(d) >= 10:
			b.WriteString(d[:1] + "*********")
		default:
			b.WriteString(strings.Repeat("*", len(d)))
		}
		last = m[5]
	}
	b.WriteString(text[last:])
	return b.String()
}
