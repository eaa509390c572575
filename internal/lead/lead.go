// Package lead holds the form submission and qualification types shared by
// every workflow step.
package lead

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"
)

// Lead is a validated intake form submission. It is not mutated after Validate.
type Lead struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Company string `json:"company,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Message string `json:"message,omitempty"`
}

// FieldError describes one invalid field of a submission.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError lists every field problem found in a submission.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "invalid lead"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return strings.Join(parts, "; ")
}

// Decode parses a JSON submission and validates it.
func Decode(b []byte) (Lead, error) {
	var l Lead
	if err := json.Unmarshal(b, &l); err != nil {
		return Lead{}, &ValidationError{Fields: []FieldError{{Field: "body", Message: fmt.Sprintf("invalid JSON: %v", err)}}}
	}
	return l.Validate()
}

// Validate trims every field and checks required fields and the email format.
// It returns the normalized lead.
func (l Lead) Validate() (Lead, error) {
	out := Lead{
		Email:   strings.TrimSpace(l.Email),
		Name:    strings.TrimSpace(l.Name),
		Company: strings.TrimSpace(l.Company),
		Phone:   strings.TrimSpace(l.Phone),
		Message: strings.TrimSpace(l.Message),
	}

	var ve ValidationError
	switch {
	case out.Email == "":
		ve.Fields = append(ve.Fields, FieldError{Field: "email", Message: "required"})
	case !ValidEmail(out.Email):
		ve.Fields = append(ve.Fields, FieldError{Field: "email", Message: "invalid email address"})
	}
	if out.Name == "" {
		ve.Fields = append(ve.Fields, FieldError{Field: "name", Message: "required"})
	}
	if len(ve.Fields) > 0 {
		return Lead{}, &ve
	}
	return out, nil
}

// ValidEmail reports whether s is a bare address (no display name) with a
// dotted domain.
func ValidEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndex(s, "@")
	if at <= 0 {
		return false
	}
	domain := s[at+1:]
	return strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}

// FirstName returns the first whitespace-separated token of the lead name.
func (l Lead) FirstName() string {
	fields := strings.Fields(l.Name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// JSON renders the lead for prompts.
func (l Lead) JSON() string {
	b, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
