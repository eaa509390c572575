package lead

import "strings"

// Category is a qualification label. Values outside the closed set are kept
// verbatim so they can be logged, but they never qualify.
type Category string

const (
	CategoryQualified   Category = "QUALIFIED"
	CategoryFollowUp    Category = "FOLLOW_UP"
	CategoryUnqualified Category = "UNQUALIFIED"
	CategorySupport     Category = "SUPPORT"
)

// Categories is the closed set, in the order used for model schemas.
var Categories = []Category{
	CategoryQualified,
	CategoryFollowUp,
	CategoryUnqualified,
	CategorySupport,
}

// ParseCategory normalizes case, surrounding space and "-"/" " separators.
// "Follow-up" and "follow up" both map to FOLLOW_UP. Unknown labels are
// returned upper-cased and report Known() == false.
func ParseCategory(s string) Category {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	switch norm {
	case "IRRELEVANT":
		return CategoryUnqualified
	}
	return Category(norm)
}

// Known reports whether c is part of the closed set.
func (c Category) Known() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// Qualifying reports whether c routes the lead through drafting, delivery
// and notification.
func (c Category) Qualifying() bool {
	return c == CategoryQualified || c == CategoryFollowUp
}

func (c Category) String() string { return string(c) }

// Qualification is the classifier output for one run.
type Qualification struct {
	Category Category `json:"category"`
	Reason   string   `json:"reason"`
}

// CategoryStrings returns Categories as plain strings.
func CategoryStrings() []string {
	out := make([]string, 0, len(Categories))
	for _, c := range Categories {
		out = append(out, string(c))
	}
	return out
}
