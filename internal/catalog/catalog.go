package catalog

import (
	"strings"
)

// SeeWebsite is the interest-rate descriptor for products whose rate is only published online.
const SeeWebsite = "See website"

// Entry is one bank loan offering.
type Entry struct {
	BankName      string   `json:"bank_name"`
	LoanType      string   `json:"loan_type"`
	MaxAmount     string   `json:"max_amount"`
	RepaymentTime string   `json:"repayment_time"`
	InterestRate  string   `json:"interest_rate"`
	Links         []string `json:"links,omitempty"`
}

// HasWebsiteRate reports whether the rate must be looked up on the bank's site.
func (e Entry) HasWebsiteRate() bool {
	return strings.EqualFold(strings.TrimSpace(e.InterestRate), SeeWebsite)
}

func (e Entry) clone() Entry {
	if e.Links != nil {
		e.Links = append([]string(nil), e.Links...)
	}
	return e
}

// Catalog is the read-only loan catalog loaded at startup. Every accessor returns copies, so a
// Catalog can be shared between goroutines without locking.
type Catalog struct {
	entries []Entry
	source  string
}

// New builds a catalog from entries, copying them.
func New(entries []Entry, source string) *Catalog {
	return &Catalog{entries: cloneEntries(entries), source: source}
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Source describes where the catalog was loaded from.
func (c *Catalog) Source() string {
	if c == nil {
		return ""
	}
	return c.source
}

// Entries returns a copy of all entries in load order.
func (c *Catalog) Entries() []Entry {
	if c == nil {
		return nil
	}
	return cloneEntries(c.entries)
}

// Filter narrows the catalog by loan type. See Filter.
func (c *Catalog) Filter(loanType string) ([]Entry, bool) {
	if c == nil {
		return nil, false
	}
	return Filter(c.entries, loanType)
}

// Filter returns the entries whose loan type contains loanType, ignoring case. A blank
// loanType selects everything.
//
// When nothing matches, the full catalog is returned and fallback is true. An unmatched type
// never yields an empty result.
func Filter(entries []Entry, loanType string) (selected []Entry, fallback bool) {
	query := strings.ToLower(strings.TrimSpace(loanType))
	if query == "" {
		return cloneEntries(entries), false
	}

	for _, entry := range entries {
		if strings.Contains(strings.ToLower(entry.LoanType), query) {
			selected = append(selected, entry.clone())
		}
	}
	if len(selected) > 0 {
		return selected, false
	}
	return cloneEntries(entries), true
}

func cloneEntries(entries []Entry) []Entry {
	if entries == nil {
		return nil
	}
	out := make([]Entry, len(entries))
	for i, entry := range entries {
		out[i] = entry.clone()
	}
	return out
}
