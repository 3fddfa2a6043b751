package ai

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// MaxRecommendations bounds the number of items kept from a parsed response.
const MaxRecommendations = 5

// UnparsedNote is attached to responses that could not be read as a recommendation set.
const UnparsedNote = "Could not parse JSON from model response"

// Field is a scalar the model may emit either as a JSON string or as a number. The original
// kind is kept so the value marshals back unchanged.
type Field struct {
	Text    string
	Numeric bool
}

// String returns the textual form of the value.
func (f Field) String() string {
	return f.Text
}

// UnmarshalJSON accepts strings, numbers and null.
func (f *Field) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*f = Field{}
		return nil
	case data[0] == '"':
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*f = Field{Text: text}
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(data, &number); err != nil {
		return fmt.Errorf("expected string or number, got %s", truncate(string(data), 32))
	}
	*f = Field{Text: number.String(), Numeric: true}
	return nil
}

// MarshalJSON writes the value back in the kind it was read.
func (f Field) MarshalJSON() ([]byte, error) {
	if f.Numeric && f.Text != "" {
		return []byte(f.Text), nil
	}
	return json.Marshal(f.Text)
}

// RecommendationItem is one ranked loan product. Values are passed through from the
// generative service without range or completeness checks.
type RecommendationItem struct {
	BankName      Field  `json:"bank_name"`
	LoanType      Field  `json:"loan_type"`
	MaxAmount     Field  `json:"max_amount"`
	RepaymentTime Field  `json:"repayment_time"`
	InterestRate  Field  `json:"interest_rate"`
	Rating        Field  `json:"rating"`
	Reason        Field  `json:"reason"`
	Link          *Field `json:"link,omitempty"`
}

// RecommendationSet is the structured answer of the recommendation pipeline.
type RecommendationSet struct {
	Loans []RecommendationItem `json:"loans"`
}

// UnparsedResponse carries model output that could not be parsed, verbatim.
type UnparsedResponse struct {
	RawResponse string `json:"raw_response"`
	Note         string `json:"note"`
}

// Result holds exactly one of Set or Unparsed.
type Result struct {
	Set      *RecommendationSet
	Unparsed *UnparsedResponse
}

// Parsed reports whether the result carries a recommendation set.
func (r Result) Parsed() bool {
	return r.Set != nil
}

// Body returns the arm that should be rendered to the caller.
func (r Result) Body() any {
	if r.Set != nil {
		return r.Set
	}
	return r.Unparsed
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
