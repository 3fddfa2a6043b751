package applicant

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// FeatureCount is the width of the classifier input.
const FeatureCount = 11

// FeatureNames lists the request fields in classifier input order.
var FeatureNames = [FeatureCount]string{
	"no_of_dependents",
	"education",
	"self_employed",
	"income_annum",
	"loan_amount",
	"loan_term",
	"cibil_score",
	"residential_assets_value",
	"commercial_assets_value",
	"luxury_assets_value",
	"bank_asset_value",
}

// FeatureVector holds the raw (unscaled) classifier inputs in FeatureNames order.
type FeatureVector []float64

// Profile is the validated applicant record shared by the approval and recommendation pipelines.
type Profile struct {
	Dependents        int     `json:"no_of_dependents" validate:"min=0"`
	Graduate          bool    `json:"education"`
	SelfEmployed      bool    `json:"self_employed"`
	AnnualIncome      float64 `json:"income_annum" validate:"min=0"`
	LoanAmount        float64 `json:"loan_amount" validate:"min=0"`
	LoanTermMonths    float64 `json:"loan_term" validate:"min=0"`
	CreditScore       float64 `json:"cibil_score" validate:"min=0"`
	ResidentialAssets float64 `json:"residential_assets_value" validate:"min=0"`
	CommercialAssets  float64 `json:"commercial_assets_value" validate:"min=0"`
	LuxuryAssets      float64 `json:"luxury_assets_value" validate:"min=0"`
	BankAssets        float64 `json:"bank_asset_value" validate:"min=0"`
	LoanType          string  `json:"loan_type,omitempty"`
}

// ValidationError reports the first missing or malformed request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid field %q: %s", e.Field, e.Reason)
}

// input mirrors the wire payload; nil means the field was absent or null.
type input struct {
	Dependents        *float64 `json:"no_of_dependents" validate:"required,min=0"`
	Education         *float64 `json:"education" validate:"required,binary"`
	SelfEmployed      *float64 `json:"self_employed" validate:"required,binary"`
	AnnualIncome      *float64 `json:"income_annum" validate:"required,min=0"`
	LoanAmount        *float64 `json:"loan_amount" validate:"required,min=0"`
	LoanTermMonths    *float64 `json:"loan_term" validate:"required,min=0"`
	CreditScore       *float64 `json:"cibil_score" validate:"required,min=0"`
	ResidentialAssets *float64 `json:"residential_assets_value" validate:"required,min=0"`
	CommercialAssets  *float64 `json:"commercial_assets_value" validate:"required,min=0"`
	LuxuryAssets      *float64 `json:"luxury_assets_value" validate:"required,min=0"`
	BankAssets        *float64 `json:"bank_asset_value" validate:"required,min=0"`
}

func (in *input) slot(name string) **float64 {
	switch name {
	case "no_of_dependents":
		return &in.Dependents
	case "education":
		return &in.Education
	case "self_employed":
		return &in.SelfEmployed
	case "income_annum":
		return &in.AnnualIncome
	case "loan_amount":
		return &in.LoanAmount
	case "loan_term":
		return &in.LoanTermMonths
	case "cibil_score":
		return &in.CreditScore
	case "residential_assets_value":
		return &in.ResidentialAssets
	case "commercial_assets_value":
		return &in.CommercialAssets
	case "luxury_assets_value":
		return &in.LuxuryAssets
	case "bank_asset_value":
		return &in.BankAssets
	}
	return nil
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// oneof only handles string and integer kinds; flags arrive as float64.
		_ = validate.RegisterValidation("binary", isBinary)
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

func isBinary(fl validator.FieldLevel) bool {
	field := fl.Field()
	switch field.Kind() {
	case reflect.Float32, reflect.Float64:
		v := field.Float()
		return v == 0 || v == 1
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v := field.Int()
		return v == 0 || v == 1
	case reflect.Bool:
		return true
	}
	return false
}

// Parse decodes a JSON request body into a Profile. Numeric fields accept JSON numbers or
// numeric strings; education and self_employed additionally accept booleans and their labels.
func Parse(data []byte) (Profile, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return Profile{}, &ValidationError{Reason: "request body must be a JSON object"}
	}
	if err := expandFeatures(raw); err != nil {
		return Profile{}, err
	}

	var in input
	for _, name := range FeatureNames {
		value, err := coerce(name, raw[name])
		if err != nil {
			return Profile{}, err
		}
		*in.slot(name) = value
	}

	loanType, err := coerceString("loan_type", raw["loan_type"])
	if err != nil {
		return Profile{}, err
	}

	if err := validatorInstance().Struct(&in); err != nil {
		return Profile{}, translate(err)
	}
	if *in.Dependents != math.Trunc(*in.Dependents) {
		return Profile{}, &ValidationError{Field: "no_of_dependents", Reason: "must be a whole number"}
	}

	return Profile{
		Dependents:        int(*in.Dependents),
		Graduate:          *in.Education == 1,
		SelfEmployed:      *in.SelfEmployed == 1,
		AnnualIncome:      *in.AnnualIncome,
		LoanAmount:        *in.LoanAmount,
		LoanTermMonths:    *in.LoanTermMonths,
		CreditScore:       *in.CreditScore,
		ResidentialAssets: *in.ResidentialAssets,
		CommercialAssets:  *in.CommercialAssets,
		LuxuryAssets:      *in.LuxuryAssets,
		BankAssets:        *in.BankAssets,
		LoanType:          strings.TrimSpace(loanType),
	}, nil
}

// expandFeatures accepts the positional form {"features": [11 values]} by copying each value
// onto its named field. Named fields win when both forms are present.
func expandFeatures(raw map[string]json.RawMessage) error {
	packed, ok := raw["features"]
	if !ok {
		return nil
	}
	var values []json.RawMessage
	if err := json.Unmarshal(packed, &values); err != nil {
		return &ValidationError{Field: "features", Reason: "must be an array"}
	}
	if len(values) != FeatureCount {
		return &ValidationError{Field: "features", Reason: fmt.Sprintf("must hold %d values, got %d", FeatureCount, len(values))}
	}
	for i, name := range FeatureNames {
		if _, exists := raw[name]; !exists {
			raw[name] = values[i]
		}
	}
	return nil
}

// Extract maps a profile to the classifier input vector. Booleans encode as 1/0, matching the
// label encoding the classifier was trained with (Graduate = 1, self-employed = 1).
func Extract(p Profile) (FeatureVector, error) {
	if err := validatorInstance().Struct(&p); err != nil {
		return nil, translate(err)
	}
	vector := FeatureVector{
		float64(p.Dependents),
		boolToFloat(p.Graduate),
		boolToFloat(p.SelfEmployed),
		p.AnnualIncome,
		p.LoanAmount,
		p.LoanTermMonths,
		p.CreditScore,
		p.ResidentialAssets,
		p.CommercialAssets,
		p.LuxuryAssets,
		p.BankAssets,
	}
	for i, v := range vector {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &ValidationError{Field: FeatureNames[i], Reason: "must be a finite number"}
		}
	}
	return vector, nil
}

func coerce(field string, raw json.RawMessage) (*float64, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &ValidationError{Field: field, Reason: "must be numeric"}
	}

	var value float64
	switch v := decoded.(type) {
	case float64:
		value = v
	case bool:
		if !isFlag(field) {
			return nil, &ValidationError{Field: field, Reason: "must be numeric"}
		}
		value = boolToFloat(v)
	case string:
		s := strings.TrimSpace(v)
		if flag, ok := flagLabel(field, s); ok {
			value = flag
			break
		}
		parsed, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
		if err != nil {
			return nil, &ValidationError{Field: field, Reason: "must be numeric"}
		}
		value = parsed
	default:
		return nil, &ValidationError{Field: field, Reason: "must be numeric"}
	}

	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, &ValidationError{Field: field, Reason: "must be a finite number"}
	}
	return &value, nil
}

func coerceString(field string, raw json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "", nil
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", &ValidationError{Field: field, Reason: "must be a string"}
	}
	return value, nil
}

func isFlag(field string) bool {
	return field == "education" || field == "self_employed"
}

func flagLabel(field, value string) (float64, bool) {
	switch field {
	case "education":
		switch strings.ToLower(value) {
		case "graduate":
			return 1, true
		case "not graduate", "not_graduate":
			return 0, true
		}
	case "self_employed":
		switch strings.ToLower(value) {
		case "yes", "true":
			return 1, true
		case "no", "false":
			return 0, true
		}
	}
	return 0, false
}

func translate(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Reason: err.Error()}
	}
	fe := fieldErrs[0]
	reason := "is invalid"
	switch fe.Tag() {
	case "required":
		reason = "is required"
	case "min":
		reason = "must be non-negative"
	case "binary":
		reason = "must be 0 or 1"
	}
	return &ValidationError{Field: fe.Field(), Reason: reason}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
