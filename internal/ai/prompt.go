package ai

import (
	"fmt"
	"math"
	"strings"

	"github.com/goccy/go-json"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"loan-advisor/backend/internal/applicant"
	"loan-advisor/backend/internal/catalog"
)

const outputExample = `{
  "loans": [
    {
      "bank_name": "Bank name exactly as in the catalog",
      "loan_type": "Loan type exactly as in the catalog",
      "max_amount": "Max amount exactly as in the catalog",
      "repayment_time": "Repayment time exactly as in the catalog",
      "interest_rate": "Interest rate exactly as in the catalog",
      "rating": 8,
      "reason": "One or two sentences on why this loan suits the applicant",
      "link": "Only when interest_rate is \"See website\": a link from the catalog entry"
    }
  ]
}`

// Synthesize renders the instruction text sent to the generative service. The output depends
// only on its arguments.
func Synthesize(profile applicant.Profile, entries []catalog.Entry) string {
	printer := message.NewPrinter(language.English)
	builder := &strings.Builder{}

	builder.WriteString("You are a loan advisor for an Indian bank aggregator. Recommend loans from the catalog below for this applicant.\n\n")

	builder.WriteString("Applicant profile:\n")
	fmt.Fprintf(builder, "- Dependents: %d\n", profile.Dependents)
	fmt.Fprintf(builder, "- Education: %s\n", choose(profile.Graduate, "Graduate", "Not Graduate"))
	fmt.Fprintf(builder, "- Employment: %s\n", choose(profile.SelfEmployed, "Self-employed", "Salaried"))
	fmt.Fprintf(builder, "- Annual income: %s\n", rupees(printer, profile.AnnualIncome))
	fmt.Fprintf(builder, "- Requested loan amount: %s\n", rupees(printer, profile.LoanAmount))
	fmt.Fprintf(builder, "- Loan term: %s months\n", printer.Sprintf("%d", whole(profile.LoanTermMonths)))
	fmt.Fprintf(builder, "- CIBIL score: %d\n", whole(profile.CreditScore))
	fmt.Fprintf(builder, "- Residential assets: %s\n", rupees(printer, profile.ResidentialAssets))
	fmt.Fprintf(builder, "- Commercial assets: %s\n", rupees(printer, profile.CommercialAssets))
	fmt.Fprintf(builder, "- Luxury assets: %s\n", rupees(printer, profile.LuxuryAssets))
	fmt.Fprintf(builder, "- Bank assets: %s\n", rupees(printer, profile.BankAssets))
	loanType := strings.TrimSpace(profile.LoanType)
	if loanType == "" {
		loanType = "any"
	}
	fmt.Fprintf(builder, "- Preferred loan type: %s\n\n", loanType)

	builder.WriteString("Loan catalog (JSON):\n")
	builder.WriteString(catalogJSON(entries))
	builder.WriteString("\n\n")

	builder.WriteString("Instructions:\n")
	fmt.Fprintf(builder, "1. Recommend exactly %d loans from the catalog. Never invent banks or products.\n", MaxRecommendations)
	builder.WriteString("2. Give each loan a rating from 1 to 10 using these rules, in order of importance:\n")
	builder.WriteString("   a. Match with the preferred loan type carries the most weight.\n")
	builder.WriteString("   b. Then suitability of the interest rate and repayment time for the requested term.\n")
	builder.WriteString("   c. Then the applicant's likely eligibility given income, CIBIL score and assets.\n")
	builder.WriteString("   d. Then whether the maximum amount covers the requested loan amount.\n")
	builder.WriteString("3. Order the loans from highest to lowest rating.\n")
	builder.WriteString("4. Keep each reason short and specific to this applicant.\n")
	fmt.Fprintf(builder, "5. Include a \"link\" field only when interest_rate is %q, using a link from that catalog entry. Omit it otherwise.\n", catalog.SeeWebsite)
	builder.WriteString("6. Copy bank_name, loan_type, max_amount, repayment_time and interest_rate exactly as they appear in the catalog.\n\n")

	builder.WriteString("Respond with a single JSON object that mirrors this example exactly:\n")
	builder.WriteString(outputExample)
	builder.WriteString("\n\nReturn only the JSON object. Do not add any text, explanation or markdown before or after it.\n")
	return builder.String()
}

func catalogJSON(entries []catalog.Entry) string {
	if len(entries) == 0 {
		return "[]"
	}
	payload, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(payload)
}

func rupees(printer *message.Printer, amount float64) string {
	return printer.Sprintf("₹%d", whole(amount))
}

func whole(value float64) int64 {
	return int64(math.Round(value))
}

func choose(cond bool, yes, no string) string {
	if cond {
		return yes
	}
	return no
}
