package catalog

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-advisor/backend/internal/store"
)

func fixture(t *testing.T) []Entry {
	t.Helper()
	entries, err := LoadCSV(filepath.Join("testdata", "loans.csv"))
	require.NoError(t, err)
	require.Len(t, entries, 10)
	return entries
}

func TestFilterHomeMatchesExactlyThreeRows(t *testing.T) {
	entries := fixture(t)

	selected, fallback := Filter(entries, "home")
	assert.False(t, fallback)
	require.Len(t, selected, 3)
	for _, entry := range selected {
		assert.Contains(t, strings.ToLower(entry.LoanType), "home")
	}
	assert.Equal(t, "State Bank of India", selected[0].BankName)
	assert.Equal(t, "ICICI Bank", selected[2].BankName)
}

func TestFilterProperties(t *testing.T) {
	entries := fixture(t)

	tests := []struct {
		name     string
		query    string
		expected int
		fallback bool
	}{
		{"blank", "   ", 10, false},
		{"empty", "", 10, false},
		{"mixed case", "CaR", 1, false},
		{"substring", "loan", 10, false},
		{"two wheeler", "wheeler", 1, false},
		{"no match falls back", "crypto", 10, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			selected, fallback := Filter(entries, tc.query)
			assert.Equal(t, tc.fallback, fallback)
			require.Len(t, selected, tc.expected)

			if tc.fallback || strings.TrimSpace(tc.query) == "" {
				assert.Equal(t, entries, selected)
				return
			}
			q := strings.ToLower(strings.TrimSpace(tc.query))
			for _, entry := range selected {
				assert.Contains(t, strings.ToLower(entry.LoanType), q)
			}
		})
	}
}

func TestFilterDoesNotMutateCatalog(t *testing.T) {
	cat := New(fixture(t), "fixture")

	selected, _ := cat.Filter("home")
	selected[0].BankName = "changed"
	selected[1].Links[0] = "changed"

	all := cat.Entries()
	all[3].LoanType = "changed"

	again, _ := cat.Filter("home")
	assert.Equal(t, "State Bank of India", again[0].BankName)
	assert.Equal(t, "https://hdfc.example/home", again[1].Links[0])
	assert.Equal(t, "Car Loan", cat.Entries()[3].LoanType)
	assert.Equal(t, 10, cat.Len())
}

func TestParseCSVNormalizesRatesAndLinks(t *testing.T) {
	entries := fixture(t)

	hdfc := entries[1]
	assert.True(t, hdfc.HasWebsiteRate())
	assert.Equal(t, []string{"https://hdfc.example/home", "https://hdfc.example/rates"}, hdfc.Links)

	kotak := entries[4]
	assert.Equal(t, SeeWebsite, kotak.InterestRate, "blank rate becomes the website sentinel")

	canara := entries[7]
	assert.Equal(t, SeeWebsite, canara.InterestRate)

	sbi := entries[0]
	assert.Equal(t, "8.50%", sbi.InterestRate)
	assert.Equal(t, "10 Crore", sbi.MaxAmount)
	assert.Equal(t, "30 years", sbi.RepaymentTime)
	assert.False(t, sbi.HasWebsiteRate())
}

func TestParseCSVHeaderVariants(t *testing.T) {
	csv := "\ufeffbank,loan_type,max_loan_amount,tenure,rate_of_interest,links\n" +
		"SBI,Home Loan,1 Cr,20y,8%,https://a.example; https://b.example\n"
	entries, err := ParseCSV(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, Entry{
		BankName:      "SBI",
		LoanType:      "Home Loan",
		MaxAmount:     "1 Cr",
		RepaymentTime: "20y",
		InterestRate:  "8%",
		Links:         []string{"https://a.example", "https://b.example"},
	}, entries[0])

	_, err = ParseCSV(strings.NewReader("name,amount\nfoo,1\n"))
	require.Error(t, err)

	_, err = ParseCSV(strings.NewReader(""))
	require.Error(t, err)
}

func TestLoadFallsBackToStoredCatalog(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "catalog.db"), true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	path := filepath.Join("testdata", "loans.csv")
	loaded, err := Load(path, db)
	require.NoError(t, err)
	assert.Equal(t, 10, loaded.Len())

	restored, err := Load(filepath.Join(t.TempDir(), "missing.csv"), db)
	require.NoError(t, err)
	assert.Equal(t, loaded.Entries(), restored.Entries())
	assert.Equal(t, path, restored.Source())
}

func TestLoadWithoutCatalogFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.csv"), nil)
	require.ErrorIs(t, err, ErrNoCatalog)

	db, err := store.Open(filepath.Join(t.TempDir(), "empty.db"), true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = Load(filepath.Join(t.TempDir(), "missing.csv"), db)
	require.ErrorIs(t, err, ErrNoCatalog)
}
