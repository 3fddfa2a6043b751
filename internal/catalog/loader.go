package catalog

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"

	"loan-advisor/backend/internal/store"
)

// ErrNoCatalog is returned when neither the CSV nor the database mirror yields any entries.
var ErrNoCatalog = errors.New("loan catalog unavailable")

type columns struct {
	bank     int
	loanType int
	amount   int
	term     int
	rate     int
	links    []int
}

// Load reads the catalog CSV at path. When db is non-nil the parsed rows replace the stored
// mirror; if the CSV cannot be read, the last mirrored catalog is served instead.
func Load(path string, db *store.Database) (*Catalog, error) {
	path = strings.TrimSpace(path)
	entries, csvErr := LoadCSV(path)
	if csvErr == nil && len(entries) > 0 {
		if db != nil {
			if err := db.ReplaceLoanProducts(toProducts(entries, path)); err != nil {
				logrus.WithError(err).Warn("mirror loan catalog")
			}
		}
		logrus.WithFields(logrus.Fields{
			"path":    path,
			"entries": len(entries),
		}).Info("loan catalog loaded")
		return New(entries, path), nil
	}
	if csvErr == nil {
		csvErr = fmt.Errorf("catalog %s has no rows", path)
	}
	if db == nil {
		return nil, fmt.Errorf("%w: %v", ErrNoCatalog, csvErr)
	}

	logrus.WithError(csvErr).Warn("read loan catalog csv; falling back to stored catalog")
	products, err := db.ListLoanProducts()
	if err != nil {
		return nil, fmt.Errorf("%w: %v; list stored catalog: %v", ErrNoCatalog, csvErr, err)
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("%w: %v; stored catalog is empty", ErrNoCatalog, csvErr)
	}
	entries = fromProducts(products)
	source := products[0].Source
	logrus.WithFields(logrus.Fields{
		"source":  source,
		"entries": len(entries),
	}).Info("loan catalog restored from database")
	return New(entries, source), nil
}

// LoadCSV opens and parses a catalog CSV file.
func LoadCSV(path string) ([]Entry, error) {
	if path == "" {
		return nil, errors.New("catalog path is empty")
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer file.Close()
	return ParseCSV(bufio.NewReader(file))
}

// ParseCSV reads catalog rows. The first row must be a header naming at least the bank and
// loan type columns; amount, repayment, rate and link columns are optional.
func ParseCSV(r io.Reader) ([]Entry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("catalog is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog header: %w", err)
	}
	cols, err := detectColumns(header)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read catalog row: %w", err)
		}
		bank := cell(row, cols.bank)
		if bank == "" {
			continue
		}
		entry := Entry{
			BankName:      bank,
			LoanType:      cell(row, cols.loanType),
			MaxAmount:     cell(row, cols.amount),
			RepaymentTime: cell(row, cols.term),
			InterestRate:  normalizeRate(cell(row, cols.rate)),
		}
		for _, idx := range cols.links {
			entry.Links = append(entry.Links, splitLinks(cell(row, idx))...)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func detectColumns(header []string) (columns, error) {
	cols := columns{bank: -1, loanType: -1, amount: -1, term: -1, rate: -1}
	for idx, raw := range header {
		name := normalizeHeader(raw)
		switch {
		case cols.bank < 0 && strings.Contains(name, "bank"):
			cols.bank = idx
		case cols.loanType < 0 && strings.Contains(name, "type"):
			cols.loanType = idx
		case cols.amount < 0 && (strings.Contains(name, "amount") || strings.HasPrefix(name, "max")):
			cols.amount = idx
		case cols.term < 0 && (strings.Contains(name, "repayment") || strings.Contains(name, "tenure") || strings.Contains(name, "term")):
			cols.term = idx
		case cols.rate < 0 && (strings.Contains(name, "interest") || strings.Contains(name, "rate")):
			cols.rate = idx
		case strings.Contains(name, "link") || strings.Contains(name, "url") || strings.Contains(name, "website"):
			cols.links = append(cols.links, idx)
		}
	}
	if cols.bank < 0 {
		return cols, errors.New("catalog header has no bank name column")
	}
	if cols.loanType < 0 {
		return cols, errors.New("catalog header has no loan type column")
	}
	return cols, nil
}

func normalizeHeader(value string) string {
	value = strings.TrimPrefix(value, "\ufeff")
	value = strings.ToLower(strings.TrimSpace(value))
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, value)
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func normalizeRate(value string) string {
	if value == "" || strings.EqualFold(value, SeeWebsite) {
		return SeeWebsite
	}
	return value
}

func splitLinks(value string) []string {
	return strings.FieldsFunc(value, func(r rune) bool {
		return unicode.IsSpace(r) || r == ';' || r == '|' || r == ','
	})
}

func toProducts(entries []Entry, source string) []store.LoanProduct {
	products := make([]store.LoanProduct, 0, len(entries))
	for i, entry := range entries {
		product := store.LoanProduct{
			Position:      i,
			BankName:      entry.BankName,
			LoanType:      entry.LoanType,
			MaxAmount:     entry.MaxAmount,
			RepaymentTime: entry.RepaymentTime,
			InterestRate:  entry.InterestRate,
			Source:        source,
		}
		product.SetLinks(entry.Links)
		products = append(products, product)
	}
	return products
}

func fromProducts(products []store.LoanProduct) []Entry {
	entries := make([]Entry, 0, len(products))
	for i := range products {
		p := &products[i]
		entries = append(entries, Entry{
			BankName:      p.BankName,
			LoanType:      p.LoanType,
			MaxAmount:     p.MaxAmount,
			RepaymentTime: p.RepaymentTime,
			InterestRate:  p.InterestRate,
			Links:         p.Links(),
		})
	}
	return entries
}
