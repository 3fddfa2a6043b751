package store

import (
	"encoding/json"
	"strings"
	"time"
)

// LoanProduct mirrors one row of the ingested bank loan catalog.
type LoanProduct struct {
	ID            uint      `gorm:"primaryKey"`
	Position      int       `gorm:"index"`
	BankName      string    `gorm:"size:255"`
	LoanType      string    `gorm:"size:255;index"`
	MaxAmount     string    `gorm:"size:255"`
	RepaymentTime string    `gorm:"size:255"`
	InterestRate  string    `gorm:"size:255"`
	LinksJSON     string    `gorm:"type:text"`
	Source        string    `gorm:"size:512"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
}

// SetLinks persists the reference links as JSON.
func (p *LoanProduct) SetLinks(links []string) {
	if links == nil {
		p.LinksJSON = "[]"
		return
	}
	payload, _ := json.Marshal(links)
	p.LinksJSON = string(payload)
}

// Links returns the unmarshalled reference links.
func (p *LoanProduct) Links() []string {
	if strings.TrimSpace(p.LinksJSON) == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(p.LinksJSON), &out); err != nil || len(out) == 0 {
		return nil
	}
	return out
}
