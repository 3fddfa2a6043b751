package store

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database wraps the GORM DB handle and exposes repository helpers.
type Database struct {
	gorm *gorm.DB
	mu   sync.Mutex
}

// Open initializes the SQLite-backed database at the provided path.
func Open(path string, silent bool) (*Database, error) {
	cfg := &gorm.Config{}
	if silent {
		cfg.Logger = logger.Default.LogMode(logger.Silent)
	}
	db, err := gorm.Open(sqlite.Open(path), cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&LoanProduct{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		logrus.WithError(err).Warn("enable WAL mode")
	}
	if err := db.Exec("PRAGMA synchronous=NORMAL").Error; err != nil {
		logrus.WithError(err).Warn("set synchronous pragma")
	}
	return &Database{gorm: db}, nil
}

// Close closes the underlying database connection.
func (d *Database) Close() error {
	if d == nil {
		return nil
	}
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ReplaceLoanProducts swaps the stored catalog with the provided rows.
func (d *Database) ReplaceLoanProducts(products []LoanProduct) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&LoanProduct{}).Error; err != nil {
			return err
		}
		if len(products) == 0 {
			return nil
		}
		const batchSize = 250
		return tx.CreateInBatches(products, batchSize).Error
	})
}

// ListLoanProducts returns the stored catalog in ingestion order.
func (d *Database) ListLoanProducts() ([]LoanProduct, error) {
	var products []LoanProduct
	if err := d.gorm.Order("position ASC, id ASC").Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// CountLoanProducts returns the number of stored catalog rows.
func (d *Database) CountLoanProducts() (int64, error) {
	var count int64
	if err := d.gorm.Model(&LoanProduct{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
