package walletstatedb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcutil"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Ledger is the SQLite payment ledger.
type Ledger struct {
	db *gorm.DB
}

// InitSQLiteDB opens (creating if needed) the ledger database at dbPath and
// migrates its schema.
func InitSQLiteDB(dbPath string) (*Ledger, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := ensureDir(dir); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// Configure GORM to be less verbose
	config := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	}

	db, err := gorm.Open(sqlite.Open(dbPath), config)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.AutoMigrate(
		&SQLitePayment{},
		&SQLiteMetadata{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Debugf("Payment ledger opened at %s", dbPath)
	return &Ledger{db: db}, nil
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}

// Close closes the underlying database handle.
func (l *Ledger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RecordPayment stores p and returns its ledger ID.
func (l *Ledger) RecordPayment(p Payment) (uint, error) {
	row := SQLitePayment{
		Destination: p.Destination,
		WalletPath:  p.WalletPath,
		Amount:      int64(p.Amount),
		Fee:         int64(p.Fee),
		Required:    int64(p.Required),
		Available:   int64(p.Available),
		Sweep:       p.Sweep,
		Status:      p.Status,
		TxID:        p.TxID,
		RawTx:       p.RawTx,
		Message:     p.Message,
	}
	if err := l.db.Create(&row).Error; err != nil {
		return 0, fmt.Errorf("failed to record payment: %w", err)
	}

	log.Debugf("Recorded payment %d to %s (%s)", row.ID, p.Destination, p.Status)
	return row.ID, nil
}

// ListPayments returns the most recent payments first. A limit of zero or
// less returns all of them.
func (l *Ledger) ListPayments(limit int) ([]Payment, error) {
	var rows []SQLitePayment

	query := l.db.Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	payments := make([]Payment, len(rows))
	for i, row := range rows {
		payments[i] = Payment{
			ID:          row.ID,
			Destination: row.Destination,
			WalletPath:  row.WalletPath,
			Amount:      btcutil.Amount(row.Amount),
			Fee:         btcutil.Amount(row.Fee),
			Required:    btcutil.Amount(row.Required),
			Available:   btcutil.Amount(row.Available),
			Sweep:       row.Sweep,
			Status:      row.Status,
			TxID:        row.TxID,
			RawTx:       row.RawTx,
			Message:     row.Message,
			CreatedAt:   row.CreatedAt,
		}
	}

	return payments, nil
}

// SetMetadata stores value under key, replacing any previous value.
func (l *Ledger) SetMetadata(key, value string) error {
	var metadata SQLiteMetadata

	// Check if the key already exists
	result := l.db.Where("key = ?", key).First(&metadata)
	if result.Error == nil {
		return l.db.Model(&metadata).Update("value", value).Error
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return result.Error
	}

	metadata = SQLiteMetadata{
		Key:   key,
		Value: value,
	}
	return l.db.Create(&metadata).Error
}

// GetMetadata returns the value stored under key, or "" if there is none.
func (l *Ledger) GetMetadata(key string) (string, error) {
	var metadata SQLiteMetadata

	result := l.db.Where("key = ?", key).First(&metadata)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", result.Error
	}

	return metadata.Value, nil
}
