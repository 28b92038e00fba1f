package intake

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/zombor/invoice-intake/internal/invoice"
)

const (
	invoiceBucketName = "invoices"
	keyBucketName     = "keys"
	resultBucketName  = "results"
	reviewBucketName  = "reviews"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an invoice with the same key is stored
	ErrDuplicate = errors.New("duplicate invoice")
)

// DB defines the interface for database operations. It doubles as the
// duplicate index of accepted invoice keys.
type DB interface {
	// StoreInvoice saves an invoice and claims its key in one transaction.
	// It returns ErrDuplicate when the key is already claimed.
	StoreInvoice(inv *Invoice) error

	// GetInvoice retrieves an invoice by ID
	GetInvoice(id string) (*Invoice, error)

	// ListInvoices returns all invoices, oldest first
	ListInvoices() ([]*Invoice, error)

	// SaveResult appends a processing record to the audit trail
	SaveResult(rec *Record) error

	// ListResults returns the audit trail, oldest first
	ListResults() ([]*Record, error)

	SaveReview(review *Review) error
	GetReview(id string) (*Review, error)
	ListReviews() ([]*Review, error)
	DeleteReview(id string) error

	// Contains reports whether a key was claimed by a stored invoice
	Contains(key invoice.Key) (bool, error)
	// Insert claims a key without an invoice
	Insert(key invoice.Key) error
	// InsertIfAbsent claims a key and reports whether it was free
	InsertIfAbsent(key invoice.Key) (bool, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{invoiceBucketName, keyBucketName, resultBucketName, reviewBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// StoreInvoice saves an invoice unless its key is already claimed
func (b *BoltDB) StoreInvoice(inv *Invoice) error {
	data, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("marshaling invoice: %w", err)
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		keys := tx.Bucket([]byte(keyBucketName))
		k := []byte(inv.Key.String())
		if keys.Get(k) != nil {
			return ErrDuplicate
		}
		if err := keys.Put(k, []byte(inv.ID)); err != nil {
			return fmt.Errorf("claiming key: %w", err)
		}
		return tx.Bucket([]byte(invoiceBucketName)).Put([]byte(inv.ID), data)
	})
}

// GetInvoice retrieves an invoice by ID
func (b *BoltDB) GetInvoice(id string) (*Invoice, error) {
	var inv *Invoice
	if err := b.get(invoiceBucketName, id, &inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// ListInvoices returns all invoices
func (b *BoltDB) ListInvoices() ([]*Invoice, error) {
	invoices := make([]*Invoice, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(invoiceBucketName)).ForEach(func(k, v []byte) error {
			var inv Invoice
			if err := json.Unmarshal(v, &inv); err != nil {
				return fmt.Errorf("unmarshaling invoice: %w", err)
			}
			invoices = append(invoices, &inv)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(invoices, func(i, j int) bool { return invoices[i].CreatedAt.Before(invoices[j].CreatedAt) })
	return invoices, nil
}

// SaveResult saves a processing record
func (b *BoltDB) SaveResult(rec *Record) error {
	return b.put(resultBucketName, rec.ID, rec)
}

// ListResults returns all processing records
func (b *BoltDB) ListResults() ([]*Record, error) {
	records := make([]*Record, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(resultBucketName)).ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshaling record: %w", err)
			}
			records = append(records, &rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].CreatedAt.Before(records[j].CreatedAt) })
	return records, nil
}

// SaveReview saves a review
func (b *BoltDB) SaveReview(review *Review) error {
	return b.put(reviewBucketName, review.ID, review)
}

// GetReview retrieves a review by ID
func (b *BoltDB) GetReview(id string) (*Review, error) {
	var review *Review
	if err := b.get(reviewBucketName, id, &review); err != nil {
		return nil, err
	}
	return review, nil
}

// ListReviews returns all pending reviews
func (b *BoltDB) ListReviews() ([]*Review, error) {
	reviews := make([]*Review, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(reviewBucketName)).ForEach(func(k, v []byte) error {
			var review Review
			if err := json.Unmarshal(v, &review); err != nil {
				return fmt.Errorf("unmarshaling review: %w", err)
			}
			reviews = append(reviews, &review)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(reviews, func(i, j int) bool { return reviews[i].CreatedAt.Before(reviews[j].CreatedAt) })
	return reviews, nil
}

// DeleteReview removes a review
func (b *BoltDB) DeleteReview(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(reviewBucketName))
		if bucket.Get([]byte(id)) == nil {
			return fmt.Errorf("review %s: %w", id, ErrNotFound)
		}
		return bucket.Delete([]byte(id))
	})
}

// Contains reports whether the key was claimed
func (b *BoltDB) Contains(key invoice.Key) (bool, error) {
	var found bool
	err := b.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket([]byte(keyBucketName)).Get([]byte(key.String())) != nil
		return nil
	})
	return found, err
}

// Insert claims a key
func (b *BoltDB) Insert(key invoice.Key) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(keyBucketName)).Put([]byte(key.String()), []byte{})
	})
}

// InsertIfAbsent claims a key if it is free
func (b *BoltDB) InsertIfAbsent(key invoice.Key) (bool, error) {
	var inserted bool
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(keyBucketName))
		k := []byte(key.String())
		if bucket.Get(k) != nil {
			return nil
		}
		inserted = true
		return bucket.Put(k, []byte{})
	})
	return inserted, err
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}

func (b *BoltDB) put(bucketName, id string, v any) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshaling %s: %w", bucketName, err)
		}
		return tx.Bucket([]byte(bucketName)).Put([]byte(id), data)
	})
}

func (b *BoltDB) get(bucketName, id string, v any) error {
	return b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%s %s: %w", bucketName, id, ErrNotFound)
		}
		return json.Unmarshal(data, v)
	})
}
