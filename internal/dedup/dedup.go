// Package dedup detects invoices that were already accepted.
package dedup

import (
	"fmt"
	"sync"

	"github.com/zombor/invoice-intake/internal/invoice"
	"github.com/zombor/invoice-intake/internal/textnorm"
)

// Index is the set of accepted invoice keys
type Index interface {
	Contains(key invoice.Key) (bool, error)
	Insert(key invoice.Key) error
}

// Claimer is an Index that can check and insert in one step
type Claimer interface {
	Index
	// InsertIfAbsent inserts key and reports whether it was inserted
	InsertIfAbsent(key invoice.Key) (bool, error)
}

// KeyFor builds the duplicate key of a candidate. It reports false when the
// vendor, number or amount is absent.
func KeyFor(c invoice.CandidateInvoice) (invoice.Key, bool) {
	if c.VendorName == nil || c.InvoiceNumber == nil || c.Amount == nil {
		return invoice.Key{}, false
	}
	return invoice.Key{
		Vendor: textnorm.FoldKey(*c.VendorName),
		Number: textnorm.FoldKey(*c.InvoiceNumber),
		Amount: c.Amount.String(),
	}, true
}

// MemoryIndex is an in-process Index
type MemoryIndex struct {
	mu   sync.RWMutex
	keys map[string]struct{}
}

// NewMemoryIndex creates an empty MemoryIndex
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{keys: make(map[string]struct{})}
}

func (m *MemoryIndex) Contains(key invoice.Key) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.keys[key.String()]
	return ok, nil
}

func (m *MemoryIndex) Insert(key invoice.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key.String()] = struct{}{}
	return nil
}

func (m *MemoryIndex) InsertIfAbsent(key invoice.Key) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key.String()
	if _, ok := m.keys[k]; ok {
		return false, nil
	}
	m.keys[k] = struct{}{}
	return true, nil
}

// Len returns the number of keys held
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keys)
}

// Detector consults an Index on behalf of the pipeline
type Detector struct {
	index Index
}

// NewDetector creates a Detector over index
func NewDetector(index Index) *Detector {
	return &Detector{index: index}
}

// IsDuplicate reports whether the candidate matches an accepted invoice.
// Rejected verdicts and candidates without a full key are never duplicates.
func (d *Detector) IsDuplicate(c invoice.CandidateInvoice, verdict invoice.Verdict) (bool, invoice.Key, error) {
	if verdict.Status == invoice.StatusRejected {
		return false, invoice.Key{}, nil
	}
	key, ok := KeyFor(c)
	if !ok {
		return false, invoice.Key{}, nil
	}
	found, err := d.index.Contains(key)
	if err != nil {
		return false, key, fmt.Errorf("checking duplicate index: %w", err)
	}
	return found, key, nil
}

// Claim registers key as accepted. It reports false when the key was already
// present. Indexes that are not a Claimer fall back to Contains then Insert.
func (d *Detector) Claim(key invoice.Key) (bool, error) {
	if claimer, ok := d.index.(Claimer); ok {
		inserted, err := claimer.InsertIfAbsent(key)
		if err != nil {
			return false, fmt.Errorf("claiming duplicate key: %w", err)
		}
		return inserted, nil
	}
	found, err := d.index.Contains(key)
	if err != nil {
		return false, fmt.Errorf("checking duplicate index: %w", err)
	}
	if found {
		return false, nil
	}
	if err := d.index.Insert(key); err != nil {
		return false, fmt.Errorf("inserting duplicate key: %w", err)
	}
	return true, nil
}
