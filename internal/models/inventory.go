package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SizeRecord is the stock ledger entry for a single size of a product
type SizeRecord struct {
	Quantity int `json:"quantity"`
	Reserved int `json:"reserved"`
}

// Available returns the number of units that can still be sold
func (r SizeRecord) Available() int {
	return r.Quantity - r.Reserved
}

// SizeInventory maps size labels to their stock records. It is stored as a single
// serialized blob on the owning product.
type SizeInventory map[string]SizeRecord

// SizeInventoryView is the caller-facing representation of one size
type SizeInventoryView struct {
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
	Reserved  int    `json:"reserved"`
	Available int    `json:"available"`
}

// Product is the catalog record that carries the embedded size inventory blob
type Product struct {
	ID            int64     `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Category      string    `db:"category" json:"category"`
	PriceCents    int64     `db:"price_cents" json:"price_cents"`
	SizeInventory string    `db:"size_inventory" json:"-"`
	Version       int64     `db:"version" json:"version"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// DecodeSizeInventory parses a persisted inventory blob.
//
// An empty blob is a product with no tracked sizes and is not an error. A malformed
// blob returns an empty mapping together with a DECODE_FAILURE system error so that
// callers can tell corrupt data apart from "no sizes".
func DecodeSizeInventory(blob string) (SizeInventory, error) {
	if strings.TrimSpace(blob) == "" {
		return SizeInventory{}, nil
	}

	var inventory SizeInventory
	if err := json.Unmarshal([]byte(blob), &inventory); err != nil {
		return SizeInventory{}, NewSystemError(ErrorCodeDecodeFailure, "size_inventory", "malformed inventory blob", err)
	}
	if inventory == nil {
		// JSON "null"
		return SizeInventory{}, nil
	}

	for size, record := range inventory {
		if record.Quantity < 0 || record.Reserved < 0 {
			return SizeInventory{}, NewSystemError(ErrorCodeDecodeFailure, "size_inventory",
				fmt.Sprintf("negative stock for size %q", size), nil)
		}
		if record.Reserved > record.Quantity {
			return SizeInventory{}, NewSystemError(ErrorCodeDecodeFailure, "size_inventory",
				fmt.Sprintf("reserved %d exceeds quantity %d for size %q", record.Reserved, record.Quantity, size), nil)
		}
	}

	return inventory, nil
}

// Encode serializes the inventory into its persisted form
func (s SizeInventory) Encode() string {
	if len(s) == 0 {
		return "{}"
	}
	// map[string]struct{int,int} always marshals
	data, _ := json.Marshal(map[string]SizeRecord(s))
	return string(data)
}

// Clone returns an independent copy
func (s SizeInventory) Clone() SizeInventory {
	clone := make(SizeInventory, len(s))
	for size, record := range s {
		clone[size] = record
	}
	return clone
}

// Views returns the inventory as a list ordered by size label
func (s SizeInventory) Views() []SizeInventoryView {
	views := make([]SizeInventoryView, 0, len(s))
	for size, record := range s {
		views = append(views, NewSizeInventoryView(size, record))
	}
	sort.SliceStable(views, func(i, j int) bool {
		return LessSize(views[i].Size, views[j].Size)
	})
	return views
}

// HasAvailability reports whether any tracked size can still be sold
func (s SizeInventory) HasAvailability() bool {
	for _, record := range s {
		if record.Available() > 0 {
			return true
		}
	}
	return false
}

// NewSizeInventoryView builds a view for a single size
func NewSizeInventoryView(size string, record SizeRecord) SizeInventoryView {
	return SizeInventoryView{
		Size:      size,
		Quantity:  record.Quantity,
		Reserved:  record.Reserved,
		Available: record.Available(),
	}
}

// NormalizeSize is the canonical form of a size label used as an inventory key
func NormalizeSize(size string) string {
	return strings.TrimSpace(size)
}

// LessSize orders size labels: numeric labels first in ascending numeric order,
// then the remaining labels lexicographically.
func LessSize(a, b string) bool {
	na, errA := strconv.ParseFloat(strings.TrimSpace(a), 64)
	nb, errB := strconv.ParseFloat(strings.TrimSpace(b), 64)

	switch {
	case errA == nil && errB == nil:
		if na != nb {
			return na < nb
		}
		return a < b
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}
