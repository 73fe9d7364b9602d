// Package dataset manages the labeled gesture image dataset: per-class
// inventories, class balancing, and the directory-per-class layout used on
// disk by the capture and preprocessing commands.
package dataset

import (
	"context"
	"sort"
)

// Inventory maps a label class to the identifiers of the samples it owns.
// An inventory is loaded fresh from a SampleStore before each balance run.
type Inventory map[string][]string

// SampleStore is the storage backing an Inventory.
type SampleStore interface {
	// Inventory lists every label class and its sample identifiers.
	Inventory(ctx context.Context) (Inventory, error)

	// Remove deletes one sample. Removal is irreversible.
	Remove(ctx context.Context, label, sample string) error
}

// Labels returns the label classes in lexical order.
func (inv Inventory) Labels() []string {
	labels := make([]string, 0, len(inv))
	for label := range inv {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// Counts returns the number of samples per label.
func (inv Inventory) Counts() map[string]int {
	counts := make(map[string]int, len(inv))
	for label, samples := range inv {
		counts[label] = len(samples)
	}
	return counts
}

// Total returns the number of samples across all labels.
func (inv Inventory) Total() int {
	total := 0
	for _, samples := range inv {
		total += len(samples)
	}
	return total
}

// Min returns the smallest class size and false when the inventory is empty.
func (inv Inventory) Min() (int, bool) {
	if len(inv) == 0 {
		return 0, false
	}
	first := true
	least := 0
	for _, samples := range inv {
		if first || len(samples) < least {
			least = len(samples)
			first = false
		}
	}
	return least, true
}

// Balanced reports whether every class holds the same number of samples.
func (inv Inventory) Balanced() bool {
	least, ok := inv.Min()
	if !ok {
		return true
	}
	for _, samples := range inv {
		if len(samples) != least {
			return false
		}
	}
	return true
}
