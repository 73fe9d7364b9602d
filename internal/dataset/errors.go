package dataset

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyInventory is returned when a balance is requested for an inventory
// without any label classes.
var ErrEmptyInventory = errors.New("inventory has no label classes")

// PartialBalanceError is returned when a removal fails part way through a
// plan. Classes listed in Balanced reached the target; classes in Unbalanced
// did not. Label and Sample name the removal that failed.
type PartialBalanceError struct {
	Target     int
	Balanced   []string
	Unbalanced []string
	Label      string
	Sample     string
	Removed    int
	Err        error
}

func (e *PartialBalanceError) Error() string {
	return fmt.Sprintf(
		"partial balance to %d: removing %s/%s failed after %d removals: %v (balanced: [%s], unbalanced: [%s])",
		e.Target, e.Label, e.Sample, e.Removed, e.Err,
		strings.Join(e.Balanced, ", "), strings.Join(e.Unbalanced, ", "),
	)
}

func (e *PartialBalanceError) Unwrap() error {
	return e.Err
}
