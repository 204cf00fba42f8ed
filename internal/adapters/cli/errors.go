package cli

import (
	"errors"
	"fmt"

	"github.com/ibrahim-bhat/Billflow-updated-sub001/internal/core"
)

// describeError turns core failures into one line an operator can act on.
func describeError(err error) string {
	var stockErr *core.InsufficientStockError
	var lineErr *core.LineItemError
	var concErr *core.ConcurrencyError

	switch {
	case errors.As(err, &stockErr):
		return fmt.Sprintf("not enough stock: %s. Reduce the quantity or pick another batch.", stockErr.Error())
	case errors.As(err, &lineErr):
		return fmt.Sprintf("invalid input: %s", lineErr.Error())
	case errors.As(err, &concErr):
		return fmt.Sprintf("the records were busy (%d attempts); nothing was saved, try again", concErr.Attempts)
	case errors.Is(err, core.ErrSettlementCalculation):
		return fmt.Sprintf("cannot settle: %v", err)
	default:
		return err.Error()
	}
}
