package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"pharmacy_inventory/internal/inventory"
	"pharmacy_inventory/internal/store"
)

const adjustMenu = `
1) Update quantity by delta
2) Exit
Choose an option: `

// QuantityAdjuster is the part of the inventory service the loop needs.
type QuantityAdjuster interface {
	AdjustQuantity(ctx context.Context, name, deltaRaw string) (int, error)
}

// RunAdjustLoop reads menu choices from in until "2" or end of input.
// Rejected changes are reported and the loop goes on; a storage fault ends
// the loop with an error.
func RunAdjustLoop(ctx context.Context, in io.Reader, out io.Writer, svc QuantityAdjuster) error {
	scanner := bufio.NewScanner(in)
	prompt := func(label string) (string, bool) {
		fmt.Fprint(out, label)
		if !scanner.Scan() {
			return "", false
		}
		return strings.TrimSpace(scanner.Text()), true
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		choice, ok := prompt(adjustMenu)
		if !ok {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		switch choice {
		case "1":
			name, ok := prompt("Product name: ")
			if !ok {
				fmt.Fprintln(out)
				return scanner.Err()
			}
			delta, ok := prompt("Quantity change (e.g. 10 or -5): ")
			if !ok {
				fmt.Fprintln(out)
				return scanner.Err()
			}

			qty, err := svc.AdjustQuantity(ctx, name, delta)
			if err != nil {
				if errors.Is(err, store.ErrUnavailable) {
					return userFacing(err)
				}
				fmt.Fprintf(out, "Not updated: %s\n", inventory.UserMessage(err))
				continue
			}
			fmt.Fprintf(out, "%s quantity is now %d\n", strings.TrimSpace(name), qty)
		case "2":
			fmt.Fprintln(out, "Goodbye")
			return nil
		default:
			fmt.Fprintln(out, "Please enter 1 or 2")
		}
	}
}
