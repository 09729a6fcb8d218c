package main

import (
	"os"

	"pharmacy_inventory/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
