// # cmd/rtinfer/main.go
package main

import (
	"os"

	"rtinfer/internal/ui/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
