// contentver records and manages the version history of editable content
package main

import (
	"os"

	"github.com/nainya/contentver/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
