// Policy Dashboard CLI: полис, кэш балла здоровья и сверка с реестром через Relay Server.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
