// Command docchat is the entry point for the document Q&A assistant.
// It ingests PDF documents into a vector store and answers questions about
// them, either from the CLI or through an HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/docchat/docchat-go/cmd/docchat/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
