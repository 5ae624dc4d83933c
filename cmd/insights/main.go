// insights manages trace analyses, hypotheses and issues stored as
// artifacts on MLflow runs.
//
// Usage:
//
//	insights analysis create --experiment-id <id> --run-name <name> --name <name> --description <desc>
//	insights hypothesis create --run-id <id> --statement <s> --rationale <r> --testing-plan <p> [--evidence <json>...]
//	insights issue list --experiment-id <id> [--output table|json]
//	insights census create --run-id <id> --table-name <table> --warehouse-db <path>
//	insights serve
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
