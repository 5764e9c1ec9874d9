// Package main is the entry point of the litexa deployment CLI.
//
// Usage:
//
//	litexa deploy                 # assets, then IAM roles
//	litexa deploy assets          # only sync assets to S3
//	litexa deploy role [NAME...]  # only converge IAM roles
//	litexa artifacts              # print stored artifacts as YAML
//
// Exit Codes:
//
//	0 - command completed
//	1 - any failure; the detailed cause has already been logged
package main

import (
	"os"

	"litexa.dev/litexa/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
