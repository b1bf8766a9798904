// Package main provides the shepherd CLI.
//
// Usage:
//
//	shepherd [flags] <command> [args]
//
// Commands:
//
//	listen    - connect to a tenant's push channel and print envelopes
//	generate  - stream one piece of generated content
//	publish   - post an event to a tenant (dev server)
//
// Configuration:
//
//	Environment variables (TENANT_ID, AUTH_TOKEN, WS_BASE_URL, API_BASE_URL, ...)
//	or a YAML/TOML file passed with -c. Flags override both.
package main

import (
	"fmt"
	"os"

	"github.com/GriffinCanCode/Shepherd/backend/cmd/shepherd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
