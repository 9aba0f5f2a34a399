package main

import (
	"fmt"
	"os"
)

const version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]
	switch command {
	case "compare":
		runCompare(args)
	case "serve":
		runServe(args)
	case "setup":
		runSetup(args)
	case "version":
		fmt.Printf("designparity %s\n", version)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: designparity <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  compare    Compare a Figma design against a live web page")
	fmt.Println("  serve      Start the MCP server on stdio")
	fmt.Println("  setup      Register the MCP server with detected AI agents")
	fmt.Println("  version    Print version")
	fmt.Println("  help       Show this help message")
	fmt.Println()
	fmt.Println("compare usage:")
	fmt.Println("  designparity compare <figma-url> <web-url> [flags]")
	fmt.Println("    --token <t>       Figma personal access token (else FIGMA_ACCESS_TOKEN)")
	fmt.Println("    --mode <m>        connection mode: api, desktop, oauth, or proxy")
	fmt.Println("    --threshold <x>   similarity gate in [0,1]; exit 1 when under it")
	fmt.Println("    --timeout <d>     overall deadline, e.g. 90s (default 2m)")
	fmt.Println("    --format <f>      output format: json or text (default json)")
	fmt.Println("    --config <path>   project config file (default .designparity/config.yaml)")
}
