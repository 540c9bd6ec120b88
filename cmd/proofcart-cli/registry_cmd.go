package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

func runRegistryCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, registryUsage())
		return 1
	}
	switch args[0] {
	case "mint":
		return runRegistryMint(args[1:], stdout, stderr)
	case "get":
		return runRegistryToken("registry_get", args[1:], stdout, stderr)
	case "verify":
		return runRegistryVerify(args[1:], stdout, stderr)
	case "transfer":
		return runRegistryTransfer(args[1:], stdout, stderr)
	case "tokens":
		return runRegistryTokens(args[1:], stdout, stderr)
	case "history":
		return runRegistryToken("registry_history", args[1:], stdout, stderr)
	case "total":
		return runRegistryTotal(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown registry subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, registryUsage())
		return 1
	}
}

func registryUsage() string {
	return "Usage: proofcart-cli registry {mint|get|verify|transfer|tokens|history|total} [flags]"
}

func runRegistryMint(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("registry mint", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		owner        string
		serial       string
		product      string
		manufacturer string
		metadata     string
	)
	fs.StringVar(&owner, "owner", "", "owner bech32 address")
	fs.StringVar(&serial, "serial", "", "product serial number")
	fs.StringVar(&product, "product", "", "product name")
	fs.StringVar(&manufacturer, "manufacturer", "", "manufacturer name")
	fs.StringVar(&metadata, "metadata", "", "metadata URI")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	result, err := callRPC("registry_mint", map[string]string{
		"caller":       owner,
		"serialNumber": serial,
		"productName":  product,
		"manufacturer": manufacturer,
		"metadataUri":  metadata,
	})
	if err != nil {
		fmt.Fprintf(stderr, "registry mint: %v\n", err)
		return 1
	}
	printResult(stdout, result)
	return 0
}

func runRegistryToken(method string, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(method, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var tokenID uint64
	fs.Uint64Var(&tokenID, "token", 0, "token identifier")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	result, err := callRPC(method, map[string]uint64{"id": tokenID})
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", method, err)
		return 1
	}
	printResult(stdout, result)
	return 0
}

func runRegistryVerify(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("registry verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var serials string
	fs.StringVar(&serials, "serial", "", "serial number, or comma-separated serial numbers")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	parts := strings.Split(serials, ",")
	if len(parts) > 1 {
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			trimmed = append(trimmed, strings.TrimSpace(p))
		}
		result, err := callRPC("registry_batchVerify", map[string][]string{"serialNumbers": trimmed})
		if err != nil {
			fmt.Fprintf(stderr, "registry verify: %v\n", err)
			return 1
		}
		printResult(stdout, result)
		return 0
	}
	result, err := callRPC("registry_verify", map[string]string{"serialNumber": strings.TrimSpace(serials)})
	if err != nil {
		fmt.Fprintf(stderr, "registry verify: %v\n", err)
		return 1
	}
	printResult(stdout, result)
	return 0
}

func runRegistryTransfer(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("registry transfer", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		tokenID uint64
		caller  string
		to      string
	)
	fs.Uint64Var(&tokenID, "token", 0, "token identifier")
	fs.StringVar(&caller, "caller", "", "current owner bech32 address")
	fs.StringVar(&to, "to", "", "recipient bech32 address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	result, err := callRPC("registry_transfer", map[string]interface{}{
		"id":       tokenID,
		"caller":   caller,
		"newOwner": to,
	})
	if err != nil {
		fmt.Fprintf(stderr, "registry transfer: %v\n", err)
		return 1
	}
	printResult(stdout, result)
	return 0
}

func runRegistryTokens(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("registry tokens", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var owner string
	fs.StringVar(&owner, "owner", "", "owner bech32 address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	result, err := callRPC("registry_tokensOf", map[string]string{"owner": owner})
	if err != nil {
		fmt.Fprintf(stderr, "registry tokens: %v\n", err)
		return 1
	}
	printResult(stdout, result)
	return 0
}

func runRegistryTotal(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("registry total", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	result, err := callRPC("registry_total", nil)
	if err != nil {
		fmt.Fprintf(stderr, "registry total: %v\n", err)
		return 1
	}
	printResult(stdout, result)
	return 0
}
