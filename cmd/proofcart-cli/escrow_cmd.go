package main

import (
	"flag"
	"fmt"
	"io"
)

func runEscrowCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, escrowUsage())
		return 1
	}
	switch args[0] {
	case "create":
		return runEscrowCreate(args[1:], stdout, stderr)
	case "get":
		return runEscrowGet(args[1:], stdout, stderr)
	case "release":
		return runEscrowActor("escrow_confirmRelease", args[1:], stdout, stderr)
	case "lock":
		return runEscrowActor("escrow_lock", args[1:], stdout, stderr)
	case "dispute":
		return runEscrowActor("escrow_flagDispute", args[1:], stdout, stderr)
	case "resolve-refund":
		return runEscrowActor("escrow_resolveRefund", args[1:], stdout, stderr)
	case "resolve-release":
		return runEscrowActor("escrow_resolveRelease", args[1:], stdout, stderr)
	case "list":
		return runEscrowList(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown escrow subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, escrowUsage())
		return 1
	}
}

func escrowUsage() string {
	return "Usage: proofcart-cli escrow {create|get|release|lock|dispute|resolve-refund|resolve-release|list} [flags]"
}

func runEscrowCreate(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("escrow create", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		buyer   string
		seller  string
		orderID string
		amount  string
	)
	fs.StringVar(&buyer, "buyer", "", "buyer bech32 address")
	fs.StringVar(&seller, "seller", "", "seller bech32 address")
	fs.StringVar(&orderID, "order", "", "order identifier")
	fs.StringVar(&amount, "amount", "", "escrow amount")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	result, err := callRPC("escrow_create", map[string]string{
		"buyer":   buyer,
		"seller":  seller,
		"orderId": orderID,
		"amount":  amount,
	})
	if err != nil {
		fmt.Fprintf(stderr, "escrow create: %v\n", err)
		return 1
	}
	printResult(stdout, result)
	return 0
}

func runEscrowActor(method string, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(method, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		orderID string
		caller  string
	)
	fs.StringVar(&orderID, "order", "", "order identifier")
	fs.StringVar(&caller, "caller", "", "caller bech32 address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	result, err := callRPC(method, map[string]string{
		"orderId": orderID,
		"caller":  caller,
	})
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", method, err)
		return 1
	}
	printResult(stdout, result)
	return 0
}

func runEscrowGet(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("escrow get", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var orderID string
	fs.StringVar(&orderID, "order", "", "order identifier")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	result, err := callRPC("escrow_get", map[string]string{"orderId": orderID})
	if err != nil {
		fmt.Fprintf(stderr, "escrow get: %v\n", err)
		return 1
	}
	printResult(stdout, result)
	return 0
}

func runEscrowList(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("escrow list", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var participant string
	fs.StringVar(&participant, "participant", "", "participant bech32 address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	result, err := callRPC("escrow_listByParticipant", map[string]string{"participant": participant})
	if err != nil {
		fmt.Fprintf(stderr, "escrow list: %v\n", err)
		return 1
	}
	printResult(stdout, result)
	return 0
}
