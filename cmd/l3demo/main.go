//go:build linux

// Command l3demo brings up three routed LANs behind a shared
// backbone, prints the addressing plan, probes all-pairs host
// reachability, and tears everything down. It must run as root.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/apex/log"
	"github.com/netlab-go/labnet"
)

func main() {
	verbose := flag.Bool("verbose", false, "emit debug logs")
	cli := flag.Bool("cli", false, "drop into an interactive prompt before stopping")
	flag.Parse()

	log.SetLevel(log.InfoLevel)
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	topology, err := newLayer3Topology()
	if err != nil {
		log.WithError(err).Fatal("invalid topology")
	}

	backend := labnet.NewNetnsBackend(log.Log, "")
	network := labnet.New(topology, backend, log.Log)
	if err := network.Start(); err != nil {
		network.Stop()
		log.WithError(err).Fatal("cannot start network")
	}
	defer network.Stop()

	printPlan()

	report, err := network.PingAll(context.Background())
	if err != nil {
		log.WithError(err).Fatal("cannot run reachability probe")
	}
	fmt.Printf("*** Results: %s\n", report.Summary())
	for _, pair := range report.FailedPairs() {
		fmt.Printf("***   %s\n", pair.String())
	}

	if *cli {
		runPrompt(network)
	}
}

// printPlan emits the addressing plan the way an operator wants to
// read it before interpreting probe results.
func printPlan() {
	fmt.Printf("*** Network configuration:\n")
	fmt.Printf("LAN A: %s (router rA at %s)\n", lanAPrefix, lanAGateway)
	fmt.Printf("  hA1: %s\n", hostA1Addr)
	fmt.Printf("  hA2: %s\n", hostA2Addr)
	fmt.Printf("LAN B: %s (router rB at %s)\n", lanBPrefix, lanBGateway)
	fmt.Printf("  hB1: %s\n", hostB1Addr)
	fmt.Printf("  hB2: %s\n", hostB2Addr)
	fmt.Printf("LAN C: %s (router rC at %s)\n", lanCPrefix, lanCGateway)
	fmt.Printf("  hC1: %s\n", hostC1Addr)
	fmt.Printf("  hC2: %s\n", hostC2Addr)
	fmt.Printf("Router interconnect: %s\n", backbonePrefix)
	fmt.Printf("  rA: %s\n", backboneA)
	fmt.Printf("  rB: %s\n", backboneB)
	fmt.Printf("  rC: %s\n", backboneC)
}

// runPrompt reads "<node> <command>" lines from stdin and executes
// each command inside the named node until EOF or "exit".
func runPrompt(network *labnet.Network) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Printf("labnet> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "exit" || line == "quit":
			return
		case line == "":
		default:
			nodeName, command, _ := strings.Cut(line, " ")
			runPromptCommand(network, nodeName, strings.TrimSpace(command))
		}
		fmt.Printf("labnet> ")
	}
}

// runPromptCommand executes a single prompt command.
func runPromptCommand(network *labnet.Network, nodeName, command string) {
	handle := network.Node(nodeName)
	if handle == nil {
		fmt.Printf("no such node: %s\n", nodeName)
		return
	}
	if command == "" {
		fmt.Printf("usage: <node> <command>\n")
		return
	}
	output, err := handle.Cmd(command)
	fmt.Printf("%s", output)
	if err != nil {
		fmt.Printf("error: %s\n", err.Error())
	}
}
