package main

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v2"

	"qosflow-go/internal/models"
	"qosflow-go/internal/services/queueing"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "simulate":
		simulateCommand()
	case "queues":
		queuesCommand()
	case "compare":
		compareCommand()
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`QoSFlow Policy Simulator

USAGE:
    policy-simulator <COMMAND> [OPTIONS]

COMMANDS:
    simulate <policy.yaml> [algorithm]   Show per-class bandwidth allocation
    queues <policy.yaml> [algorithm]     Show computed queue parameters
    compare <policy.yaml>                Run every algorithm side by side
    help                                 Show this help message

ALGORITHMS:
    cbwfq (default), llq, fq_codel, drr

EXAMPLES:
    policy-simulator simulate office.yaml            # CBWFQ allocation
    policy-simulator simulate office.yaml llq        # LLQ allocation
    policy-simulator queues office.yaml fq_codel     # FQ-CoDel queue parameters
    policy-simulator compare office.yaml             # All algorithms
`)
}

func loadPolicy(path string) *models.QoSPolicy {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Failed to read policy file: %v", err)
	}

	var policy models.QoSPolicy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		log.Fatalf("Failed to parse policy file: %v", err)
	}
	return &policy
}

func algorithmArg(position int) queueing.Kind {
	if len(os.Args) > position {
		return queueing.Kind(os.Args[position])
	}
	return queueing.KindCBWFQ
}

func simulateCommand() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: policy-simulator simulate <policy.yaml> [algorithm]")
		os.Exit(1)
	}

	policy := loadPolicy(os.Args[2])
	kind := algorithmArg(3)

	allocations, err := queueing.AllocateBandwidth(policy, kind)
	if err != nil {
		log.Fatalf("Allocation failed: %v", err)
	}

	printAllocations(policy, kind, allocations)
}

func queuesCommand() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: policy-simulator queues <policy.yaml> [algorithm]")
		os.Exit(1)
	}

	policy := loadPolicy(os.Args[2])
	kind := algorithmArg(3)

	algorithm, err := queueing.New(kind)
	if err != nil {
		log.Fatalf("Unknown algorithm: %v", err)
	}
	configs, err := algorithm.Calculate(policy)
	if err != nil {
		log.Fatalf("Calculation failed: %v", err)
	}

	fmt.Printf("\nQueue parameters for policy %q (%s, limit %d kbps):\n",
		policy.Name, kind, policy.BandwidthLimit)
	fmt.Println("==========================================================")
	for _, cfg := range configs {
		fmt.Printf("\n  %s (priority %d)\n", cfg.Class.Name, cfg.Class.Priority)
		fmt.Printf("    service rate:   %d kbps (%.1f%%)\n",
			cfg.Queue.ServiceRate, cfg.Queue.BandwidthPercent)
		fmt.Printf("    weight:         %.1f\n", cfg.Queue.Weight)
		fmt.Printf("    buffer size:    %d packets\n", cfg.Queue.BufferSize)
		fmt.Printf("    queue limit:    %d packets\n", cfg.Queue.QueueLimit)
		if cfg.Queue.TargetDelayMs > 0 {
			fmt.Printf("    target delay:   %d ms (interval %d ms)\n",
				cfg.Queue.TargetDelayMs, cfg.Queue.IntervalMs)
		}
		if cfg.Queue.Quantum > 0 {
			fmt.Printf("    quantum:        %d bytes\n", cfg.Queue.Quantum)
		}
		if cfg.Queue.Flows > 0 {
			fmt.Printf("    flows:          %d\n", cfg.Queue.Flows)
		}
		fmt.Printf("    congestion:     %s", cfg.Congestion.Algorithm)
		if cfg.Congestion.MaxThreshold > 0 {
			fmt.Printf(" (min %d, max %d, drop %.2f)",
				cfg.Congestion.MinThreshold, cfg.Congestion.MaxThreshold,
				cfg.Congestion.DropProbability)
		}
		fmt.Println()
	}
}

func compareCommand() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: policy-simulator compare <policy.yaml>")
		os.Exit(1)
	}

	policy := loadPolicy(os.Args[2])

	for _, kind := range []queueing.Kind{
		queueing.KindCBWFQ, queueing.KindLLQ, queueing.KindFQCoDel, queueing.KindDRR,
	} {
		allocations, err := queueing.AllocateBandwidth(policy, kind)
		if err != nil {
			fmt.Printf("\n%s: ✗ %v\n", kind, err)
			continue
		}
		printAllocations(policy, kind, allocations)
	}
}

func printAllocations(policy *models.QoSPolicy, kind queueing.Kind, allocations []models.BandwidthAllocation) {
	fmt.Printf("\nBandwidth allocation for policy %q (%s, limit %d kbps):\n",
		policy.Name, kind, policy.BandwidthLimit)
	fmt.Println("==========================================================")
	fmt.Printf("  %-16s %4s %12s %10s %10s %8s\n",
		"CLASS", "PRIO", "GUARANTEED", "EXCESS", "TOTAL", "SHARE")

	total := 0
	for _, a := range allocations {
		marker := ""
		if a.StrictPriority {
			marker = " *"
		}
		fmt.Printf("  %-16s %4d %10d k %8d k %8d k %6.1f%%%s\n",
			a.ClassName, a.Priority, a.GuaranteedKbps, a.ExcessShareKbps,
			a.TotalKbps, a.BandwidthPercent, marker)
		total += a.TotalKbps
	}
	fmt.Printf("\n  allocated: %d of %d kbps", total, policy.BandwidthLimit)
	fmt.Println("\n  (* strict priority: excess never granted)")
}
