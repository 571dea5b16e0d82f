package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/danielpatrickdp/adlocal/go-engine/internal/replay"
)

// #region main

func main() {
	fixturePath := flag.String("fixture", "", "path to fixture JSON")
	flag.Parse()

	if *fixturePath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay --fixture path/to/fixture.json")
		os.Exit(2)
	}

	f, err := replay.LoadFixture(*fixturePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		os.Exit(2)
	}

	results, summary, err := replay.Replay(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		os.Exit(2)
	}

	printResults(results, summary)

	mismatches := replay.Verify(results, f.Expected)
	for _, m := range mismatches {
		fmt.Fprintf(os.Stderr, "MISMATCH %s\n", m)
	}
	if len(mismatches) > 0 {
		os.Exit(1)
	}
}

// #endregion main

// #region output

func printResults(results []replay.StepResult, summary replay.Summary) {
	fmt.Printf("%-5s  %-10s  %-7s  %-15s  %-12s  %s\n", "Step", "Kind", "Served", "Reason", "Ad", "Survey")
	for _, r := range results {
		served := ""
		if r.Served {
			served = "yes"
		}
		fmt.Printf("%-5d  %-10s  %-7s  %-15s  %-12s  %s\n", r.Step, r.Kind, served, r.Reason, r.AdID, r.Survey)
	}

	fmt.Printf("\nSummary: %d steps, %d ads, %d surveys, %d queued records, %d impressions\n",
		summary.TotalSteps, summary.AdsServed, summary.SurveysServed, summary.QueueLen, summary.Impressions)

	if len(summary.Skipped) > 0 {
		reasons := make([]string, 0, len(summary.Skipped))
		for r := range summary.Skipped {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		fmt.Println("Skipped cycles:")
		for _, r := range reasons {
			fmt.Printf("  %-18s %d\n", r, summary.Skipped[r])
		}
	}
}

// #endregion output
