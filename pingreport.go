package labnet

//
// Reachability reports
//

import (
	"fmt"
	"time"

	"github.com/montanaflynn/stats"
)

// PingResult is the outcome of probing a single host pair.
type PingResult struct {
	// From is the name of the probing node.
	From string

	// To is the name of the probed node.
	To string

	// Addr is the probed IP address.
	Addr string

	// RTT is the measured round-trip time, valid on success.
	RTT time.Duration

	// Failure describes why the probe failed; empty on success.
	Failure string
}

// Failed returns whether this probe failed.
func (r *PingResult) Failed() bool {
	return r.Failure != ""
}

// String returns a compact human-readable rendering.
func (r *PingResult) String() string {
	if r.Failed() {
		return fmt.Sprintf("%s -> %s (%s): %s", r.From, r.To, r.Addr, r.Failure)
	}
	return fmt.Sprintf("%s -> %s (%s): rtt %s", r.From, r.To, r.Addr, r.RTT)
}

// PingReport is the outcome of an all-pairs reachability probe. A
// report containing failures is still a valid report: unreachable
// pairs are data, not errors, and never prevent stopping a network.
type PingReport struct {
	// Results contains one entry per unordered host pair.
	Results []PingResult
}

// FailedPairs returns the results that failed.
func (pr *PingReport) FailedPairs() []PingResult {
	var failed []PingResult
	for _, result := range pr.Results {
		if result.Failed() {
			failed = append(failed, result)
		}
	}
	return failed
}

// Summary returns a one-line aggregate such as
//
//	0 of 15 pings failed; rtt min/avg/max = 0.041/0.057/0.102 ms
//
// where the RTT aggregates are omitted when every probe failed.
func (pr *PingReport) Summary() string {
	failed := len(pr.FailedPairs())
	summary := fmt.Sprintf("%d of %d pings failed", failed, len(pr.Results))
	var rtts []float64
	for _, result := range pr.Results {
		if !result.Failed() {
			rtts = append(rtts, float64(result.RTT)/float64(time.Millisecond))
		}
	}
	if len(rtts) > 0 {
		minRTT, _ := stats.Min(rtts)
		avgRTT, _ := stats.Mean(rtts)
		maxRTT, _ := stats.Max(rtts)
		summary += fmt.Sprintf("; rtt min/avg/max = %.3f/%.3f/%.3f ms", minRTT, avgRTT, maxRTT)
	}
	return summary
}
