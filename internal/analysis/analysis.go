// Package analysis turns recorded position logs into inter-arrival statistics.
//
// An arrival is a step at which a train sits exactly on a stop after having
// been elsewhere the step before. Inter-arrival samples are the gaps between
// consecutive arrivals of any train at the same stop.
package analysis

import (
	"math"
	"slices"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"ring-simulator/internal/history"
)

// Summary is the population mean and standard deviation of a sample list.
// Both are NaN when Samples is empty.
type Summary struct {
	Mean    float64
	Std     float64
	Samples []int
}

// Degenerate reports whether no inter-arrival gap was observed, in which
// case Mean and Std are NaN.
func (s Summary) Degenerate() bool { return len(s.Samples) == 0 }

// StopSummary is the Summary for one stop coordinate across all logs.
type StopSummary struct {
	Stop float64
	Summary
}

// ArrivalTimes returns the ascending steps at which any train arrived at stop.
// Step 0 is never an arrival since there is no previous position.
func ArrivalTimes(log *history.Log, stop float64) []int {
	var times []int
	for _, train := range log.Trains() {
		locs := log.TrainPositions(train)
		for t := 1; t < len(locs); t++ {
			if locs[t] == stop && locs[t-1] != stop {
				times = append(times, t)
			}
		}
	}
	slices.Sort(times)
	return times
}

// StopInterarrivals returns the gaps between consecutive arrivals at stop.
func StopInterarrivals(log *history.Log, stop float64) []int {
	times := ArrivalTimes(log, stop)
	if len(times) < 2 {
		return nil
	}
	gaps := make([]int, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		gaps = append(gaps, times[i]-times[i-1])
	}
	return gaps
}

// LogInterarrivals flattens the inter-arrival samples of every stop in log.
func LogInterarrivals(log *history.Log) []int {
	return lo.Flatten(lo.Map(log.StopPositions(), func(stop float64, _ int) []int {
		return StopInterarrivals(log, stop)
	}))
}

// Analyze collects the inter-arrival samples of all stops in all logs and
// summarises them. An empty input, or one without two arrivals at any stop,
// yields NaN mean and std with an empty sample list.
func Analyze(logs []*history.Log) Summary {
	samples := make([]int, 0)
	for _, l := range logs {
		samples = append(samples, LogInterarrivals(l)...)
	}
	return Summarize(samples)
}

// ByStop summarises each stop coordinate separately, across all logs,
// ordered by coordinate.
func ByStop(logs []*history.Log) []StopSummary {
	perStop := make(map[float64][]int)
	for _, l := range logs {
		for _, stop := range l.StopPositions() {
			perStop[stop] = append(perStop[stop], StopInterarrivals(l, stop)...)
		}
	}
	stops := lo.Keys(perStop)
	slices.Sort(stops)
	out := make([]StopSummary, 0, len(stops))
	for _, stop := range stops {
		out = append(out, StopSummary{Stop: stop, Summary: Summarize(perStop[stop])})
	}
	return out
}

// Summarize computes population statistics (denominator n) of samples.
// The variance sums squared deviations from the mean. Deviations are kept
// scaled by n as exact integers, so the result does not depend on the
// order of samples.
func Summarize(samples []int) Summary {
	if samples == nil {
		samples = []int{}
	}
	n := len(samples)
	if n == 0 {
		return Summary{Mean: math.NaN(), Std: math.NaN(), Samples: samples}
	}
	var sum int64
	for _, x := range samples {
		sum += int64(x)
	}
	mean := float64(sum) / float64(n)

	ssq := decimal.Zero
	for _, x := range samples {
		dev := decimal.NewFromInt(int64(n)*int64(x) - sum)
		ssq = ssq.Add(dev.Mul(dev))
	}
	nd := decimal.NewFromInt(int64(n))
	variance := ssq.Div(nd.Mul(nd).Mul(nd)).InexactFloat64()
	return Summary{Mean: mean, Std: math.Sqrt(variance), Samples: samples}
}
