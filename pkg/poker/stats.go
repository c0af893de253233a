package poker

import "sort"

// Statistics summarizes the votes of a revealed round. The numeric
// fields are nil when no votes were cast.
type Statistics struct {
	TotalVoters int      `json:"total_voters"`
	VotesCast   int      `json:"votes_cast"`
	Average     *float64 `json:"average"`
	Median      *float64 `json:"median"`
	Min         *int     `json:"min"`
	Max         *int     `json:"max"`
	Mode        *int     `json:"mode"`
}

// CalculateStatistics computes round statistics over the cast votes.
// Mode ties resolve to the smallest value so the result is stable.
func CalculateStatistics(votes []int, totalVoters int) Statistics {
	stats := Statistics{TotalVoters: totalVoters, VotesCast: len(votes)}
	if len(votes) == 0 {
		return stats
	}

	sorted := append([]int(nil), votes...)
	sort.Ints(sorted)

	sum := 0
	counts := make(map[int]int, len(sorted))
	for _, v := range sorted {
		sum += v
		counts[v]++
	}

	avg := float64(sum) / float64(len(sorted))
	stats.Average = &avg

	var median float64
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		median = float64(sorted[mid-1]+sorted[mid]) / 2
	} else {
		median = float64(sorted[mid])
	}
	stats.Median = &median

	minV, maxV := sorted[0], sorted[len(sorted)-1]
	stats.Min = &minV
	stats.Max = &maxV

	mode, best := sorted[0], 0
	for _, v := range sorted {
		if c := counts[v]; c > best {
			mode, best = v, c
		}
	}
	stats.Mode = &mode
	return stats
}
