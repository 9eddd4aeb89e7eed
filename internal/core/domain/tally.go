package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

type OptionCount struct {
	Candidate string `json:"candidate"`
	Count     int64  `json:"count"`
}

type Tally struct {
	ElectionID uuid.UUID     `json:"election_id"`
	Results    []OptionCount `json:"results"`
	TotalVotes int64         `json:"total_votes"`
	ComputedAt time.Time     `json:"timestamp"`
}

// BuildTally orders grouped counts by descending count, breaking ties by the
// option's position in the candidate list. Every candidate is listed, including
// those without votes. Counts for options outside the list sort last.
func BuildTally(e *Election, counts map[string]int64, now time.Time) Tally {
	position := make(map[string]int, len(e.Candidates))
	results := make([]OptionCount, 0, len(counts)+len(e.Candidates))
	for i, c := range e.Candidates {
		position[c] = i
		results = append(results, OptionCount{Candidate: c, Count: counts[c]})
	}
	for option, n := range counts {
		if _, known := position[option]; !known {
			position[option] = len(e.Candidates)
			results = append(results, OptionCount{Candidate: option, Count: n})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Count != results[j].Count {
			return results[i].Count > results[j].Count
		}
		pi, pj := position[results[i].Candidate], position[results[j].Candidate]
		if pi != pj {
			return pi < pj
		}
		return results[i].Candidate < results[j].Candidate
	})

	var total int64
	for _, r := range results {
		total += r.Count
	}
	return Tally{ElectionID: e.ID, Results: results, TotalVotes: total, ComputedAt: now}
}
