package mot

import (
	"math"
)

// AssignmentAudit compares greedy index-priority matching with optimal matching over the same gated pairs
type AssignmentAudit struct {
	// Candidate index per history index, -1 when unassigned
	Greedy []int
	// Candidate index per history index, -1 when unassigned
	Optimal []int
	// Number of history indices assigned differently
	Disagreements int
	// Sums of squared distances of assigned pairs
	GreedyCost  float64
	OptimalCost float64
}

// auditAssignments solves minimum-cost assignment where every admissible pair costs its squared
// distance and every inadmissible (or padded) pair costs more than any admissible one
func auditAssignments(history, candidates []Point, gate Gate, greedy []int) AssignmentAudit {
	audit := AssignmentAudit{
		Greedy:  make([]int, len(history)),
		Optimal: make([]int, len(history)),
	}
	copy(audit.Greedy, greedy)
	for i := range audit.Optimal {
		audit.Optimal[i] = -1
	}
	if len(history) == 0 || len(candidates) == 0 {
		audit.Disagreements = countDisagreements(audit.Greedy, audit.Optimal)
		return audit
	}

	// Any admissible squared distance is below this bound
	reach := math.Pow(math.Max(math.Abs(gate.MinDX), math.Abs(gate.MaxDX)), 2) +
		math.Pow(math.Max(math.Abs(gate.MinDY), math.Abs(gate.MaxDY)), 2) + 1.0

	// Rectangular matrix - pad to make it square. Padding costs the same as an inadmissible pair
	paddedSize := maxInt(len(history), len(candidates))
	costMatrix := make([][]float64, paddedSize)
	admissible := make([][]bool, paddedSize)
	for i := 0; i < paddedSize; i++ {
		costMatrix[i] = make([]float64, paddedSize)
		admissible[i] = make([]bool, paddedSize)
		for j := range costMatrix[i] {
			costMatrix[i][j] = reach
		}
	}
	for i, prev := range history {
		for j, candidate := range candidates {
			dx := candidate.X - prev.X
			dy := candidate.Y - prev.Y
			if !gate.admits(dx, dy) {
				continue
			}
			costMatrix[i][j] = dx*dx + dy*dy
			admissible[i][j] = true
		}
	}

	rowSol := solveAssignment(costMatrix)
	for i := range history {
		if j := rowSol[i]; admissible[i][j] {
			audit.Optimal[i] = j
		}
	}

	audit.GreedyCost = assignmentCost(history, candidates, audit.Greedy)
	audit.OptimalCost = assignmentCost(history, candidates, audit.Optimal)
	audit.Disagreements = countDisagreements(audit.Greedy, audit.Optimal)
	return audit
}

func assignmentCost(history, candidates []Point, assignment []int) float64 {
	cost := 0.0
	for i, j := range assignment {
		if j < 0 {
			continue
		}
		cost += squaredDistance(history[i], candidates[j])
	}
	return cost
}

func countDisagreements(a, b []int) int {
	count := 0
	for i := range a {
		if a[i] != b[i] {
			count++
		}
	}
	return count
}
