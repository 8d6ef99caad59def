package mot

import (
	"testing"
)

func assignmentTotal(cost [][]float64, rowSol []int) float64 {
	total := 0.0
	for i, j := range rowSol {
		total += cost[i][j]
	}
	return total
}

func TestSolveAssignment(t *testing.T) {
	cases := []struct {
		cost     [][]float64
		expected []int
	}{
		{
			cost: [][]float64{
				{4, 1, 3, 2},
				{2, 0, 5, 3},
				{3, 2, 2, 3},
				{2, 3, 3, 2},
			},
			expected: []int{3, 1, 2, 0},
		},
		{
			cost: [][]float64{
				{10, 19, 8, 15},
				{10, 18, 7, 17},
				{13, 16, 9, 14},
				{12, 19, 8, 18},
			},
			expected: []int{3, 0, 1, 2},
		},
		{
			// Row 0 must give up its cheapest column so that row 1 can be served
			cost: [][]float64{
				{400, 900},
				{625, 4526},
			},
			expected: []int{1, 0},
		},
		{
			cost:     [][]float64{{7}},
			expected: []int{0},
		},
	}
	for i, c := range cases {
		answer := solveAssignment(c.cost)
		if len(answer) != len(c.expected) {
			t.Errorf("Case %d: wrong assignment size: %d, expected: %d", i, len(answer), len(c.expected))
			continue
		}
		for row := range answer {
			if answer[row] != c.expected[row] {
				t.Errorf("Case %d: wrong assignment: %v, expected: %v", i, answer, c.expected)
				break
			}
		}
	}
	if len(solveAssignment(nil)) != 0 {
		t.Errorf("Empty matrix must give empty assignment")
	}
}

// Exhaustive search over permutations agrees with the solver on small matrices
func TestSolveAssignmentExhaustive(t *testing.T) {
	cost := [][]float64{
		{4126, 3626, 0, 12},
		{3901, 0, 77, 5},
		{1, 2, 3, 4},
		{9, 1000, 250, 8},
	}
	best := bruteForceAssignment(cost)
	answer := solveAssignment(cost)
	seen := make(map[int]bool)
	for _, j := range answer {
		if seen[j] {
			t.Fatalf("Column %d assigned twice: %v", j, answer)
		}
		seen[j] = true
	}
	if total := assignmentTotal(cost, answer); total != best {
		t.Errorf("Wrong total cost: %v, optimal: %v (%v)", total, best, answer)
	}
}

func bruteForceAssignment(cost [][]float64) float64 {
	n := len(cost)
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	best := assignmentTotal(cost, perm)
	var permute func(k int)
	permute = func(k int) {
		if k == n {
			if total := assignmentTotal(cost, perm); total < best {
				best = total
			}
			return
		}
		for i := k; i < n; i++ {
			perm[k], perm[i] = perm[i], perm[k]
			permute(k + 1)
			perm[k], perm[i] = perm[i], perm[k]
		}
	}
	permute(0)
	return best
}
