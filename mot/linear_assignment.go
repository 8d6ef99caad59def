package mot

import (
	"math"
)

// solveAssignment returns column assigned to every row of square cost matrix minimizing total cost.
// Shortest augmenting path with row/column potentials (Jonker-Volgenant family), O(n^3).
func solveAssignment(cost [][]float64) []int {
	n := len(cost)
	rowSol := make([]int, n)
	if n == 0 {
		return rowSol
	}
	// Index 0 is a virtual column/row; real ones are 1..n
	u := make([]float64, n+1)
	v := make([]float64, n+1)
	colOwner := make([]int, n+1)
	pred := make([]int, n+1)
	minSlack := make([]float64, n+1)
	visited := make([]bool, n+1)

	for row := 1; row <= n; row++ {
		colOwner[0] = row
		j0 := 0
		for j := range minSlack {
			minSlack[j] = math.Inf(1)
			visited[j] = false
		}
		for {
			visited[j0] = true
			i0 := colOwner[j0]
			delta := math.Inf(1)
			j1 := 0
			for j := 1; j <= n; j++ {
				if visited[j] {
					continue
				}
				reduced := cost[i0-1][j-1] - u[i0] - v[j]
				if reduced < minSlack[j] {
					minSlack[j] = reduced
					pred[j] = j0
				}
				if minSlack[j] < delta {
					delta = minSlack[j]
					j1 = j
				}
			}
			for j := 0; j <= n; j++ {
				if visited[j] {
					u[colOwner[j]] += delta
					v[j] -= delta
				} else {
					minSlack[j] -= delta
				}
			}
			j0 = j1
			if colOwner[j0] == 0 {
				break
			}
		}
		// Flip the augmenting path
		for j0 != 0 {
			j1 := pred[j0]
			colOwner[j0] = colOwner[j1]
			j0 = j1
		}
	}
	for j := 1; j <= n; j++ {
		if colOwner[j] != 0 {
			rowSol[colOwner[j]-1] = j - 1
		}
	}
	return rowSol
}
