// Package transcode plans adaptive bitrate ladders and maps encoder progress
// output onto task progress.
package transcode

// Heights is the fixed descending resolution ladder.
var Heights = []int{2160, 1080, 540, 270}

// Weights is the relative encode cost of each step in Heights.
var Weights = []int{12, 4, 2, 1}

// FramerateClasses are the framerates bandwidth tables exist for.
var FramerateClasses = []int{30, 60}

// bandwidths maps framerate class then max height to per-rung kbps, in
// ladder order from max height down.
var bandwidths = map[int]map[int][]int{
	30: {
		2160: {20000, 6000, 2000, 400},
		1080: {10000, 2000, 400},
		540:  {3000, 400},
		270:  {400},
	},
	60: {
		2160: {40000, 12000, 4000, 800},
		1080: {20000, 4000, 800},
		540:  {6000, 800},
		270:  {800},
	},
}

// Rung is one rendition of a ladder.
type Rung struct {
	Height int `json:"height"`
	// Bandwidth is the target video bitrate in kbps.
	Bandwidth int `json:"bandwidth"`
	Weight    int `json:"weight"`
}

// Plan returns the ladder for an input, from the highest rendition down.
// The top rung is the step closest to inputHeight; on a tie the higher step
// wins. The framerate picks the nearer bandwidth class, 30 on a tie.
func Plan(inputHeight, outputFramerate int) []Rung {
	top := closestIndex(Heights, inputHeight)
	rates := bandwidths[FramerateClass(outputFramerate)][Heights[top]]

	rungs := make([]Rung, 0, len(Heights)-top)
	for i, h := range Heights[top:] {
		rungs = append(rungs, Rung{
			Height:    h,
			Bandwidth: rates[i],
			Weight:    Weights[top+i],
		})
	}
	return rungs
}

// FramerateClass returns the bandwidth class used for a framerate.
func FramerateClass(framerate int) int {
	return FramerateClasses[closestIndex(FramerateClasses, framerate)]
}

// closestIndex returns the index of the first value with the smallest
// absolute distance to target.
func closestIndex(values []int, target int) int {
	best := 0
	bestDist := abs(values[0] - target)
	for i := 1; i < len(values); i++ {
		if d := abs(values[i] - target); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
