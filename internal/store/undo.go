package store

// LastStrokeStart returns the index of the last start point in points,
// or -1 when there is none.
func LastStrokeStart(points []Point) int {
	for i := len(points) - 1; i >= 0; i-- {
		if points[i].Type == PointStart {
			return i
		}
	}
	return -1
}

// TrimLastStroke removes the last stroke: the final start point by log
// order and everything appended after it. A log without any start point
// is emptied. The input slice is not modified.
func TrimLastStroke(points []Point) []Point {
	idx := LastStrokeStart(points)
	if idx < 0 {
		return []Point{}
	}
	return clonePoints(points[:idx])
}
