package network

import (
	"fmt"
	"strings"
)

const maxReportedProblems = 20

// GraphBuildError reports why a raw network could not be turned into a Graph. The previous
// graph, if any, stays in service.
type GraphBuildError struct {
	Problems []string
	Dropped  int // problems found beyond maxReportedProblems
}

func (e *GraphBuildError) Error() string {
	if len(e.Problems) == 0 {
		return "graph build failed"
	}
	msg := fmt.Sprintf("graph build failed: %s", strings.Join(e.Problems, "; "))
	if e.Dropped > 0 {
		msg += fmt.Sprintf(" (and %d more)", e.Dropped)
	}
	return msg
}

func (e *GraphBuildError) add(format string, args ...any) {
	if len(e.Problems) >= maxReportedProblems {
		e.Dropped++
		return
	}
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

func (e *GraphBuildError) empty() bool {
	return len(e.Problems) == 0 && e.Dropped == 0
}

// NoNearbyNodeError is returned when no node lies within the snap radius of a coordinate.
type NoNearbyNodeError struct {
	Coordinate Coordinate
	Radius     float64
}

func (e *NoNearbyNodeError) Error() string {
	return fmt.Sprintf("no network node within %.0fm of (%.6f, %.6f)",
		e.Radius, e.Coordinate.Lat, e.Coordinate.Lon)
}

// NoNearbyEdgeError is returned when no edge lies within the given radius of a coordinate.
type NoNearbyEdgeError struct {
	Coordinate Coordinate
	Radius     float64
}

func (e *NoNearbyEdgeError) Error() string {
	return fmt.Sprintf("no network edge within %.0fm of (%.6f, %.6f)",
		e.Radius, e.Coordinate.Lat, e.Coordinate.Lon)
}
