package sheet

import (
	"fmt"
	"strings"

	"github.com/adonese/storewatch/track_fields"
)

// rosterHeaders are the six columns every tab must carry, matched
// case-insensitively on whichever row holds all of them.
var rosterHeaders = []string{"brand", "location", "aggregator", "link", "latitude", "longitude"}

// FindHeader scans the grid for the header row. Both the returned row and the
// column indexes are 1-based, matching the sheet coordinate space.
func FindHeader(values [][]string) (int, map[string]int, error) {
	for i, row := range values {
		lowers := make([]string, len(row))
		for j, c := range row {
			lowers[j] = strings.ToLower(strings.TrimSpace(c))
		}
		cols := map[string]int{}
		for _, want := range rosterHeaders {
			for j, c := range lowers {
				if c == want {
					cols[want] = j + 1
					break
				}
			}
		}
		if len(cols) == len(rosterHeaders) {
			return i + 1, cols, nil
		}
	}
	return 0, nil, fmt.Errorf("header row not found, expected columns: Brand, Location, Aggregator, Link, Latitude, Longitude")
}

// BuildTargets converts data rows into targets. Rows begin at row 3 or just
// below the header, whichever is lower on the sheet. Rows lacking a link or
// aggregator still come back as targets; Probeable sorts them out.
func BuildTargets(tab string, values [][]string, headerRow int, cols map[string]int) []track_fields.Target {
	start := headerRow + 1
	if start < 3 {
		start = 3
	}
	var targets []track_fields.Target
	for r := start; r <= len(values); r++ {
		row := values[r-1]
		getv := func(col int) string {
			if col-1 < len(row) {
				return strings.TrimSpace(row[col-1])
			}
			return ""
		}
		targets = append(targets, track_fields.Target{
			Row:        r,
			Tab:        tab,
			Brand:      getv(cols["brand"]),
			Location:   getv(cols["location"]),
			Aggregator: getv(cols["aggregator"]),
			Link:       getv(cols["link"]),
			Latitude:   track_fields.ParseCoord(getv(cols["latitude"])),
			Longitude:  track_fields.ParseCoord(getv(cols["longitude"])),
		})
	}
	return targets
}

// NextLogColumn finds the first column at or right of startCol whose first
// two rows are both blank. That pair of cells is where the date and time
// stamps of a new run land.
func NextLogColumn(values [][]string, startCol int) int {
	cellAt := func(rowIdx, col int) string {
		if rowIdx < len(values) && col-1 < len(values[rowIdx]) {
			return strings.TrimSpace(values[rowIdx][col-1])
		}
		return ""
	}
	col := startCol
	for {
		if cellAt(0, col) == "" && cellAt(1, col) == "" {
			return col
		}
		col++
	}
}
