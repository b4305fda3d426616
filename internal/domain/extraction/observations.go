package extraction

import (
	"regexp"
	"strconv"
	"strings"
)

// Observation is one test result parsed from a lab report table.
type Observation struct {
	Name           string
	Value          *float64
	Unit           string
	ReferenceRange string
}

var numberRe = regexp.MustCompile(`[-+]?\d+(?:\.\d+)?`)

// header labels recognized when a table carries a header row
var (
	nameHeaders  = []string{"test", "parameter", "investigation", "analyte", "name"}
	valueHeaders = []string{"result", "value", "observed"}
	unitHeaders  = []string{"unit", "units"}
	rangeHeaders = []string{"reference", "range", "normal", "interval"}
)

// ParseObservations walks the result's tables and returns the test results
// they contain. Rows without a recognizable test name are skipped; rows whose
// value cell carries no number produce an observation without a value.
func ParseObservations(res *Result) []Observation {
	var out []Observation
	for _, table := range res.Tables {
		out = append(out, parseTable(table)...)
	}
	return out
}

func parseTable(table [][]string) []Observation {
	if len(table) == 0 {
		return nil
	}

	nameCol, valueCol, unitCol, rangeCol := 0, 1, -1, -1
	rows := table

	if cols, ok := headerColumns(table[0]); ok {
		nameCol, valueCol, unitCol, rangeCol = cols[0], cols[1], cols[2], cols[3]
		rows = table[1:]
	} else if len(table[0]) >= 3 {
		// No header: assume name, value, reference range ordering.
		rangeCol = 2
	}

	var out []Observation
	for _, row := range rows {
		obs, ok := parseRow(row, nameCol, valueCol, unitCol, rangeCol)
		if ok {
			out = append(out, obs)
		}
	}
	return out
}

// headerColumns inspects a candidate header row and maps recognized labels
// to column indexes. It reports false when no value column is identified.
func headerColumns(header []string) ([4]int, bool) {
	cols := [4]int{-1, -1, -1, -1}
	for i, cell := range header {
		label := strings.ToLower(cell)
		switch {
		case cols[0] < 0 && matchesAny(label, nameHeaders):
			cols[0] = i
		case cols[1] < 0 && matchesAny(label, valueHeaders):
			cols[1] = i
		case cols[2] < 0 && matchesAny(label, unitHeaders):
			cols[2] = i
		case cols[3] < 0 && matchesAny(label, rangeHeaders):
			cols[3] = i
		}
	}
	if cols[1] < 0 {
		return cols, false
	}
	if cols[0] < 0 {
		cols[0] = 0
	}
	return cols, true
}

func matchesAny(label string, candidates []string) bool {
	for _, c := range candidates {
		if strings.Contains(label, c) {
			return true
		}
	}
	return false
}

func parseRow(row []string, nameCol, valueCol, unitCol, rangeCol int) (Observation, bool) {
	obs := Observation{
		Name: cellAt(row, nameCol),
	}
	if obs.Name == "" {
		return obs, false
	}

	valueCell := cellAt(row, valueCol)
	if loc := numberRe.FindStringIndex(valueCell); loc != nil {
		if v, err := strconv.ParseFloat(valueCell[loc[0]:loc[1]], 64); err == nil {
			obs.Value = &v
		}
		// Text after the number is treated as an inline unit when no unit
		// column exists, e.g. "13.5 g/dL".
		if rest := strings.TrimSpace(valueCell[loc[1]:]); rest != "" && unitCol < 0 {
			obs.Unit = rest
		}
	}
	if unitCol >= 0 {
		obs.Unit = cellAt(row, unitCol)
	}
	if rangeCol >= 0 {
		obs.ReferenceRange = cellAt(row, rangeCol)
	}
	return obs, true
}

func cellAt(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}
