package sheet

import "fmt"

// ColName converts a 1-based column index to its letter form (1 -> A,
// 27 -> AA).
func ColName(col int) string {
	name := ""
	for col > 0 {
		col--
		name = string(rune('A'+col%26)) + name
		col /= 26
	}
	return name
}

// CellRef builds a tab-qualified A1 reference for a single cell.
func CellRef(tab string, row, col int) string {
	return fmt.Sprintf("'%s'!%s%d", tab, ColName(col), row)
}
