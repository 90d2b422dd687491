package inventory

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
)

// CSVFileName is the download name offered for exports.
const CSVFileName = "pantry_inventory.csv"

var csvHeader = []string{"Item", "Quantity"}

// FilterItems returns the items whose name contains query, ignoring case.
// An empty query matches everything. The input order is preserved.
func FilterItems(items []Item, query string) []Item {
	q := strings.ToLower(query)
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if strings.Contains(strings.ToLower(it.Name), q) {
			out = append(out, it)
		}
	}
	return out
}

// WriteCSV writes the Item,Quantity header followed by one row per item.
// Names holding commas, quotes or line breaks are quoted.
func WriteCSV(w io.Writer, items []Item) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, it := range items {
		if err := cw.Write([]string{it.Name, strconv.Itoa(it.Quantity)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ToCSV renders items as a CSV document without a trailing line break.
func ToCSV(items []Item) string {
	var b strings.Builder
	// strings.Builder never fails a write.
	_ = WriteCSV(&b, items)
	return strings.TrimSuffix(b.String(), "\n")
}
