// Package export renders selected leads as CSV and stores the file where
// staff can download it.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/wolfman30/medspa-pipeline/internal/pipeline"
)

// Columns is the header row. Identity first, then contact fields, value
// and tags.
var Columns = []string{"id", "name", "email", "phone", "value", "tags"}

// WriteCSV writes one header row and one row per lead.
func WriteCSV(w io.Writer, leads []pipeline.Lead) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("export: write header: %w", err)
	}
	for _, l := range leads {
		row := []string{
			l.ID,
			l.Name,
			l.Email,
			l.Phone,
			FormatValue(l.ValueCents),
			strings.Join(l.Tags, ";"),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("export: write lead %s: %w", l.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("export: flush: %w", err)
	}
	return nil
}

// FormatValue renders cents as a plain decimal amount.
func FormatValue(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
