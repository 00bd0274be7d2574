package reconcile

import (
	"encoding/csv"
	"io"
	"strconv"
)

// WriteSummaryCSV serialises a reconciliation summary to CSV for operators
// who triage variances in a spreadsheet.
func WriteSummaryCSV(w io.Writer, summary Summary) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{
		"Product", "Color", "Size", "Current Stock", "Stock In", "Stock Out",
		"Calculated Balance", "Variance", "Needs Attention",
	}); err != nil {
		return err
	}
	for _, row := range summary.Rows {
		if err := writer.Write([]string{
			row.ProductID,
			row.Color,
			row.Size,
			strconv.FormatInt(row.CurrentStock, 10),
			strconv.FormatInt(row.StockIn, 10),
			strconv.FormatInt(row.StockOut, 10),
			strconv.FormatInt(row.CalculatedBalance, 10),
			strconv.FormatInt(row.Variance, 10),
			strconv.FormatBool(row.NeedsAttention),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
