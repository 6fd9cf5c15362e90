package projection

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/shopspring/decimal"

	"rangeScope/internal/model"
)

var csvHeader = []string{"Timeframe", "APR", "APY", "MonthlyRevenue", "YearlyRevenue"}

// ExportCSV writes one row per window: APR and APY as percentages with two
// decimals, revenues as quote amounts with two decimals.
func ExportCSV(result model.APRResult, w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	monthly := FormatAmount(result.MonthlyRevenue)
	yearly := FormatAmount(result.YearlyRevenue)
	for _, window := range model.Windows {
		row := []string{
			window.String(),
			FormatPercent(result.APRFor(window)),
			FormatPercent(result.APYFor(window)),
			monthly,
			yearly,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write csv row %s: %w", window, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// FormatPercent renders a ratio as a percentage, e.g. 0.1234 -> "12.34%".
func FormatPercent(ratio float64) string {
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return strconv.FormatFloat(ratio, 'f', -1, 64)
	}
	return decimal.NewFromFloat(ratio).Shift(2).StringFixed(2) + "%"
}

// FormatAmount renders a quote amount with two decimals.
func FormatAmount(amount float64) string {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return strconv.FormatFloat(amount, 'f', -1, 64)
	}
	return decimal.NewFromFloat(amount).StringFixed(2)
}
