package s3_spiders

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/wonny/stagegate/internal/contracts"
	"github.com/wonny/stagegate/internal/s0_data/ingest"
)

// CompositeColumns is the header of a composite audit file
var CompositeColumns = []string{"date", "open", "high", "low", "close", "volume", "members_used", "weight_coverage"}

// WriteCompositeCSV writes composite rows with their audit columns
// ingest.ReadBars로 다시 읽을 수 있음 (추가 컬럼은 무시)
func WriteCompositeCSV(w io.Writer, rows []contracts.CompositeBar) error {
	cw := csv.NewWriter(w)
	_ = cw.Write(CompositeColumns)
	for _, r := range rows {
		_ = cw.Write([]string{
			contracts.ISODate(r.Date),
			ingest.FormatFloat(r.Open),
			ingest.FormatFloat(r.High),
			ingest.FormatFloat(r.Low),
			ingest.FormatFloat(r.Close),
			ingest.FormatFloat(r.Volume),
			strconv.Itoa(r.MembersUsed),
			strconv.FormatFloat(r.WeightCoverage, 'f', 6, 64),
		})
	}
	cw.Flush()
	return cw.Error()
}
