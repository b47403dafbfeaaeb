package httpapi

import (
	"bytes"
	"encoding/csv"
	"html/template"
	"slices"
	"strconv"

	"github.com/xuri/excelize/v2"

	"barledger/backend/internal/engine"
	"barledger/backend/internal/service"
)

type hourlyRow struct {
	Hour   string
	Groups int
}

// hourlyRows orders the hourly entries from the start of the business day.
func hourlyRows(entries map[string]int) []hourlyRow {
	rows := make([]hourlyRow, 0, len(entries))
	for hour, groups := range entries {
		rows = append(rows, hourlyRow{Hour: hour, Groups: groups})
	}
	position := func(raw string) int {
		h, err := strconv.Atoi(raw)
		if err != nil {
			return 99
		}
		return (h - engine.BusinessDayStartHour + 24) % 24
	}
	slices.SortFunc(rows, func(a, b hourlyRow) int {
		return position(a.Hour) - position(b.Hour)
	})
	return rows
}

func itoa64(v int64) string {
	return strconv.FormatInt(v, 10)
}

func dailyReportToCSV(report service.DailyReport) ([]byte, error) {
	records := [][]string{
		{"section", "key", "value"},
		{"summary", "business_date", report.BusinessDate},
		{"summary", "store_id", itoa64(report.StoreID)},
		{"summary", "total_sales", itoa64(report.TotalSales)},
		{"summary", "card_sales", itoa64(report.CardSales)},
		{"summary", "total_groups", strconv.Itoa(report.TotalGroups)},
		{"summary", "cancelled_groups", strconv.Itoa(report.CancelledGroups)},
		{"summary", "open_groups", strconv.Itoa(report.OpenGroups)},
		{"summary", "avg_per_customer", itoa64(report.AvgPerCustomer)},
		{"summary", "is_weekend_holiday", strconv.FormatBool(report.IsWeekendHoliday)},
		{"summary", "bonus_threshold", itoa64(report.BonusThreshold)},
		{"summary", "bonus_tier", strconv.Itoa(report.BonusTier)},
		{"summary", "bonus_per_point", itoa64(report.BonusPerPoint)},
	}
	for _, row := range hourlyRows(report.HourlyEntries) {
		records = append(records, []string{"hourly", row.Hour, strconv.Itoa(row.Groups)})
	}
	return writeCSV(records)
}

func earningsSheetToCSV(sheet service.CastEarningsSheet) ([]byte, error) {
	records := [][]string{{
		"cast_id", "cast_name", "work_minutes", "time_pay", "backs", "points", "bonus",
		"subtotal", "after_tax", "welfare_fee", "transport_fee", "net_payout", "referral_bonus",
	}}
	for _, row := range sheet.Rows {
		records = append(records, []string{
			row.CastID,
			row.CastName,
			strconv.Itoa(row.WorkMinutes),
			itoa64(row.TotalTimePay),
			itoa64(row.TotalBacks),
			itoa64(row.TotalPoints),
			itoa64(row.BonusAmount),
			itoa64(row.Subtotal),
			itoa64(row.AfterTax),
			itoa64(row.WelfareFee),
			itoa64(row.TransportFee),
			itoa64(row.NetPayout),
			itoa64(row.ReferralBonus),
		})
	}
	return writeCSV(records)
}

func sessionLogToCSV(entries []service.SessionLogEntry) ([]byte, error) {
	records := [][]string{{
		"bill_id", "table", "status", "seating_tier", "start_time", "base_minutes",
		"extension_minutes", "base_charge", "adjustments", "total", "cancel_reason",
	}}
	for _, entry := range entries {
		records = append(records, []string{
			entry.Bill.ID,
			entry.TableLabel,
			string(entry.Bill.Status),
			string(entry.Bill.SeatingTier),
			engine.FormatClock(entry.Bill.StartTime),
			strconv.Itoa(entry.Bill.BaseMinutes),
			strconv.Itoa(entry.ExtensionMinutes),
			itoa64(entry.BaseCharge),
			itoa64(entry.AdjustmentTotal),
			itoa64(entry.Total),
			entry.CancelReason,
		})
	}
	return writeCSV(records)
}

func writeCSV(records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.WriteAll(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var dailyReportHTMLTmpl = template.Must(template.New("daily-report").Funcs(template.FuncMap{
	"yen": engine.FormatJPY,
}).Parse(`<!doctype html>
<html lang="ja">
<head>
  <meta charset="utf-8" />
  <title>日計表 {{.Report.BusinessDate}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px 10px; font-size: 13px; }
    td.num { text-align: right; }
  </style>
</head>
<body>
  <h2>日計表 {{.Report.BusinessDate}}</h2>
  <table>
    <tr><th>店舗</th><td class="num">{{.Report.StoreID}}</td></tr>
    <tr><th>総売上</th><td class="num">{{yen .Report.TotalSales}}</td></tr>
    <tr><th>カード売上</th><td class="num">{{yen .Report.CardSales}}</td></tr>
    <tr><th>組数</th><td class="num">{{.Report.TotalGroups}}</td></tr>
    <tr><th>キャンセル</th><td class="num">{{.Report.CancelledGroups}}</td></tr>
    <tr><th>客単価</th><td class="num">{{yen .Report.AvgPerCustomer}}</td></tr>
    <tr><th>ボーナス段階</th><td class="num">{{.Report.BonusTier}}</td></tr>
    <tr><th>1ptあたり</th><td class="num">{{yen .Report.BonusPerPoint}}</td></tr>
  </table>

  <h3>時間帯別入店</h3>
  <table>
    <thead><tr><th>時</th><th>組数</th></tr></thead>
    <tbody>{{range .Hourly}}<tr><td>{{.Hour}}時</td><td class="num">{{.Groups}}</td></tr>{{end}}</tbody>
  </table>
</body>
</html>
`))

func dailyReportToPrintableHTML(report service.DailyReport) string {
	var buf bytes.Buffer
	data := struct {
		Report service.DailyReport
		Hourly []hourlyRow
	}{Report: report, Hourly: hourlyRows(report.HourlyEntries)}
	if err := dailyReportHTMLTmpl.Execute(&buf, data); err != nil {
		return "<!doctype html><html><body><p>Report rendering error.</p></body></html>"
	}
	return buf.String()
}

// setRow writes values left to right starting at column A of the given row.
func setRow(f *excelize.File, sheet string, row int, values ...any) error {
	for i, value := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, value); err != nil {
			return err
		}
	}
	return nil
}

func workbookBytes(f *excelize.File) ([]byte, error) {
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func dailyReportToXLSX(report service.DailyReport) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "日計表"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	summary := [][]any{
		{"営業日", report.BusinessDate},
		{"店舗", report.StoreID},
		{"総売上", report.TotalSales},
		{"カード売上", report.CardSales},
		{"組数", report.TotalGroups},
		{"キャンセル", report.CancelledGroups},
		{"客単価", report.AvgPerCustomer},
		{"土日祝", report.IsWeekendHoliday},
		{"ボーナス基準", report.BonusThreshold},
		{"ボーナス段階", report.BonusTier},
		{"1ptあたり", report.BonusPerPoint},
	}
	row := 1
	for _, values := range summary {
		if err := setRow(f, sheet, row, values...); err != nil {
			return nil, err
		}
		row++
	}

	row++
	if err := setRow(f, sheet, row, "時", "組数"); err != nil {
		return nil, err
	}
	for _, entry := range hourlyRows(report.HourlyEntries) {
		row++
		if err := setRow(f, sheet, row, entry.Hour, entry.Groups); err != nil {
			return nil, err
		}
	}
	return workbookBytes(f)
}

func earningsSheetToXLSX(sheet service.CastEarningsSheet) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const name = "給与"
	if err := f.SetSheetName("Sheet1", name); err != nil {
		return nil, err
	}
	if err := setRow(f, name, 1,
		"キャスト", "勤務時間", "時給計", "バック", "ポイント", "ボーナス",
		"小計", "税引後", "厚生費", "交通費", "支給額", "紹介ボーナス",
	); err != nil {
		return nil, err
	}
	for i, row := range sheet.Rows {
		if err := setRow(f, name, i+2,
			row.CastName,
			engine.FormatWorkTime(row.WorkMinutes),
			row.TotalTimePay,
			row.TotalBacks,
			row.TotalPoints,
			row.BonusAmount,
			row.Subtotal,
			row.AfterTax,
			row.WelfareFee,
			row.TransportFee,
			row.NetPayout,
			row.ReferralBonus,
		); err != nil {
			return nil, err
		}
	}
	totalRow := len(sheet.Rows) + 2
	if err := setRow(f, name, totalRow, "合計", "", sheet.Totals.TimePay, sheet.Totals.Backs, "", sheet.Totals.Bonus,
		"", "", "", "", sheet.Totals.NetPayout, sheet.Totals.ReferralBonus); err != nil {
		return nil, err
	}
	return workbookBytes(f)
}
