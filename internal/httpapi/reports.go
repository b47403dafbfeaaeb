package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"barledger/backend/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type reportQuery struct {
	storeID int64
	date    string
	format  string
}

func parseReportQuery(r *http.Request) (reportQuery, error) {
	query := r.URL.Query()
	storeID, err := parseStoreID(query.Get("store_id"))
	if err != nil {
		return reportQuery{}, err
	}
	return reportQuery{
		storeID: storeID,
		date:    strings.TrimSpace(query.Get("date")),
		format:  strings.ToLower(strings.TrimSpace(query.Get("format"))),
	}, nil
}

func (a *API) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	q, err := parseReportQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	report, err := a.service.DailyReport(r.Context(), q.storeID, q.date)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	filename := fmt.Sprintf("daily-report-%d-%s", report.StoreID, report.BusinessDate)
	switch q.format {
	case "csv":
		body, err := dailyReportToCSV(report)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeAttachment(w, "text/csv; charset=utf-8", filename+".csv", body)
	case "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(dailyReportToPrintableHTML(report)))
	case "xlsx":
		body, err := dailyReportToXLSX(report)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeAttachment(w, xlsxContentType, filename+".xlsx", body)
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

func (a *API) handleSaveDailyReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	q, err := parseReportQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	snapshot, err := a.service.SaveDailyReport(r.Context(), q.storeID, q.date)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshot": snapshot})
}

func (a *API) handleDailyReportSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	q, err := parseReportQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	snapshot, err := a.service.GetDailyReportSnapshot(r.Context(), q.storeID, q.date)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshot": snapshot})
}

func (a *API) handleSessionLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	q, err := parseReportQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	entries, err := a.service.SessionLog(r.Context(), q.storeID, q.date)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if q.format == "csv" {
		body, err := sessionLogToCSV(entries)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeAttachment(w, "text/csv; charset=utf-8", "session-log.csv", body)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": entries})
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	q, err := parseReportQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 200, 1000)
	logs, err := a.service.ListAuditLogs(r.Context(), q.storeID, q.date, limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

// handleCastEarnings prices one cast member's day. Cast callers get their own.
func (a *API) handleCastEarnings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	query := r.URL.Query()
	view, err := a.service.CastEarnings(r.Context(), query.Get("cast_id"), query.Get("date"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleDailyEarnings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	q, err := parseReportQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sheet, err := a.service.DailyCastEarnings(r.Context(), q.storeID, q.date)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.writeEarningsSheet(w, r, sheet, q.format)
}

func (a *API) handleSaveDailyEarnings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	q, err := parseReportQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sheet, err := a.service.SaveCastDailyEarnings(r.Context(), q.storeID, q.date)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sheet)
}

func (a *API) handleSavedEarnings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	rows, err := a.service.ListSavedCastEarnings(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"earnings": rows})
}

func (a *API) writeEarningsSheet(w http.ResponseWriter, r *http.Request, sheet service.CastEarningsSheet, format string) {
	filename := fmt.Sprintf("cast-earnings-%d-%s", sheet.StoreID, sheet.BusinessDate)
	switch format {
	case "csv":
		body, err := earningsSheetToCSV(sheet)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeAttachment(w, "text/csv; charset=utf-8", filename+".csv", body)
	case "xlsx":
		body, err := earningsSheetToXLSX(sheet)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeAttachment(w, xlsxContentType, filename+".xlsx", body)
	default:
		writeJSON(w, http.StatusOK, sheet)
	}
}

func writeAttachment(w http.ResponseWriter, contentType string, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
