package httpapi

import (
	"bytes"
	"context"
	"html/template"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"vendormall/backend/internal/domain"
	"vendormall/backend/internal/report"
)

func (a *API) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := a.service.ListTransactions(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (a *API) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := a.service.GetTransaction(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (a *API) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req domain.TransactionCreateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	tx, err := a.service.CreateTransaction(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (a *API) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req domain.TransactionUpdateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	tx, err := a.service.UpdateTransaction(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (a *API) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteTransaction(r.Context(), mux.Vars(r)["id"]); err != nil {
		a.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListTransactionItems(w http.ResponseWriter, r *http.Request) {
	items, err := a.service.ListTransactionItems(r.Context(), strings.TrimSpace(r.URL.Query().Get("transaction")))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) handleGetTransactionItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}
	item, err := a.service.GetTransactionItem(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) handleCreateTransactionItem(w http.ResponseWriter, r *http.Request) {
	var req domain.TransactionItemCreateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	item, err := a.service.CreateTransactionItem(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (a *API) handleUpdateTransactionItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}
	var req domain.TransactionItemUpdateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	item, err := a.service.UpdateTransactionItem(r.Context(), id, req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) handleDeleteTransactionItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}
	if err := a.service.DeleteTransactionItem(r.Context(), id); err != nil {
		a.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleTopVendors(w http.ResponseWriter, r *http.Request) {
	a.writeLeaders(w, r, "top-vendors", "Top Vendors", a.service.TopVendors)
}

func (a *API) handleTopItems(w http.ResponseWriter, r *http.Request) {
	a.writeLeaders(w, r, "top-items", "Top Items", a.service.TopItems)
}

// writeLeaders renders a leader board as JSON, CSV or XLSX depending on ?format.
func (a *API) writeLeaders(w http.ResponseWriter, r *http.Request, filename, title string,
	load func(ctx context.Context) (domain.SalesLeaders, error)) {
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format != "" && format != "json" && format != "csv" && format != "xlsx" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"format": "Must be one of json, csv, xlsx."})
		return
	}

	leaders, err := load(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	var buf bytes.Buffer
	switch format {
	case "csv":
		if err := report.WriteCSV(&buf, leaders); err != nil {
			a.writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeAttachment(w, "text/csv; charset=utf-8", filename+".csv", buf.Bytes())
	case "xlsx":
		if err := report.WriteXLSX(&buf, title, leaders); err != nil {
			a.writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeAttachment(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", filename+".xlsx", buf.Bytes())
	default:
		writeJSON(w, http.StatusOK, leaders)
	}
}

func writeAttachment(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (a *API) handleTransactionSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := a.service.TransactionSummary(r.Context(), mux.Vars(r)["period"])
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeSummary(w, r, summary)
}

func (a *API) handleMonthlySummary(w http.ResponseWriter, r *http.Request) {
	year, month, ok := pathYearMonth(w, r)
	if !ok {
		return
	}
	summary, err := a.service.MonthlyTransactionSummary(r.Context(), year, month)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.writeSummary(w, r, summary)
}

func (a *API) writeSummary(w http.ResponseWriter, r *http.Request, summary domain.TransactionSummary) {
	if strings.EqualFold(r.URL.Query().Get("format"), "html") {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(summaryToPrintableHTML(summary)))
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// html/template escapes every field, including item names typed in by vendors.
var summaryHTMLTmpl = template.Must(template.New("transaction-summary").Funcs(template.FuncMap{
	"cents": formatCents,
	"day":   func(s domain.TransactionSummary) string { return s.PeriodStart.Format("2006-01-02") },
}).Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>Sales {{.Period}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    h2, h3 { margin-bottom: 4px; }
  </style>
</head>
<body>
  <h2>Sales {{.Period}}</h2>
  <p>From {{day .}} | Transactions: {{.Count}} | Items: {{.TotalItems}}</p>
  <p>Sales: {{cents .TotalAmount}} | Tax: {{cents .TotalSalesTax}} | Grand total: {{cents .GrandTotal}}</p>

  <h3>Transactions</h3>
  <table>
    <thead><tr><th>Date</th><th>Payment</th><th>Items</th><th>Tax</th><th>Total</th></tr></thead>
    <tbody>{{range .Transactions}}<tr><td>{{.Date.Format "2006-01-02 15:04"}}</td><td>{{.PaymentMethod}}</td><td>{{range $i, $it := .Items}}{{if $i}}, {{end}}{{$it.Quantity}} x {{$it.Name}}{{end}}</td><td style="text-align:right;">{{cents .SalesTax}}</td><td style="text-align:right;">{{cents .GrandTotal}}</td></tr>{{end}}</tbody>
  </table>
</body>
</html>
`))

func summaryToPrintableHTML(summary domain.TransactionSummary) string {
	var buf bytes.Buffer
	if err := summaryHTMLTmpl.Execute(&buf, summary); err != nil {
		return "<!doctype html><html><body><p>Report rendering error.</p></body></html>"
	}
	return buf.String()
}

func formatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
