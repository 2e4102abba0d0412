package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"vendormall/backend/internal/domain"
)

func (a *API) handleListBoothCharges(w http.ResponseWriter, r *http.Request) {
	charges, err := a.service.ListBoothCharges(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, charges)
}

func (a *API) handleGetBoothCharge(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}
	charge, err := a.service.GetBoothCharge(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, charge)
}

func (a *API) handleCreateBoothCharge(w http.ResponseWriter, r *http.Request) {
	var req domain.BoothChargeCreateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	charge, err := a.service.CreateBoothCharge(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, charge)
}

func (a *API) handleUpdateBoothCharge(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}
	var req domain.BoothChargeUpdateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	charge, err := a.service.UpdateBoothCharge(r.Context(), id, req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, charge)
}

func (a *API) handleDeleteBoothCharge(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}
	if err := a.service.DeleteBoothCharge(r.Context(), id); err != nil {
		a.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListBalancePayments(w http.ResponseWriter, r *http.Request) {
	payments, err := a.service.ListBalancePayments(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

func (a *API) handleGetBalancePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}
	payment, err := a.service.GetBalancePayment(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func (a *API) handleCreateBalancePayment(w http.ResponseWriter, r *http.Request) {
	var req domain.BalancePaymentCreateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	payment, err := a.service.CreateBalancePayment(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

func (a *API) handleUpdateBalancePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}
	var req domain.BalancePaymentUpdateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	payment, err := a.service.UpdateBalancePayment(r.Context(), id, req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func (a *API) handleDeleteBalancePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}
	if err := a.service.DeleteBalancePayment(r.Context(), id); err != nil {
		a.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleVendorStatements(w http.ResponseWriter, r *http.Request) {
	year, month, ok := pathYearMonth(w, r)
	if !ok {
		return
	}
	statement, err := a.service.MonthlyStatement(r.Context(), year, month)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statement)
}

func pathYearMonth(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	vars := mux.Vars(r)
	year, yerr := strconv.Atoi(vars["year"])
	month, merr := strconv.Atoi(vars["month"])
	if yerr != nil || merr != nil {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return 0, 0, false
	}
	return year, month, true
}
