package httpapi

import (
	"errors"
	"net/http"

	"vendormall/backend/internal/domain"
	"vendormall/backend/internal/store"
)

func (a *API) handleListVendors(w http.ResponseWriter, r *http.Request) {
	vendors, err := a.service.ListVendors(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vendors)
}

func (a *API) handleMyVendor(w http.ResponseWriter, r *http.Request) {
	vendor, err := a.service.MyVendor(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		writeDetail(w, http.StatusNotFound, "Vendor not found.")
		return
	}
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vendor)
}

func (a *API) handleGetVendor(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}
	vendor, err := a.service.GetVendor(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vendor)
}

func (a *API) handleCreateVendor(w http.ResponseWriter, r *http.Request) {
	var req domain.VendorCreateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	vendor, err := a.service.CreateVendor(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, vendor)
}

func (a *API) handleUpdateVendor(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}
	var req domain.VendorUpdateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	vendor, err := a.service.UpdateVendor(r.Context(), id, req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vendor)
}

func (a *API) handleDeleteVendor(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}
	if err := a.service.DeleteVendor(r.Context(), id); err != nil {
		a.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListVendorItems(w http.ResponseWriter, r *http.Request) {
	items, err := a.service.ListVendorItems(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) handleGetVendorItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}
	item, err := a.service.GetVendorItem(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) handleCreateVendorItem(w http.ResponseWriter, r *http.Request) {
	var req domain.VendorItemCreateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	item, err := a.service.CreateVendorItem(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (a *API) handleUpdateVendorItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}
	var req domain.VendorItemUpdateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	item, err := a.service.UpdateVendorItem(r.Context(), id, req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) handleDeleteVendorItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}
	if err := a.service.DeleteVendorItem(r.Context(), id); err != nil {
		a.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListVendorPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := a.service.ListVendorPayments(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

func (a *API) handleGetVendorPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}
	payment, err := a.service.GetVendorPayment(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func (a *API) handleCreateVendorPayment(w http.ResponseWriter, r *http.Request) {
	var req domain.VendorPaymentCreateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	payment, err := a.service.CreateVendorPayment(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

func (a *API) handleDeleteVendorPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}
	if err := a.service.DeleteVendorPayment(r.Context(), id); err != nil {
		a.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
