package httpapi

import (
	"net/http"

	"vendormall/backend/internal/domain"
)

func (a *API) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := a.service.ListMessages(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (a *API) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req domain.MessageCreateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	msg, err := a.service.SendMessage(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// handleStaffRecipients lists who a vendor's message will reach.
func (a *API) handleStaffRecipients(w http.ResponseWriter, r *http.Request) {
	ids, err := a.service.StaffIDs(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"staff_ids": ids})
}

func (a *API) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := a.service.UnreadCount(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unread_count": count})
}

func (a *API) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}
	msg, err := a.service.GetMessage(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (a *API) handleUpdateMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}
	var req domain.MessageUpdateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	msg, err := a.service.UpdateMessage(r.Context(), id, req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (a *API) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}
	if err := a.service.DeleteMessage(r.Context(), id); err != nil {
		a.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}
	if err := a.service.MarkRead(r.Context(), id); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "message marked as read"})
}

func (a *API) handleAddReply(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}
	var req domain.ReplyCreateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	reply, err := a.service.AddReply(r.Context(), id, req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reply)
}

func (a *API) handleMarkReplyRead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}
	replyID, ok := pathInt64(w, r, "replyID")
	if !ok {
		return
	}
	if err := a.service.MarkReplyRead(r.Context(), id, replyID); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "reply marked as read"})
}
