package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/halvor/provision/internal/api/request"
	"github.com/halvor/provision/internal/api/response"
	"github.com/halvor/provision/internal/core"
	"github.com/halvor/provision/internal/model"
)

type Request struct {
	svc *core.RequestService
}

func NewRequest(services *core.Services) *Request {
	return &Request{svc: services.Request}
}

// Submit godoc
//
//	@Summary		Submit a provisioning request
//	@Description	Submits an account provisioning request and starts its workflow. The ID is caller-supplied and idempotent: resubmitting an existing ID returns the stored request with 200 instead of creating a duplicate.
//	@Tags			Requests
//	@Param			body	body		request.SubmitRequest	true	"Request details"
//	@Success		202		{object}	model.ProvisioningRequest
//	@Success		200		{object}	model.ProvisioningRequest
//	@Failure		400		{object}	response.ErrorResponse
//	@Failure		500		{object}	response.ErrorResponse
//	@Router			/requests [post]
func (h *Request) Submit(w http.ResponseWriter, r *http.Request) {
	var req request.SubmitRequest
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	pr := &model.ProvisioningRequest{
		ID:           req.ID,
		ResourceKind: req.ResourceKind,
		Attributes:   req.Attributes,
		Requester:    req.Requester,
	}

	created, err := h.svc.Submit(r.Context(), pr)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusAccepted
	if !created {
		status = http.StatusOK
	}
	response.WriteJSON(w, status, pr)
}

// List godoc
//
//	@Summary		List provisioning requests
//	@Description	Returns a paginated list of provisioning requests, optionally filtered by status.
//	@Tags			Requests
//	@Param			limit	query		int		false	"Page size"			default(50)
//	@Param			cursor	query		string	false	"Pagination cursor"
//	@Param			status	query		string	false	"Filter by status"
//	@Success		200		{object}	response.PaginatedResponse{items=[]model.ProvisioningRequest}
//	@Failure		500		{object}	response.ErrorResponse
//	@Router			/requests [get]
func (h *Request) List(w http.ResponseWriter, r *http.Request) {
	params := request.ParsePagination(r)

	requests, hasMore, err := h.svc.List(r.Context(), params)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var nextCursor string
	if hasMore && len(requests) > 0 {
		nextCursor = requests[len(requests)-1].ID
	}
	response.WritePaginated(w, http.StatusOK, requests, nextCursor, hasMore)
}

// Get godoc
//
//	@Summary		Get a provisioning request
//	@Description	Returns a single provisioning request with its current status, decision and completion timestamps.
//	@Tags			Requests
//	@Param			id	path		string	true	"Request ID"
//	@Success		200	{object}	model.ProvisioningRequest
//	@Failure		400	{object}	response.ErrorResponse
//	@Failure		404	{object}	response.ErrorResponse
//	@Router			/requests/{id} [get]
func (h *Request) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		response.WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	response.WriteJSON(w, http.StatusOK, req)
}

// Decide godoc
//
//	@Summary		Record an approval decision
//	@Description	Approves or denies a pending provisioning request. Only valid while the request is in pending_approval; a decision on an already-decided request returns 409.
//	@Tags			Requests
//	@Param			id		path		string				true	"Request ID"
//	@Param			body	body		request.Decision	true	"Decision"
//	@Success		202		{object}	nil
//	@Failure		400		{object}	response.ErrorResponse
//	@Failure		404		{object}	response.ErrorResponse
//	@Failure		409		{object}	response.ErrorResponse
//	@Router			/requests/{id}/decision [post]
func (h *Request) Decide(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.Decision
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	err = h.svc.Decide(r.Context(), id, model.ApprovalDecision{
		Outcome:   req.Outcome,
		DecidedBy: req.DecidedBy,
		Comment:   req.Comment,
	})
	if err != nil {
		writeRequestError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// Withdraw godoc
//
//	@Summary		Withdraw a provisioning request
//	@Description	Withdraws a request that has not been decided yet. The request ends up rejected with reason "withdrawn".
//	@Tags			Requests
//	@Param			id	path		string	true	"Request ID"
//	@Success		202	{object}	nil
//	@Failure		400	{object}	response.ErrorResponse
//	@Failure		404	{object}	response.ErrorResponse
//	@Failure		409	{object}	response.ErrorResponse
//	@Router			/requests/{id}/withdraw [post]
func (h *Request) Withdraw(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.Withdraw(r.Context(), id); err != nil {
		writeRequestError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// Invocations godoc
//
//	@Summary		List activity invocations
//	@Description	Returns the journaled workflow activity attempts for a request, oldest first. Each retry is a separate entry.
//	@Tags			Requests
//	@Param			id	path		string	true	"Request ID"
//	@Success		200	{object}	[]model.ActivityInvocation
//	@Failure		400	{object}	response.ErrorResponse
//	@Failure		500	{object}	response.ErrorResponse
//	@Router			/requests/{id}/invocations [get]
func (h *Request) Invocations(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	invocations, err := h.svc.ListInvocations(r.Context(), id)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if invocations == nil {
		invocations = []model.ActivityInvocation{}
	}

	response.WriteJSON(w, http.StatusOK, invocations)
}

// writeRequestError maps service errors from decision and withdraw calls to
// HTTP statuses.
func writeRequestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		response.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrNotPending):
		response.WriteError(w, http.StatusConflict, err.Error())
	default:
		response.WriteError(w, http.StatusInternalServerError, err.Error())
	}
}
