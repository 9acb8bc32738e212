package handler

import (
	"errors"
	"net/http"

	"github.com/AlexZinkM/oasis-wallet/internal/broker"
	"github.com/AlexZinkM/oasis-wallet/internal/model"
	"github.com/AlexZinkM/oasis-wallet/internal/transport"
)

// DAppHandler serves the approval UI: pending requests and connected sites
type DAppHandler struct {
	broker *broker.Broker
}

// NewDAppHandler creates a new DAppHandler
func NewDAppHandler(b *broker.Broker) *DAppHandler {
	return &DAppHandler{broker: b}
}

// RequestView is a pending request as shown to the user
type RequestView struct {
	broker.Request
	Current      bool     `json:"current"`
	Transactions []string `json:"transactions,omitempty"` // base64 wire format
}

func newRequestView(req broker.Request, current bool) (RequestView, error) {
	view := RequestView{Request: req, Current: current}
	for _, tx := range req.Payload.Transactions {
		encoded, err := transport.EncodeTransaction(tx)
		if err != nil {
			return RequestView{}, err
		}
		view.Transactions = append(view.Transactions, encoded)
	}
	return view, nil
}

// Requests handles GET and DELETE /dapp/requests
// @Summary      List or clear pending dApp requests
// @Description  GET lists every pending request per kind, the first of each kind being the one to decide. DELETE rejects all of them.
// @Tags         dapp
// @Produce      json
// @Success      200  {array}  handler.RequestView
// @Router       /dapp/requests [get]
// @Router       /dapp/requests [delete]
func (h *DAppHandler) Requests(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodDelete:
		h.broker.Clear()
		writeJSON(w, http.StatusOK, []RequestView{})
		return
	default:
		http.Error(w, "Method not allowed. Should be GET or DELETE", http.StatusMethodNotAllowed)
		return
	}

	views := make([]RequestView, 0)
	for _, kind := range broker.Kinds {
		for i, req := range h.broker.Pending(kind) {
			view, err := newRequestView(req, i == 0)
			if err != nil {
				writeError(w, err)
				return
			}
			views = append(views, view)
		}
	}
	writeJSON(w, http.StatusOK, views)
}

// Approve handles POST /dapp/requests/{id}/approve
// @Summary      Approve a dApp request
// @Tags         dapp
// @Produce      json
// @Param        id   path      string  true  "Request id"
// @Success      200  {object}  handler.RequestView
// @Failure      404  {object}  model.ErrorResponse
// @Router       /dapp/requests/{id}/approve [post]
func (h *DAppHandler) Approve(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}

	req, err := h.broker.Approve(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	view, err := newRequestView(req, false)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Reject handles POST /dapp/requests/{id}/reject
// @Summary      Reject a dApp request
// @Tags         dapp
// @Produce      json
// @Param        id   path      string  true  "Request id"
// @Success      200  {object}  handler.RequestView
// @Failure      404  {object}  model.ErrorResponse
// @Router       /dapp/requests/{id}/reject [post]
func (h *DAppHandler) Reject(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}

	req, err := h.broker.Reject(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RequestView{Request: req})
}

// Sites handles GET and DELETE /dapp/sites
// @Summary      List or disconnect connected sites
// @Tags         dapp
// @Produce      json
// @Param        origin  query    string  false  "Origin to disconnect (DELETE)"
// @Success      200     {array}  model.ConnectedSite
// @Router       /dapp/sites [get]
// @Router       /dapp/sites [delete]
func (h *DAppHandler) Sites(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodDelete:
		origin := r.URL.Query().Get("origin")
		if origin == "" {
			writeBadRequest(w, errors.New("origin is required"))
			return
		}
		if err := h.broker.Disconnect(origin); err != nil {
			writeError(w, err)
			return
		}
	default:
		http.Error(w, "Method not allowed. Should be GET or DELETE", http.StatusMethodNotAllowed)
		return
	}

	sites := h.broker.Sites()
	if sites == nil {
		sites = []model.ConnectedSite{}
	}
	writeJSON(w, http.StatusOK, sites)
}

// Permissions handles POST /dapp/sites/permissions
// @Summary      Change site permissions
// @Description  Grants or revokes autoApprove. autoApprove only skips the connection prompt.
// @Tags         dapp
// @Accept       json
// @Produce      json
// @Param        request  body      model.PermissionsRequest  true  "Origin and grant"
// @Success      200      {object}  model.ConnectedSite
// @Failure      400      {object}  model.ErrorResponse
// @Router       /dapp/sites/permissions [post]
func (h *DAppHandler) Permissions(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}

	var req model.PermissionsRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.broker.SetAutoApprove(req.Origin, req.AutoApprove); err != nil {
		writeError(w, err)
		return
	}
	site, _ := h.broker.Site(req.Origin)
	writeJSON(w, http.StatusOK, site)
}
