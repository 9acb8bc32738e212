package handler

import (
	"encoding/json"
	"net/http"

	"github.com/AlexZinkM/oasis-wallet/internal/logging"
	"github.com/AlexZinkM/oasis-wallet/internal/transport"

	"go.uber.org/zap"
)

// maxEnvelopeSize bounds a page request body
const maxEnvelopeSize = 1 << 20

// Unlocker resumes a cached session before a page request is served
type Unlocker interface {
	TryAutoUnlock() bool
}

// SiteChecker reports whether the user approved an origin
type SiteChecker interface {
	IsConnected(origin string) bool
}

// RPCHandler is the page bridge: it forwards envelopes from web pages to the dispatcher
type RPCHandler struct {
	handler  transport.Handler
	unlocker Unlocker
	sites    SiteChecker
	logger   *zap.Logger
}

// NewRPCHandler creates a new RPCHandler. Without both unlocker and sites a cached
// session is never resumed from a page request.
func NewRPCHandler(h transport.Handler, unlocker Unlocker, sites SiteChecker, logger *zap.Logger) *RPCHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RPCHandler{handler: h, unlocker: unlocker, sites: sites, logger: logger}
}

// Serve handles POST /rpc
// @Summary      Page request bridge
// @Description  Accepts one provider envelope. The origin is taken from the Origin header, never from the body. Failures are reported in the response body with success=false.
// @Tags         rpc
// @Accept       json
// @Produce      json
// @Param        Origin   header    string              true  "Requesting page origin"
// @Param        request  body      transport.Envelope  true  "Envelope"
// @Success      200      {object}  transport.Response
// @Router       /rpc [post]
func (h *RPCHandler) Serve(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		writeJSON(w, http.StatusBadRequest, transport.Response{Error: "missing Origin header"})
		return
	}

	var env transport.Envelope
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEnvelopeSize)).Decode(&env); err != nil {
		h.logger.Warn("dropping malformed envelope", logging.Origin(origin), zap.Error(err))
		writeJSON(w, http.StatusBadRequest, transport.Response{Error: "malformed envelope"})
		return
	}
	env.Message = transport.NormalizePayload(env.Message)

	// only pages the user already trusts may resume the session
	if h.unlocker != nil && h.sites != nil && h.sites.IsConnected(origin) {
		h.unlocker.TryAutoUnlock()
	}
	writeJSON(w, http.StatusOK, h.handler.Handle(r.Context(), origin, env))
}
