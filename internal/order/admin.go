package order

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"Storefront/pkg/kit"
)

func (s *Server) adminList(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, err.Error(), nil)
		return
	}

	q := ListQuery{Limit: limit}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		st, ok := ParseStatus(raw)
		if !ok {
			kit.WriteError(w, r, http.StatusBadRequest, "unknown status", map[string]any{"status": raw})
			return
		}
		q.Status = st
	}

	orders, err := s.Store.List(r.Context(), q)
	if err != nil {
		s.log().Error("admin list orders failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}
	kit.WriteJSON(w, http.StatusOK, listResp{Items: orders})
}

type statusReq struct {
	Status string `json:"status"`
}

func (s *Server) adminSetStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	var req statusReq
	if err := kit.DecodeJSON(w, r, &req); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", map[string]any{"cause": err.Error()})
		return
	}
	to, ok := ParseStatus(req.Status)
	if !ok {
		kit.WriteError(w, r, http.StatusBadRequest, "unknown status", map[string]any{"status": req.Status})
		return
	}

	o, prev, err := s.Store.Transition(r.Context(), orderID, to, s.clock(), nil)
	if err != nil {
		s.writeTransitionError(w, r, err, orderID)
		return
	}

	s.statusChanged(r.Context(), o, prev)
	kit.WriteJSON(w, http.StatusOK, o)
}
