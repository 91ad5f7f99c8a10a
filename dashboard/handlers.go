package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/dungnh3/most-explorer/controller"
	"github.com/dungnh3/most-explorer/ledger"
	"github.com/dungnh3/most-explorer/repositories"
)

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) createView(w http.ResponseWriter, r *http.Request) {
	v, err := s.Mount(r.Context())
	if err != nil {
		s.log.Error("failed to mount view", zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	http.Redirect(w, r, "/views/"+v.ID, http.StatusSeeOther)
}

func (s *Server) showView(w http.ResponseWriter, r *http.Request) {
	v, ok := s.lookup(w, r)
	if !ok {
		return
	}
	snap := v.Snapshot()
	path := r.URL.Path
	q := r.URL.Query()

	data := pageData{
		AppTitle: AppTitle,
		Title:    PageTitle,
		ViewID:   v.ID,
		Tables: []tableData{
			renderTable(path, q, mintPrefix, MintTitle, MintColumns(), snap.Mint, s.pageSize),
			renderTable(path, q, burnPrefix, BurnTitle, BurnColumns(), snap.Burn, s.pageSize),
		},
	}
	if snap.Busy() {
		data.Refresh = refreshSec
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, "view.html", data); err != nil {
		s.log.Error("failed to render view", zap.String("view", v.ID), zap.Error(err))
	}
}

func (s *Server) mintedTable(w http.ResponseWriter, r *http.Request) {
	v, ok := s.lookup(w, r)
	if !ok {
		return
	}
	lane := v.Snapshot().Mint
	t := buildTable(MintColumns(), lane, ParseState(r.URL.Query(), mintPrefix, s.pageSize))
	s.writeJSON(w, http.StatusOK, tableJSON{Lane: controller.LaneMint, State: lane.State.String(), View: t.Render()})
}

func (s *Server) finalizedTable(w http.ResponseWriter, r *http.Request) {
	v, ok := s.lookup(w, r)
	if !ok {
		return
	}
	lane := v.Snapshot().Burn
	t := buildTable(BurnColumns(), lane, ParseState(r.URL.Query(), burnPrefix, s.pageSize))
	s.writeJSON(w, http.StatusOK, tableJSON{Lane: controller.LaneBurn, State: lane.State.String(), View: t.Render()})
}

func (s *Server) closeView(w http.ResponseWriter, r *http.Request) {
	if err := s.Unmount(r.Context(), r.PathValue("id")); err != nil {
		s.notFound(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) publicKey(w http.ResponseWriter, r *http.Request) {
	if s.keys == nil {
		s.writeJSON(w, http.StatusNotFound, errorBody{Error: "public key is not served"})
		return
	}
	res, err := s.keys.PublicKey(r.Context())
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, ledger.ErrTrustRootMissing) {
			status = http.StatusServiceUnavailable
		}
		s.log.Warn("failed to fetch the minter public key", zap.Error(err))
		s.writeJSON(w, status, errorBody{Error: err.Error()})
		return
	}
	key, err := res.Unwrap()
	if err != nil {
		s.writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, key)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "views": s.views.Len()})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}
	st, err := s.status.Status(r.Context())
	if err != nil {
		s.log.Warn("ledger host is not reachable", zap.Error(err))
		s.writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
		return
	}
	if !st.TrustRoot {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "no trust root", "replica": st})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "replica": st})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*View, bool) {
	v, err := s.views.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.notFound(w, err)
		return nil, false
	}
	return v, true
}

func (s *Server) notFound(w http.ResponseWriter, err error) {
	if errors.Is(err, repositories.ErrNotFound) {
		s.writeJSON(w, http.StatusNotFound, errorBody{Error: "view not found"})
		return
	}
	s.writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("failed to write response", zap.Error(err))
	}
}
