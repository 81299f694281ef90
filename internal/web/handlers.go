package web

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	json "github.com/json-iterator/go"

	"meshping/internal/exposition"
	"meshping/internal/models"
	"meshping/internal/reconcile"
)

const maxBodyBytes = 1 << 20

type indexData struct {
	Hostname string
	HaveProm bool
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.index.Execute(&buf, indexData{Hostname: s.cfg.Hostname, HaveProm: s.charts != nil}); err != nil {
		s.logger.Error("failed to render index", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

// handleUI serves the frontend files with caching disabled
func (s *Server) handleUI(w http.ResponseWriter, r *http.Request) {
	noCache(w)
	http.StripPrefix("/ui/", http.FileServer(http.FS(s.ui))).ServeHTTP(w, r)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.encoder.Encode(r.Context(), &buf); err != nil {
		s.logger.Error("failed to encode metrics", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", exposition.ContentType)
	buf.WriteTo(w)
}

// handlePeer merges a target list POSTed by another node and answers with
// our view of the accepted targets.
func (s *Server) handlePeer(w http.ResponseWriter, r *http.Request) {
	if !isJSON(r) {
		writeText(w, http.StatusBadRequest, "Please send content-type:application/json")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeText(w, http.StatusBadRequest, "could not read request body")
		return
	}

	peers, err := reconcile.ParsePeerSubmission(body)
	if err != nil {
		writeText(w, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := s.reconciler.MergePeers(r.Context(), peers)
	if errors.Is(err, reconcile.ErrMalformed) {
		writeText(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("failed to merge peer targets", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "targets": stats})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	addrs, err := s.reconciler.Resolve(r.Context(), r.PathValue("name"))
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "addrs": addrs})
}

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := s.reconciler.ListTargets(r.Context())
	if err != nil {
		s.logger.Error("failed to list targets", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "targets": targets})
}

func (s *Server) handleAddTarget(w http.ResponseWriter, r *http.Request) {
	var req map[string]any
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err == nil {
		err = json.Unmarshal(body, &req)
	}
	target, ok := req["target"].(string)
	if err != nil || !ok {
		writeText(w, http.StatusBadRequest, "missing target")
		return
	}

	added, err := s.reconciler.AddTarget(r.Context(), target)
	switch {
	case errors.Is(err, reconcile.ErrResolve):
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
	case errors.Is(err, reconcile.ErrMalformed):
		writeText(w, http.StatusBadRequest, err.Error())
	case err != nil:
		s.logger.Error("failed to add target", "target", target, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	default:
		s.logger.Info("targets added", "targets", added)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "targets": added})
	}
}

func (s *Server) handleDeleteTarget(w http.ResponseWriter, r *http.Request) {
	target := r.PathValue("target")
	if err := s.reconciler.RemoveTarget(r.Context(), target); err != nil {
		s.logger.Error("failed to remove target", "target", target, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleEditTarget rejects edits; targets are removed and re-added instead.
func (s *Server) handleEditTarget(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": false})
}

func (s *Server) handleClearStats(w http.ResponseWriter, r *http.Request) {
	if err := s.reconciler.ClearStats(r.Context()); err != nil {
		s.logger.Error("failed to clear stats", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleHistogram(w http.ResponseWriter, r *http.Request) {
	if s.charts == nil {
		http.Error(w, "no prometheus server configured", http.StatusServiceUnavailable)
		return
	}

	file := r.PathValue("file")
	if !strings.HasSuffix(file, ".png") {
		http.NotFound(w, r)
		return
	}
	node := r.PathValue("node")

	name, addr, err := s.reconciler.FindTarget(r.Context(), strings.TrimSuffix(file, ".png"))
	if errors.Is(err, models.ErrNotFound) || errors.Is(err, reconcile.ErrMalformed) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		s.logger.Error("failed to look up chart target", "target", file, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	png, err := s.charts.Render(r.Context(), node, name, addr)
	if errors.Is(err, models.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("failed to render chart", "node", node, "target", models.TargetKey(name, addr), "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}
