package api

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/sentrymon/engine/internal/config"
	"github.com/sentrymon/engine/internal/store"
)

func (s *Server) handleListMonitors(w http.ResponseWriter, r *http.Request) {
	p := parsePagination(r)
	f := store.MonitorFilter{Type: r.URL.Query().Get("type")}
	monitors, total, err := s.store.ListMonitors(r.Context(), f, p)
	if err != nil {
		s.logger.Error("list monitors", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list monitors")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"monitors": monitors, "total": total})
}

func (s *Server) handleGetMonitor(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	m, err := s.store.GetMonitor(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "monitor not found")
			return
		}
		s.logger.Error("get monitor", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get monitor")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleCreateMonitor(w http.ResponseWriter, r *http.Request) {
	var m store.Monitor
	if err := readJSON(r, &m); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	applyMonitorDefaults(&m, s.cfg.Monitor)

	if err := validateMonitor(&m); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.CreateMonitor(r.Context(), &m); err != nil {
		s.logger.Error("create monitor", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create monitor")
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func applyMonitorDefaults(m *store.Monitor, cfg config.MonitorConfig) {
	if m.PeriodMinutes == 0 {
		m.PeriodMinutes = int(cfg.DefaultInterval.Minutes())
		if m.PeriodMinutes == 0 {
			m.PeriodMinutes = 1
		}
	}
	if m.TimeoutSeconds == 0 {
		m.TimeoutSeconds = int(cfg.DefaultTimeout.Seconds())
	}
	if m.ConsecutiveWarning == 0 {
		m.ConsecutiveWarning = 2
	}
	if m.ConsecutiveAlarm == 0 {
		m.ConsecutiveAlarm = cfg.FailureThreshold
		if m.ConsecutiveAlarm == 0 {
			m.ConsecutiveAlarm = 3
		}
	}
	if m.ResetAfterMOK == 0 {
		m.ResetAfterMOK = cfg.SuccessThreshold
		if m.ResetAfterMOK == 0 {
			m.ResetAfterMOK = 2
		}
	}
	m.Active = true
}

func (s *Server) handleUpdateMonitor(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	existing, err := s.store.GetMonitor(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "monitor not found")
			return
		}
		s.logger.Error("get monitor for update", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get monitor")
		return
	}

	var m store.Monitor
	if err := readJSON(r, &m); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	m.ID = existing.ID

	if err := validateMonitor(&m); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.UpdateMonitor(r.Context(), &m); err != nil {
		s.logger.Error("update monitor", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update monitor")
		return
	}

	updated, err := s.store.GetMonitor(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusOK, m)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteMonitor(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := s.store.GetMonitor(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "monitor not found")
			return
		}
		s.logger.Error("get monitor for delete", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get monitor")
		return
	}

	if err := s.store.DeleteMonitor(r.Context(), id); err != nil {
		s.logger.Error("delete monitor", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete monitor")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
