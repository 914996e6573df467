package api

import "net/http"

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scheduler.GetStatus())
}

func (s *Server) handleSchedulerStart(w http.ResponseWriter, r *http.Request) {
	s.scheduler.Start(s.baseCtx)
	writeJSON(w, http.StatusOK, s.scheduler.GetStatus())
}

func (s *Server) handleSchedulerStop(w http.ResponseWriter, r *http.Request) {
	s.scheduler.Stop()
	writeJSON(w, http.StatusOK, s.scheduler.GetStatus())
}

// handleExecute runs a sweep outside the tick cadence: period=due (the
// default) runs only monitors whose interval has elapsed, period=all
// forces every active monitor to run regardless of schedule.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	concurrency := s.cfg.Monitor.Workers

	var summary interface{}
	var err error
	switch period {
	case "all":
		summary, err = s.executor.ExecuteAll(r.Context(), concurrency)
	case "", "due":
		summary, err = s.executor.ExecuteDue(r.Context(), concurrency)
	default:
		writeError(w, http.StatusBadRequest, "period must be one of: due, all")
		return
	}
	if err != nil {
		s.logger.Error("execute", "period", period, "error", err)
		writeError(w, http.StatusInternalServerError, "execution failed")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
