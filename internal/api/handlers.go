// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/toolagent/internal/logging"
	"github.com/tomtom215/toolagent/internal/models"
	"github.com/tomtom215/toolagent/internal/runner"
)

// ToolView is one entry of GET /v1/tools.
type ToolView struct {
	models.InstalledTool
	Supervised bool              `json:"supervised"`
	State      *runner.ToolState `json:"state,omitempty"`
}

// Healthz reports that the process is alive. It never checks dependencies.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, &Response{
		Status: "ok",
		Data: map[string]any{
			"alive":   true,
			"uptime":  time.Since(h.startTime).Seconds(),
			"version": h.deps.Version,
		},
	})
}

// Readyz returns 200 only while the command bus is connected.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	busConnected := h.deps.Bus != nil && h.deps.Bus.IsConnected()

	data := map[string]any{
		"bus_connected": busConnected,
		"machine_id":    h.deps.MachineID,
	}
	if h.deps.Fetch != nil {
		data["fetch_circuit"] = h.deps.Fetch.State()
	}

	statusCode := http.StatusOK
	status := "ready"
	if !busConnected {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}
	respondJSON(w, r, statusCode, &Response{Status: status, Data: data})
}

// Tools lists installed-tool records, each with its supervision state.
func (h *Handler) Tools(w http.ResponseWriter, r *http.Request) {
	if h.deps.Tools == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Tool store unavailable")
		return
	}

	records, err := h.deps.Tools.List(r.Context())
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Listing installed tools failed")
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Failed to list installed tools")
		return
	}

	states := make(map[string]runner.ToolState)
	if h.deps.Supervision != nil {
		for _, st := range h.deps.Supervision.Status() {
			states[st.ToolID] = st
		}
	}

	views := make([]ToolView, 0, len(records))
	for _, rec := range records {
		view := ToolView{InstalledTool: rec}
		if st, ok := states[rec.ToolID]; ok {
			view.Supervised = true
			view.State = &st
		}
		views = append(views, view)
	}

	respondJSON(w, r, http.StatusOK, &Response{Status: "success", Data: views})
}
