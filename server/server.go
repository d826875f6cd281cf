// Package server exposes the pipeline over HTTP: JSON views of stored
// readings, manual entry, report download and a WebSocket progress feed.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pvplanner/pvplanner/importer"
	"github.com/pvplanner/pvplanner/pipeline"
	"github.com/pvplanner/pvplanner/report"
	"github.com/pvplanner/pvplanner/store"
)

// WebServer provides the HTTP and WebSocket endpoints of the planner.
type WebServer struct {
	pipeline  *pipeline.Pipeline
	server    *http.Server
	port      int
	startTime time.Time
	logger    *log.Logger
	upgrader  websocket.Upgrader
	clients   sync.Map
	broadcast chan []byte
	done      chan struct{}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Uptime    string `json:"uptime"`
	Running   bool   `json:"running"`
	LastError string `json:"last_error,omitempty"`
}

// NewWebServer creates a web server over the pipeline. A non-positive
// port disables the server.
func NewWebServer(p *pipeline.Pipeline, port int, logger *log.Logger) *WebServer {
	if port <= 0 {
		return nil
	}
	if logger == nil {
		logger = log.Default()
	}

	mux := http.NewServeMux()
	ws := &WebServer{
		pipeline:  p,
		port:      port,
		startTime: time.Now(),
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		broadcast: make(chan []byte, 256),
		done:      make(chan struct{}),
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}

	mux.HandleFunc("/api/health", ws.healthHandler)
	mux.HandleFunc("/api/status", ws.statusHandler)
	mux.HandleFunc("/api/day", ws.dayHandler)
	mux.HandleFunc("/api/compare", ws.compareHandler)
	mux.HandleFunc("/api/entry", ws.entryHandler)
	mux.HandleFunc("/api/report", ws.reportHandler)
	mux.HandleFunc("/api/run", ws.runHandler)
	mux.HandleFunc("/api/ws", ws.wsHandler)

	// Stage events from the pipeline fan out to connected clients.
	p.OnProgress(func(event pipeline.Progress) {
		data, err := json.Marshal(event)
		if err != nil {
			return
		}
		select {
		case ws.broadcast <- data:
		default:
		}
	})

	return ws
}

// Start starts the web server in the background.
func (ws *WebServer) Start() error {
	if ws == nil {
		return nil
	}

	go ws.handleBroadcasts()

	go func() {
		ws.logger.Printf("Server: listening on :%d", ws.port)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ws.logger.Printf("Server: %v", err)
		}
	}()

	return nil
}

// Stop gracefully stops the web server.
func (ws *WebServer) Stop(ctx context.Context) error {
	if ws == nil {
		return nil
	}

	close(ws.done)

	ws.clients.Range(func(key, value any) bool {
		if conn, ok := key.(*websocket.Conn); ok {
			conn.Close()
		}
		return true
	})

	return ws.server.Shutdown(ctx)
}

// Handler returns the HTTP handler, used by tests.
func (ws *WebServer) Handler() http.Handler {
	return ws.server.Handler
}

func (ws *WebServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		ws.logger.Printf("Server: failed to encode response: %v", err)
	}
}

func (ws *WebServer) writeError(w http.ResponseWriter, status int, format string, args ...any) {
	ws.writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}

// healthHandler handles the /api/health endpoint
func (ws *WebServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := ws.pipeline.Status()
	health := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(ws.startTime).Round(time.Second).String(),
		Running:   status.Running,
		LastError: status.LastError,
	}
	ws.writeJSON(w, http.StatusOK, health)
}

// statusHandler handles the /api/status endpoint
func (ws *WebServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg := ws.pipeline.Config()

	// Last date with recorded real data, per series.
	coverage := map[string]string{}
	for _, series := range []store.Series{store.Produced, store.Sold} {
		date, ok, err := ws.pipeline.Store().LatestEnergyDate(r.Context(), series, store.Real)
		if err != nil {
			ws.logger.Printf("Server: failed to query latest %s date: %v", series, err)
			continue
		}
		if ok {
			coverage[string(series)] = date.Format("2006-01-02")
		}
	}

	response := map[string]any{
		"pipeline":        ws.pipeline.Status(),
		"real_data_until": coverage,
		"config": map[string]any{
			"latitude":      cfg.Latitude,
			"longitude":     cfg.Longitude,
			"timezone":      cfg.Timezone,
			"forecast_days": cfg.ForecastDays,
			"object_id":     cfg.ObjectID,
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	ws.writeJSON(w, http.StatusOK, response)
}

func parseDateParam(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return time.Time{}, fmt.Errorf("date parameter is required")
	}
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", raw)
	}
	return date, nil
}

func parseSeriesParam(r *http.Request) (store.Series, error) {
	raw := r.URL.Query().Get("series")
	if raw == "" {
		raw = string(store.Produced)
	}
	series := store.Series(raw)
	if !series.Valid() {
		return "", fmt.Errorf("invalid series %q", raw)
	}
	return series, nil
}

// dayHandler handles the /api/day endpoint: hourly readings of one series
// for one date.
func (ws *WebServer) dayHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	date, err := parseDateParam(r)
	if err != nil {
		ws.writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	series, err := parseSeriesParam(r)
	if err != nil {
		ws.writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	dataType := store.DataType(r.URL.Query().Get("type"))
	if dataType == "" {
		dataType = store.Real
	}
	if dataType != store.Real && dataType != store.Predicted {
		ws.writeError(w, http.StatusBadRequest, "invalid type %q", dataType)
		return
	}

	cfg := ws.pipeline.Config()
	records, err := ws.pipeline.Store().EnergyForDate(r.Context(), series, date, dataType, cfg.ObjectID)
	if err != nil {
		ws.writeError(w, http.StatusInternalServerError, "failed to load readings: %v", err)
		return
	}

	ws.writeJSON(w, http.StatusOK, map[string]any{
		"date":    date.Format("2006-01-02"),
		"series":  series,
		"type":    dataType,
		"records": records,
	})
}

// ComparisonRow pairs the real and predicted value of one hour.
type ComparisonRow struct {
	Hour      int      `json:"hour"`
	Real      *float64 `json:"real"`
	Predicted *float64 `json:"predicted"`
}

// compareHandler handles the /api/compare endpoint: real vs predicted
// values of one series for one date.
func (ws *WebServer) compareHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	date, err := parseDateParam(r)
	if err != nil {
		ws.writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	series, err := parseSeriesParam(r)
	if err != nil {
		ws.writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	cfg := ws.pipeline.Config()
	st := ws.pipeline.Store()

	realRows, err := st.EnergyForDate(r.Context(), series, date, store.Real, cfg.ObjectID)
	if err != nil {
		ws.writeError(w, http.StatusInternalServerError, "failed to load real readings: %v", err)
		return
	}
	predictedRows, err := st.EnergyForDate(r.Context(), series, date, store.Predicted, cfg.ObjectID)
	if err != nil {
		ws.writeError(w, http.StatusInternalServerError, "failed to load predicted readings: %v", err)
		return
	}

	rows := make([]ComparisonRow, 24)
	for h := range rows {
		rows[h].Hour = h
	}
	for _, rec := range realRows {
		if rec.Hour >= 0 && rec.Hour < 24 {
			rows[rec.Hour].Real = rec.Value
		}
	}
	for _, rec := range predictedRows {
		if rec.Hour >= 0 && rec.Hour < 24 {
			rows[rec.Hour].Predicted = rec.Value
		}
	}

	ws.writeJSON(w, http.StatusOK, map[string]any{
		"date":   date.Format("2006-01-02"),
		"series": series,
		"rows":   rows,
	})
}

// EntryRequest is the payload of a manual hourly entry.
type EntryRequest struct {
	Date        string       `json:"date"`
	Entries     []EntryValue `json:"entries"`
	ConfirmUnit bool         `json:"confirm_unit"`
}

// EntryValue is one hour of a manual entry.
type EntryValue struct {
	Hour     int      `json:"hour"`
	Produced *float64 `json:"produced_energy,omitempty"`
	Sold     *float64 `json:"sold_energy,omitempty"`
}

// entryHandler handles the /api/entry endpoint. Implausibly small values
// get a 409 with the warning; the client retries with confirm_unit set.
func (ws *WebServer) entryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req EntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeError(w, http.StatusBadRequest, "invalid JSON: %v", err)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		ws.writeError(w, http.StatusBadRequest, "invalid date %q, expected YYYY-MM-DD", req.Date)
		return
	}
	if len(req.Entries) == 0 {
		ws.writeError(w, http.StatusBadRequest, "entries cannot be empty")
		return
	}

	rows := make([]importer.Row, 0, len(req.Entries))
	for _, e := range req.Entries {
		if e.Hour < 0 || e.Hour > 23 {
			ws.writeError(w, http.StatusBadRequest, "hour %d out of range", e.Hour)
			return
		}
		rows = append(rows, importer.Row{
			Date:     store.DateOnly(date),
			Hour:     e.Hour,
			Produced: e.Produced,
			Sold:     e.Sold,
		})
	}

	cfg := ws.pipeline.Config()
	if !req.ConfirmUnit {
		if warning := importer.CheckUnit(importer.RowValues(rows), cfg.UnitWarnThreshold); warning != nil {
			ws.writeJSON(w, http.StatusConflict, map[string]any{
				"warning":          warning.Error(),
				"confirm_required": true,
			})
			return
		}
	}

	result, err := importer.Import(r.Context(), ws.pipeline.Store(), rows, cfg.ObjectID, ws.logger)
	if err != nil {
		ws.writeError(w, http.StatusInternalServerError, "failed to store entries: %v", err)
		return
	}

	ws.writeJSON(w, http.StatusOK, map[string]any{
		"produced_inserted": result.ProducedInserted,
		"sold_inserted":     result.SoldInserted,
		"skipped":           result.Skipped,
	})
}

// reportHandler handles the /api/report endpoint: xlsx download of the
// current prediction pivot.
func (ws *WebServer) reportHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sheets, err := ws.pipeline.ReportSheets(r.Context())
	if err != nil {
		ws.writeError(w, http.StatusInternalServerError, "failed to build report: %v", err)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteXLSXTo(&buf, sheets); err != nil {
		ws.writeError(w, http.StatusNotFound, "no predictions to report")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="energy_report.xlsx"`)
	if _, err := w.Write(buf.Bytes()); err != nil {
		ws.logger.Printf("Server: failed to write report: %v", err)
	}
}

// runHandler handles the /api/run endpoint: starts a forecast cycle in
// the background.
func (ws *WebServer) runHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if ws.pipeline.Status().Running {
		ws.writeError(w, http.StatusConflict, "a run is already in progress")
		return
	}

	go func() {
		if err := ws.pipeline.Run(context.Background()); err != nil {
			ws.logger.Printf("Server: forecast run failed: %v", err)
		}
	}()

	ws.writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// wsHandler handles WebSocket connections for the run-progress feed.
func (ws *WebServer) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Printf("Server: WebSocket upgrade error: %v", err)
		return
	}

	ws.clients.Store(conn, true)
	ws.logger.Printf("Server: WebSocket client connected")

	defer func() {
		ws.clients.Delete(conn)
		conn.Close()
		ws.logger.Printf("Server: WebSocket client disconnected")
	}()

	// Send the current status immediately.
	if data, err := json.Marshal(ws.pipeline.Status()); err == nil {
		conn.WriteMessage(websocket.TextMessage, data)
	}

	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				ws.logger.Printf("Server: WebSocket error: %v", err)
			}
			break
		}
	}
}

// handleBroadcasts sends progress events to all connected clients.
func (ws *WebServer) handleBroadcasts() {
	for {
		select {
		case message := <-ws.broadcast:
			ws.clients.Range(func(key, value any) bool {
				conn, ok := key.(*websocket.Conn)
				if !ok {
					return true
				}
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					conn.Close()
					ws.clients.Delete(conn)
				}
				return true
			})
		case <-ws.done:
			return
		}
	}
}
