package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"pdf-squeezer-go/internal/batch"
	"pdf-squeezer-go/internal/compressor"
	"pdf-squeezer-go/internal/config"
	"pdf-squeezer-go/internal/statistics"
)

// CompressorFactory builds the compressor for one batch from its effective
// configuration.
type CompressorFactory func(cfg *config.Config, log logrus.FieldLogger) (compressor.Compressor, error)

type Server struct {
	cfg           *config.Config
	log           *logrus.Logger
	router        *mux.Router
	httpServer    *http.Server
	wsUpgrader    websocket.Upgrader
	wsClients     map[*websocket.Conn]bool
	wsMutex       sync.Mutex
	newCompressor CompressorFactory

	// Current batch state
	operationMutex sync.RWMutex
	isRunning      bool
	batchID        string
	cancel         context.CancelFunc
	currentStats   *statistics.Statistics
	batches        sync.WaitGroup
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type CompressRequest struct {
	Files     []string `json:"files"`
	OutputDir string   `json:"output_dir,omitempty"`
	InPlace   bool     `json:"in_place"`
	Quality   string   `json:"quality,omitempty"`
	Jobs      int      `json:"jobs,omitempty"`
	DryRun    bool     `json:"dry_run"`
}

// OutcomeView is the wire form of a job outcome.
type OutcomeView struct {
	Input            string `json:"input"`
	Output           string `json:"output"`
	Status           string `json:"status"`
	Strategy         string `json:"strategy"`
	OriginalSize     int64  `json:"original_size"`
	FinalSize        int64  `json:"final_size"`
	ReductionPercent int    `json:"reduction_percent"`
	DryRun           bool   `json:"dry_run"`
	Error            string `json:"error,omitempty"`
	DurationMS       int64  `json:"duration_ms"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewServer(cfg *config.Config, log *logrus.Logger, factory CompressorFactory) *Server {
	s := &Server{
		cfg:           cfg,
		log:           log,
		router:        mux.NewRouter(),
		wsClients:     make(map[*websocket.Conn]bool),
		newCompressor: factory,
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/presets", s.handlePresets).Methods("GET")
	api.HandleFunc("/compress", s.handleCompress).Methods("POST")
	api.HandleFunc("/stop", s.handleStop).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infof("Starting web server on http://localhost%s", addr)
	return s.httpServer.ListenAndServe()
}

// Stop cancels any running batch, waits for it until ctx expires and shuts
// the server down. A batch still running when ctx expires is abandoned.
func (s *Server) Stop(ctx context.Context) error {
	s.operationMutex.RLock()
	cancel := s.cancel
	s.operationMutex.RUnlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()

	var waitErr error
	select {
	case <-done:
	case <-ctx.Done():
		waitErr = fmt.Errorf("batch still running: %w", ctx.Err())
		s.log.WithError(ctx.Err()).Warn("Batch did not stop before shutdown deadline")
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return err
		}
	}
	return waitErr
}

// Wait blocks until no batch is running.
func (s *Server) Wait() {
	s.batches.Wait()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	running := s.isRunning
	batchID := s.batchID
	stats := s.currentStats
	s.operationMutex.RUnlock()

	var statsData interface{}
	if stats != nil {
		statsData = stats.Snapshot()
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"running":    running,
			"batch_id":   batchID,
			"statistics": statsData,
		},
	})
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    config.GetAvailableQualityPresets(),
	})
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	var req CompressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Files) == 0 {
		s.writeError(w, "At least one file is required", http.StatusBadRequest)
		return
	}

	cfg := *s.cfg
	cfg.OutputFile = ""
	cfg.OutputDir = req.OutputDir
	cfg.InPlace = req.InPlace
	cfg.Security.DryRun = req.DryRun
	if req.Quality != "" {
		cfg.Quality = req.Quality
	}
	if req.Jobs != 0 {
		cfg.Jobs = req.Jobs
	}

	inputs, err := batch.DiscoverInputs(req.Files, ".")
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := cfg.Validate(); err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := cfg.ValidateOutputMode(len(inputs)); err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.operationMutex.Lock()
	if s.isRunning {
		s.operationMutex.Unlock()
		s.writeError(w, "Batch already in progress", http.StatusConflict)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.isRunning = true
	s.batchID = uuid.NewString()
	s.cancel = cancel
	s.currentStats = statistics.NewStatistics()
	batchID, stats := s.batchID, s.currentStats
	s.batches.Add(1)
	s.operationMutex.Unlock()

	go s.runBatchAsync(ctx, batchID, &cfg, inputs, stats)

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Compression started",
		Data: map[string]interface{}{
			"batch_id": batchID,
			"files":    len(inputs),
		},
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	running, cancel := s.isRunning, s.cancel
	s.operationMutex.RUnlock()

	if !running || cancel == nil {
		s.writeError(w, "No batch in progress", http.StatusConflict)
		return
	}
	cancel()

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Stop requested",
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.wsMutex.Lock()
	s.wsClients[conn] = true
	s.wsMutex.Unlock()

	s.log.Debug("WebSocket client connected")

	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		s.wsMutex.Unlock()
		s.log.Debug("WebSocket client disconnected")
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) runBatchAsync(ctx context.Context, batchID string, cfg *config.Config, inputs []string, stats *statistics.Statistics) {
	defer s.batches.Done()
	defer func() {
		s.operationMutex.Lock()
		s.isRunning = false
		if s.cancel != nil {
			s.cancel()
			s.cancel = nil
		}
		s.operationMutex.Unlock()
	}()

	log := s.log.WithField("batch_id", batchID)

	if cfg.OutputDir != "" {
		if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
			s.batchFailed(batchID, log, fmt.Errorf("create output directory: %w", err))
			return
		}
	}

	c, err := s.newCompressor(cfg, log)
	if err != nil {
		s.batchFailed(batchID, log, err)
		return
	}

	jobs := batch.BuildJobs(cfg, inputs)
	s.broadcastWSMessage("batch_started", map[string]interface{}{
		"batch_id": batchID,
		"files":    len(jobs),
		"quality":  cfg.GetQualityPreset().Name,
		"dry_run":  cfg.Security.DryRun,
	})

	driver := batch.NewDriver(c, cfg.Jobs, stats, log).
		WithOutcomeHook(func(_ int, o compressor.JobOutcome) {
			s.broadcastWSMessage("file_completed", NewOutcomeView(o))
		})
	driver.Run(ctx, jobs)

	s.broadcastWSMessage("batch_completed", map[string]interface{}{
		"batch_id":   batchID,
		"statistics": stats.Snapshot(),
		"summary":    stats.GetSummary(),
	})
}

func (s *Server) batchFailed(batchID string, log logrus.FieldLogger, err error) {
	log.WithError(err).Error("Batch failed to start")
	s.broadcastWSMessage("batch_error", map[string]interface{}{
		"batch_id": batchID,
		"error":    err.Error(),
	})
}

// NewOutcomeView converts an outcome to its wire form.
func NewOutcomeView(o compressor.JobOutcome) OutcomeView {
	v := OutcomeView{
		Input:            o.Job.InputPath,
		Output:           o.OutputPath,
		Status:           string(o.Status),
		Strategy:         o.Strategy,
		OriginalSize:     o.OriginalSize,
		FinalSize:        o.FinalSize,
		ReductionPercent: o.ReductionPercent(),
		DryRun:           o.DryRun,
		DurationMS:       o.Duration.Milliseconds(),
	}
	if o.Err != nil {
		v.Error = o.Err.Error()
	}
	return v
}

// broadcastWSMessage sends a message to every client. Writes are serialized
// because a websocket connection supports only one concurrent writer.
func (s *Server) broadcastWSMessage(messageType string, data interface{}) {
	message := WSMessage{
		Type: messageType,
		Data: data,
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		s.log.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()

	for conn := range s.wsClients {
		if err := conn.WriteMessage(websocket.TextMessage, msgBytes); err != nil {
			s.log.Errorf("Failed to write WebSocket message: %v", err)
			delete(s.wsClients, conn)
			conn.Close()
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   message,
	})
}
