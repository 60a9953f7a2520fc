package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"hashpool/internal/bench"
	"hashpool/internal/events"
	"hashpool/internal/logger"
)

const defaultMetricsInterval = time.Second

var log = logger.For("api")

// ErrInputOutsideDir はサーバーの入力ディレクトリ外のファイルを指定された場合に返される
var ErrInputOutsideDir = errors.New("input must be a file name inside the server's input directory")

// Server はAPIサーバー
type Server struct {
	addr     string
	base     bench.Config
	interval time.Duration
	bus      *events.Bus

	mu        sync.RWMutex
	ctx       context.Context
	running   bool
	engine    *bench.Engine
	config    bench.Config
	result    *bench.Result
	lastErr   string
	cancel    context.CancelFunc
	wsClients map[*websocket.Conn]bool

	server *http.Server
}

// NewServer は新しいAPIサーバーを作成する
// base は開始リクエストで上書きされない項目（入力、出力先など）の既定値
func NewServer(addr string, base bench.Config) *Server {
	return &Server{
		addr:      addr,
		base:      base,
		interval:  defaultMetricsInterval,
		bus:       events.NewBus(),
		ctx:       context.Background(),
		wsClients: make(map[*websocket.Conn]bool),
	}
}

// SetMetricsInterval はWebSocketへのメトリクス送信間隔を設定する
func (s *Server) SetMetricsInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// Bus はベンチマークイベントのバスを返す
func (s *Server) Bus() *events.Bus {
	return s.bus
}

// Handler はルーティング済みのハンドラを返す
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// API routes
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/metrics", s.handleMetrics)
	mux.HandleFunc("/api/presets", s.handlePresets)
	mux.HandleFunc("/api/result", s.handleResult)
	mux.HandleFunc("/api/bench/start", s.handleBenchStart)
	mux.HandleFunc("/api/bench/stop", s.handleBenchStop)

	// WebSocket
	mux.Handle("/ws", websocket.Handler(s.handleWebSocket))

	return mux
}

// Start はサーバーを開始し、ctx が終了するまでブロックする
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// バックグラウンドでイベントとメトリクスを配信
	go s.forwardEvents(ctx)
	go s.broadcastLoop(ctx)

	log.Info("API Server starting on http://%s", s.addr)

	go func() {
		<-ctx.Done()
		s.stopRun()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		s.bus.Close()
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StatusResponse はステータスレスポンス
type StatusResponse struct {
	Running   bool     `json:"running"`
	RunName   string   `json:"run_name,omitempty"`
	Strategy  string   `json:"strategy,omitempty"`
	Input     string   `json:"input,omitempty"`
	Workers   int      `json:"workers,omitempty"`
	Pending   []string `json:"strategies,omitempty"`
	HasResult bool     `json:"has_result"`
	LastError string   `json:"last_error,omitempty"`
	Dropped   uint64   `json:"dropped_events"`
}

func (s *Server) status() StatusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resp := StatusResponse{
		Running:   s.running,
		HasResult: s.result != nil,
		LastError: s.lastErr,
		Dropped:   s.bus.Dropped(),
	}
	if s.config.Name != "" {
		resp.RunName = s.config.Name
		resp.Input = s.config.Input
		resp.Workers = s.config.Workers
		resp.Pending = s.config.Strategies
	}
	if s.engine != nil {
		resp.Strategy = s.engine.CurrentStrategy()
	}
	return resp
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, s.status())
}

// MetricsResponse はメトリクスレスポンス
type MetricsResponse struct {
	TotalJobs     uint64  `json:"total_jobs"`
	CompletedJobs uint64  `json:"completed_jobs"`
	PanickedJobs  uint64  `json:"panicked_jobs"`
	JobsPerSecond float64 `json:"jobs_per_second"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	P99LatencyMs  float64 `json:"p99_latency_ms"`
	PanicRate     float64 `json:"panic_rate"`
}

func (s *Server) metrics() MetricsResponse {
	s.mu.RLock()
	engine := s.engine
	s.mu.RUnlock()

	resp := MetricsResponse{}
	if engine == nil {
		return resp
	}
	snap := engine.Metrics()
	if snap == nil {
		return resp
	}

	resp.TotalJobs = snap.TotalJobs
	resp.CompletedJobs = snap.CompletedJobs
	resp.PanickedJobs = snap.PanickedJobs
	resp.JobsPerSecond = snap.JobsPerSecond
	resp.AvgLatencyMs = float64(snap.AverageLatency) / float64(time.Millisecond)
	resp.P99LatencyMs = float64(snap.P99Latency) / float64(time.Millisecond)
	resp.PanicRate = snap.PanicRate
	return resp
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, s.metrics())
}

// PresetInfo はプリセット情報
type PresetInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Strategies  []string `json:"strategies"`
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var presets []PresetInfo
	for _, name := range bench.ListPresets() {
		config, _ := bench.GetPreset(name)
		presets = append(presets, PresetInfo{
			Name:        name,
			Description: config.Description,
			Strategies:  config.Strategies,
		})
	}

	s.writeJSON(w, presets)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	result := s.result
	s.mu.RUnlock()

	if result == nil {
		http.Error(w, "No result yet", http.StatusNotFound)
		return
	}

	s.writeJSON(w, result)
}

// BenchRequest はベンチマーク開始リクエスト
// Input はサーバーの入力ファイルと同じディレクトリにあるファイル名
type BenchRequest struct {
	Preset     string   `json:"preset"`
	Input      string   `json:"input,omitempty"`
	Workers    int      `json:"workers,omitempty"`
	Strategies []string `json:"strategies,omitempty"`
}

// buildConfig はリクエストから実行設定を組み立てる
func (s *Server) buildConfig(req BenchRequest) (bench.Config, error) {
	config := s.base
	if req.Preset != "" {
		preset, ok := bench.GetPreset(req.Preset)
		if !ok {
			return config, errors.New("unknown preset: " + req.Preset)
		}
		// 入力と出力先はサーバー側の設定を引き継ぐ
		preset.Input = s.base.Input
		preset.OutputDir = s.base.OutputDir
		preset.BufferSize = s.base.BufferSize
		if s.base.Workers > 0 {
			preset.Workers = s.base.Workers
		}
		config = preset
	}

	// オーバーライド
	if req.Input != "" {
		input, err := s.resolveInput(req.Input)
		if err != nil {
			return config, err
		}
		config.Input = input
	}
	if req.Workers > 0 {
		config.Workers = req.Workers
	}
	if len(req.Strategies) > 0 {
		config.Strategies = req.Strategies
		if !slices.Contains(req.Strategies, config.Baseline) {
			config.Baseline = ""
		}
	}

	return config, config.Validate()
}

// resolveInput はリクエストの入力名をサーバーの入力ディレクトリ内のパスに変換する
// 絶対パスやディレクトリ外を指す名前は拒否する
func (s *Server) resolveInput(name string) (string, error) {
	if s.base.Input == "" || !filepath.IsLocal(name) {
		return "", fmt.Errorf("%w: %s", ErrInputOutsideDir, name)
	}
	return filepath.Join(filepath.Dir(s.base.Input), name), nil
}

func (s *Server) handleBenchStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req BenchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	config, err := s.buildConfig(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		http.Error(w, "Bench already running", http.StatusConflict)
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	engine := bench.New(config)
	engine.SetEventBus(s.bus)

	s.config = config
	s.engine = engine
	s.cancel = cancel
	s.lastErr = ""
	s.running = true
	s.mu.Unlock()

	// バックグラウンドで実行
	go s.run(ctx, cancel, engine)

	s.writeJSON(w, map[string]string{"status": "started", "run": config.Name})
}

// run はベンチマークを実行し、結果を保存して配信する
func (s *Server) run(ctx context.Context, cancel context.CancelFunc, engine *bench.Engine) {
	defer cancel()

	result, err := engine.Run(ctx)

	msg := Message{Type: MessageBenchComplete, Result: result}

	s.mu.Lock()
	s.running = false
	s.cancel = nil
	if err != nil {
		s.lastErr = err.Error()
		msg.Error = err.Error()
	} else {
		s.result = result
	}
	s.mu.Unlock()

	if err != nil {
		log.Error("Bench failed: %v", err)
	} else {
		log.Info("Bench completed: %d strategies in %v", len(result.Strategies), result.Duration.Round(time.Millisecond))
	}

	s.broadcast(msg)
}

// stopRun は実行中のベンチマークをキャンセルする
func (s *Server) stopRun() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

func (s *Server) handleBenchStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.stopRun() {
		http.Error(w, "No bench running", http.StatusBadRequest)
		return
	}

	s.writeJSON(w, map[string]string{"status": "stop requested"})
}

// MessageType はWebSocketメッセージの種類
type MessageType string

const (
	MessageEvent         MessageType = "event"
	MessageMetrics       MessageType = "metrics"
	MessageBenchComplete MessageType = "bench_complete"
)

// Message はWebSocketで配信するメッセージ
type Message struct {
	Type    MessageType      `json:"type"`
	Event   *events.Event    `json:"event,omitempty"`
	Status  *StatusResponse  `json:"status,omitempty"`
	Metrics *MetricsResponse `json:"metrics,omitempty"`
	Result  *bench.Result    `json:"result,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// WebSocket handling
func (s *Server) handleWebSocket(ws *websocket.Conn) {
	s.mu.Lock()
	s.wsClients[ws] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.wsClients, ws)
		s.mu.Unlock()
		_ = ws.Close()
	}()

	// Keep connection alive
	for {
		var msg string
		if err := websocket.Message.Receive(ws, &msg); err != nil {
			break
		}
	}
}

func (s *Server) clientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.wsClients)
}

func (s *Server) broadcast(msg Message) {
	s.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(s.wsClients))
	for ws := range s.wsClients {
		clients = append(clients, ws)
	}
	s.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	jsonData, err := json.Marshal(msg)
	if err != nil {
		log.Error("Failed to encode message: %v", err)
		return
	}

	for _, ws := range clients {
		_ = websocket.Message.Send(ws, string(jsonData))
	}
}

// forwardEvents はバスのイベントをWebSocketクライアントへ転送する
func (s *Server) forwardEvents(ctx context.Context) {
	ch := s.bus.Subscribe()
	defer s.bus.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			s.broadcast(Message{Type: MessageEvent, Event: &e})
		}
	}
}

// broadcastLoop は実行中のステータスとメトリクスを定期配信する
func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := s.status()
			if !status.Running {
				continue
			}
			metrics := s.metrics()
			s.broadcast(Message{Type: MessageMetrics, Status: &status, Metrics: &metrics})
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error("Failed to encode JSON: %v", err)
	}
}
