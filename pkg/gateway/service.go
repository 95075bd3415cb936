// Package gateway supervises the running engine: it owns the processor and
// dispatcher, runs every configured channel adapter, answers unhandled
// messages through the fallback responder, and serves health, status, and
// metrics endpoints.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"storyline/pkg/channel"
	"storyline/pkg/config"
	"storyline/pkg/dispatch"
	"storyline/pkg/fallback"
	"storyline/pkg/processor"
	"storyline/pkg/session"
	"storyline/pkg/story"
	"storyline/pkg/telemetry"
)

const (
	defaultHealthHost = "0.0.0.0"
	defaultHealthPort = 18790
)

// Service wires the engine together and runs it until the context ends.
type Service struct {
	cfg        *config.Config
	log        *slog.Logger
	registry   *story.Registry
	proc       *processor.Processor
	dispatcher *dispatch.Dispatcher
	senders    *channel.Registry
	responder  fallback.Responder
	channels   []channel.Adapter
	metrics    *prometheus.Registry

	mu            sync.RWMutex
	startedAt     time.Time
	channelStates map[string]channelState
}

type channelState struct {
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

type statusResponse struct {
	Status        string                  `json:"status"`
	UptimeSeconds int64                   `json:"uptime_seconds"`
	Stories       int                     `json:"stories"`
	Channels      map[string]channelState `json:"channels"`
}

// NewService builds a gateway around the registered stories and the session
// store. Adapters that also implement channel.Sender are registered so steps
// can reply on their channel. The responder may be nil.
func NewService(cfg *config.Config, registry *story.Registry, store session.Store, adapters []channel.Adapter, responder fallback.Responder, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if registry == nil {
		return nil, errors.New("story registry is required")
	}
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if len(adapters) == 0 {
		return nil, errors.New("at least one channel adapter is required")
	}
	if log == nil {
		log = slog.Default()
	}

	registry.Freeze()

	senders := channel.NewRegistry()
	channelStates := make(map[string]channelState, len(adapters))
	for _, adapter := range adapters {
		channelStates[adapter.Name()] = channelState{}
		if sender, ok := adapter.(channel.Sender); ok {
			senders.RegisterSender(adapter.Name(), sender)
		}
	}

	metrics := prometheus.NewRegistry()
	proc, err := processor.New(registry, store,
		processor.WithSenders(senders),
		processor.WithTelemetry(telemetry.NewProm(metrics)),
		processor.WithLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("initialize processor: %w", err)
	}

	s := &Service{
		cfg:           cfg,
		log:           log.With("component", "gateway.service"),
		registry:      registry,
		proc:          proc,
		senders:       senders,
		responder:     responder,
		channels:      adapters,
		metrics:       metrics,
		channelStates: channelStates,
	}
	s.dispatcher = dispatch.New(s.processEnvelope, dispatch.WithLogger(log))

	return s, nil
}

// Dispatcher exposes the event stream for status surfaces and tests.
func (s *Service) Dispatcher() *dispatch.Dispatcher {
	return s.dispatcher
}

// Run starts the status server and every channel adapter, then blocks until
// the context ends or a component fails.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	defer s.dispatcher.Close()

	serverErrors := make(chan error, 1)
	go s.runStatusServer(ctx, serverErrors)

	errCh := make(chan error, len(s.channels))
	for _, adapter := range s.channels {
		adapter := adapter
		s.setChannelState(adapter.Name(), channelState{Running: true})

		go func() {
			err := adapter.Run(ctx, s.handleInbound)
			s.setChannelState(adapter.Name(), channelState{Running: false, Error: errorString(err)})
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("run %s channel: %w", adapter.Name(), err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErrors:
		return err
	case err := <-errCh:
		return err
	}
}

// handleInbound queues one envelope for its session. Adapters see an error
// only when the queue rejects the envelope, not when a step later fails.
func (s *Service) handleInbound(ctx context.Context, env story.Envelope) error {
	return s.dispatcher.Enqueue(ctx, env)
}

// processEnvelope runs one envelope through the processor and publishes the
// outcome. Unhandled envelopes go to the fallback responder when one is
// configured.
func (s *Service) processEnvelope(ctx context.Context, env story.Envelope) error {
	result, err := s.proc.Process(ctx, env)
	if err != nil {
		s.dispatcher.PublishEvent(ctx, dispatch.Event{
			Type:      dispatch.EventFailed,
			Channel:   env.User.Channel,
			SessionID: env.SessionID,
			Error:     err.Error(),
		})
		return err
	}

	event := dispatch.Event{
		Type:      dispatch.EventProcessed,
		Channel:   env.User.Channel,
		SessionID: result.SessionID,
		StoryID:   result.StoryID,
		StepIndex: result.StepIndex,
	}
	if result.Outcome == processor.OutcomeUnhandled {
		event.Type = dispatch.EventUnhandled
	}
	s.dispatcher.PublishEvent(ctx, event)

	if result.Outcome == processor.OutcomeUnhandled {
		s.respondFallback(ctx, env)
	}
	return nil
}

// respondFallback sends the responder's answer back on the envelope's
// channel. Fallback failures are logged, never surfaced to the session.
func (s *Service) respondFallback(ctx context.Context, env story.Envelope) {
	if s.responder == nil {
		return
	}

	reply, err := s.responder.Reply(ctx, env)
	if err != nil {
		s.log.Error("Fallback responder failed", "session_id", env.SessionID, "error", err)
		return
	}
	if strings.TrimSpace(reply) == "" {
		return
	}

	sender, ok := s.senders.Sender(env.User.Channel)
	if !ok {
		s.log.Debug("No sender for fallback reply", "channel", env.User.Channel)
		return
	}
	if err := sender.Send(ctx, env.User, reply); err != nil {
		s.log.Error("Failed to send fallback reply", "session_id", env.SessionID, "error", err)
	}
}

func (s *Service) runStatusServer(ctx context.Context, errCh chan<- error) {
	host := strings.TrimSpace(s.cfg.Gateway.Host)
	if host == "" {
		host = defaultHealthHost
	}

	port := s.cfg.Gateway.Port
	if port <= 0 {
		port = defaultHealthPort
	}

	addr := host + ":" + strconv.Itoa(port)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Gateway status server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("start status server: %w", err)
	}
}

// routes builds the status router. Split out so tests can drive it with
// httptest without binding a socket.
func (s *Service) routes() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/healthz", s.handleHealth)
	router.Get("/readyz", s.handleReady)
	router.Get("/status", s.handleHealth)
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))
	return router
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respondStatus(w, statusCode, status)
}

func (s *Service) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	payload := s.currentStatus(status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	channels := make(map[string]channelState, len(s.channelStates))
	for name, state := range s.channelStates {
		channels[name] = state
	}

	return statusResponse{
		Status:        status,
		UptimeSeconds: uptime,
		Stories:       s.registry.Len(),
		Channels:      channels,
	}
}

func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, state := range s.channelStates {
		if state.Running {
			return true
		}
	}
	return false
}

func (s *Service) setChannelState(name string, state channelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelStates[name] = state
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
