package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"planetbot/pkg/bus"
	"planetbot/pkg/channel"
	"planetbot/pkg/command"
	"planetbot/pkg/config"
	"planetbot/pkg/delivery"
	"planetbot/pkg/dispatch"
	"planetbot/pkg/planet"
	"planetbot/pkg/response"
	"planetbot/pkg/watcher"
)

const (
	defaultHealthHost = "0.0.0.0"
	defaultHealthPort = 18790
	eventBuffer       = 256

	// maxSendsPerCommand covers !check_new_planet: thread, ack, and the
	// failure reply.
	maxSendsPerCommand = 3
)

// Options carries collaborators built outside the service.
type Options struct {
	// Planets resolves planet ids. Nil uses planets.static_id.
	Planets planet.Source

	// State enables the watcher when watcher.enabled is set.
	State watcher.State
}

type Service struct {
	cfg        *config.Config
	log        *slog.Logger
	bus        *bus.MessageBus
	dispatcher *dispatch.Dispatcher
	watcher    *watcher.Watcher
	channels   []channel.Adapter

	mu            sync.RWMutex
	startedAt     time.Time
	channelStates map[string]channelState
	stats         dispatchStats
}

type channelState struct {
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

type dispatchStats struct {
	Matched     int64  `json:"matched"`
	Delivered   int64  `json:"delivered"`
	Rejected    int64  `json:"rejected"`
	Failed      int64  `json:"failed"`
	Announced   int64  `json:"announced"`
	LastError   string `json:"last_error,omitempty"`
	LastErrorAt string `json:"last_error_at,omitempty"`
}

type statusResponse struct {
	Status        string                  `json:"status"`
	UptimeSeconds int64                   `json:"uptime_seconds"`
	Channels      map[string]channelState `json:"channels"`
	Dispatch      dispatchStats           `json:"dispatch"`
}

// NewService wires the dispatch pipeline over the given adapters.
func NewService(cfg *config.Config, adapters []channel.Adapter, opts Options, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if len(adapters) == 0 {
		return nil, errors.New("at least one channel adapter is required")
	}
	if log == nil {
		log = slog.Default()
	}

	senders := make(map[string]delivery.Sender, len(adapters))
	channelStates := make(map[string]channelState, len(adapters))
	for _, adapter := range adapters {
		if _, dup := senders[adapter.Name()]; dup {
			return nil, fmt.Errorf("channel %q is configured twice", adapter.Name())
		}
		senders[adapter.Name()] = adapter
		channelStates[adapter.Name()] = channelState{}
	}

	router, err := delivery.NewRouter(senders)
	if err != nil {
		return nil, err
	}

	source := opts.Planets
	if source == nil {
		source = planet.StaticSource{ID: cfg.Planets.StaticID}
	}

	messageBus := bus.NewMessageBus()
	builder := response.NewBuilder(source, response.Options{
		URLTemplate:       cfg.Planets.URLTemplate,
		AnnounceChannelID: bus.ChannelID(cfg.Planets.AnnounceChannelID),
	}, log)

	dispatcher, err := dispatch.New(command.NewDefaultRegistry(), builder, router, dispatch.Options{
		SendTimeout: cfg.Bot.SendTimeout(),
		Observer:    messageBus,
	}, log)
	if err != nil {
		return nil, err
	}

	svc := &Service{
		cfg:           cfg,
		log:           log.With("component", "gateway.service"),
		bus:           messageBus,
		dispatcher:    dispatcher,
		channels:      adapters,
		channelStates: channelStates,
	}

	if cfg.Watcher.Enabled {
		if opts.State == nil {
			return nil, errors.New("watcher is enabled but no state store was provided")
		}
		announceOn := watcherChannel(cfg, adapters)
		if announceOn == "" {
			return nil, errors.New("watcher.channel is required when several channels are enabled")
		}
		w, err := watcher.New(source, opts.State, router, watcher.Options{
			Schedule:    cfg.Watcher.Schedule,
			Channel:     announceOn,
			ChannelID:   bus.ChannelID(cfg.Watcher.ChannelID),
			URLTemplate: cfg.Planets.URLTemplate,
			SendTimeout: cfg.Bot.SendTimeout(),
			Observer:    messageBus,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("configure watcher: %w", err)
		}
		svc.watcher = w
	}

	return svc, nil
}

// Run starts every adapter, the dispatch loop, the watcher, and the status
// server. It returns when ctx is done or any of them fails.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	events, unsubscribe := s.bus.SubscribeEvents(ctx, eventBuffer)
	defer unsubscribe()
	go s.trackEvents(events)

	serverErrors := make(chan error, 1)
	go s.runHealthServer(ctx, serverErrors)

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		if err := s.dispatcher.Run(ctx, s.bus); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error("Dispatch loop stopped", "error", err)
		}
	}()

	watcherDone := make(chan struct{})
	if s.watcher != nil {
		go func() {
			defer close(watcherDone)
			if err := s.watcher.Run(ctx); err != nil {
				s.log.Error("Planet watcher stopped", "error", err)
			}
		}()
	} else {
		close(watcherDone)
	}

	errCh := make(chan error, len(s.channels))
	for _, adapter := range s.channels {
		s.setChannelState(adapter.Name(), channelState{Running: true})

		go func() {
			err := adapter.Run(ctx, s.bus.PublishInbound)
			s.setChannelState(adapter.Name(), channelState{Running: false, Error: errorString(err)})
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("run %s channel: %w", adapter.Name(), err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErrors:
	case runErr = <-errCh:
	}

	cancel()
	s.bus.Close()
	if !waitStopped(shutdownGrace(s.cfg.Bot.SendTimeout()), dispatchDone, watcherDone) {
		s.log.Warn("Dispatch loop or watcher did not stop in time")
	}

	return runErr
}

// shutdownGrace bounds the wait for an in-flight command whose sends each run
// under sendTimeout.
func shutdownGrace(sendTimeout time.Duration) time.Duration {
	if sendTimeout <= 0 {
		sendTimeout = dispatch.DefaultSendTimeout
	}
	return maxSendsPerCommand*sendTimeout + time.Second
}

// waitStopped reports whether every done channel closed within grace.
func waitStopped(grace time.Duration, done ...<-chan struct{}) bool {
	deadline := time.NewTimer(grace)
	defer deadline.Stop()

	for _, ch := range done {
		select {
		case <-ch:
		case <-deadline.C:
			return false
		}
	}
	return true
}

// trackEvents folds dispatch events into the status counters.
func (s *Service) trackEvents(events <-chan bus.Event) {
	for event := range events {
		s.mu.Lock()
		switch event.Type {
		case bus.EventCommandMatched:
			s.stats.Matched++
		case bus.EventDeliverySucceeded:
			s.stats.Delivered++
		case bus.EventPayloadRejected:
			s.stats.Rejected++
			s.recordError(event)
		case bus.EventDeliveryFailed:
			s.stats.Failed++
			s.recordError(event)
		case bus.EventPlanetAnnounced:
			s.stats.Announced++
		}
		s.mu.Unlock()
	}
}

// recordError must be called with s.mu held.
func (s *Service) recordError(event bus.Event) {
	s.stats.LastError = event.Error
	s.stats.LastErrorAt = event.At.UTC().Format(time.RFC3339)
}

func (s *Service) runHealthServer(ctx context.Context, errCh chan<- error) {
	host := strings.TrimSpace(s.cfg.Gateway.Host)
	if host == "" {
		host = defaultHealthHost
	}

	port := s.cfg.Gateway.Port
	if port <= 0 {
		port = defaultHealthPort
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
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
		Channels:      channels,
		Dispatch:      s.stats,
	}
}

// isReady reports whether at least one adapter is running.
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

// watcherChannel defaults to the only adapter when watcher.channel is unset.
func watcherChannel(cfg *config.Config, adapters []channel.Adapter) string {
	if name := strings.TrimSpace(cfg.Watcher.Channel); name != "" {
		return name
	}
	if len(adapters) == 1 {
		return adapters[0].Name()
	}
	return ""
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
