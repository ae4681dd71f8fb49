package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/rocketscienceinc/rps-online/internal/config"
	"github.com/rocketscienceinc/rps-online/internal/gesture"
	"github.com/rocketscienceinc/rps-online/internal/narration"
	"github.com/rocketscienceinc/rps-online/internal/repository"
	"github.com/rocketscienceinc/rps-online/internal/repository/storage"
	"github.com/rocketscienceinc/rps-online/internal/transport/classifier"
	"github.com/rocketscienceinc/rps-online/internal/transport/speech"
	"github.com/rocketscienceinc/rps-online/internal/usecase"
	"github.com/rocketscienceinc/rps-online/transport/rest"
	"github.com/rocketscienceinc/rps-online/transport/websocket"
)

var (
	ErrAddrNotFound   = errors.New("redis address string is empty")
	ErrUnknownBackend = errors.New("unknown store backend")
)

// RunApp - runs the application.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	clock := clockwork.NewRealClock()

	tree, err := openStore(ctx, logger, conf, clock)
	if err != nil {
		return err
	}

	defer func() {
		if err = tree.Close(); err != nil {
			log.Error("could not close store", "error", err)
		}
	}()

	rooms := repository.NewRoomRepository(tree)
	hub := websocket.NewHub(logger)

	var announcer narration.Announcer = narration.Discard{}
	if conf.Narrator.APIKey != "" && conf.Narrator.VoiceID != "" {
		announcer = speech.New(conf.Narrator.URL, conf.Narrator.APIKey, conf.Narrator.VoiceID, conf.Narrator.Timeout, hub)
	} else {
		log.Warn("narrator credentials missing, narration is disabled")
	}

	narrator := narration.NewQueue(logger, announcer, conf.Narrator.QueueSize, conf.Narrator.Timeout)
	go narrator.Run(ctx)

	oracle := classifier.New(logger, conf.Classifier.URL, conf.Classifier.Timeout)
	deps := usecase.Deps{
		Logger:    logger,
		Oracle:    oracle,
		Capturer:  newCapturer(logger, oracle, clock, conf),
		Narrator:  narrator,
		Presenter: hub,
		Clock:     clock,
		Timings:   sessionTimings(conf.Session),
	}

	session := usecase.NewSession(deps, rooms)
	defer func() {
		if closeErr := session.Close(context.Background()); closeErr != nil {
			log.Error("could not leave the room on shutdown", "error", closeErr)
		}
	}()

	system := usecase.NewLocalMatch(deps, gesture.ScriptedOpponent{}, narration.SystemOpponent)

	var game usecase.GameUseCase
	if conf.Classifier.SecondURL != "" {
		second := classifier.New(logger, conf.Classifier.SecondURL, conf.Classifier.Timeout)
		opponent := gesture.NewDetectorOpponent(newCapturer(logger, second, clock, conf))
		game = usecase.NewGameUseCase(system, usecase.NewLocalMatch(deps, opponent, narration.LocalOpponent), session)
	} else {
		game = usecase.NewGameUseCase(system, nil, session)
	}

	// run HTTP server
	httpErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		handler := rest.Handler(rest.NewPingHandler(logger, rooms), conf.AllowedOrigins)
		if httpErr := rest.Start(ctx, conf.HTTPPort, handler); httpErr != nil {
			log.Error("HTTP server error", "error", httpErr)
			httpErrCh <- httpErr
		}
	}()

	// run Websocket server
	wsErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting WebSocket server", "port", conf.SocketPort)
		wsServer := websocket.New(logger, hub, game, conf.AllowedOrigins)
		if wsErr := wsServer.Start(ctx, conf.SocketPort); wsErr != nil {
			log.Error("WebSocket server error", "error", wsErr)
			wsErrCh <- wsErr
		}
	}()

	select {
	case err = <-httpErrCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case err = <-wsErrCh:
		return fmt.Errorf("WebSocket server error: %w", err)
	case <-ctx.Done():
		log.Info("Application context canceled, shutting down")
		return nil
	}
}

// openStore - the shared tree store selected in the config.
func openStore(ctx context.Context, logger *slog.Logger, conf *config.Config, clock clockwork.Clock) (storage.Tree, error) {
	switch conf.Store.Backend {
	case config.BackendRedis:
		if conf.Redis.Host == "" {
			return nil, ErrAddrNotFound
		}

		client, err := storage.NewRedisClient(ctx, storage.RedisOptions{
			Addr:     conf.Redis.GetRedisAddr(),
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("could not connect to redis storage: %w", err)
		}

		return storage.NewRedisTree(logger, client, conf.Redis.KeyPrefix+":", conf.Store.RoomTTL), nil
	case config.BackendFirestore:
		client, err := storage.NewFirestoreClient(ctx, conf.Firestore.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("could not connect to firestore: %w", err)
		}

		return storage.NewFirestoreTree(logger, client, conf.Firestore.Collection), nil
	case config.BackendMemory:
		logger.Warn("using the in-memory store, rooms are visible to this process only")
		return storage.NewMemoryTree(clock), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, conf.Store.Backend)
	}
}

func newCapturer(logger *slog.Logger, oracle gesture.Oracle, clock clockwork.Clock, conf *config.Config) *gesture.Capturer {
	return gesture.NewCapturer(logger, oracle, clock, conf.Classifier.Threshold, conf.Session.CaptureAttempts, conf.Session.CaptureInterval)
}

func sessionTimings(conf config.Session) usecase.Timings {
	timings := usecase.DefaultTimings()

	timings.CountdownTick = conf.CountdownTick
	timings.GoHold = conf.GoHold
	timings.LocalSettle = conf.LocalSettle
	timings.HostSettle = conf.HostSettle
	timings.GuestSettle = conf.GuestSettle
	timings.ReconcileInitial = conf.ReconcileInitial
	timings.ReconcileMax = conf.ReconcileMax
	timings.ReconcileDeadline = conf.ReconcileDeadline
	timings.ClearDelay = conf.ClearDelay
	timings.RoomInactivity = conf.RoomInactivity
	timings.OperationTimeout = conf.OperationTimeout
	timings.RoomCodeRetries = conf.RoomCodeRetries

	return timings
}
