package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ognbridge/ogn2fanet/internal/aprs"
	"github.com/ognbridge/ogn2fanet/internal/archive"
	"github.com/ognbridge/ogn2fanet/internal/config"
	"github.com/ognbridge/ogn2fanet/internal/db"
	"github.com/ognbridge/ogn2fanet/internal/fanet"
	"github.com/ognbridge/ogn2fanet/internal/filter"
	natsclient "github.com/ognbridge/ogn2fanet/internal/nats"
	redisclient "github.com/ognbridge/ogn2fanet/internal/redis"
	"github.com/ognbridge/ogn2fanet/internal/server"
	"github.com/ognbridge/ogn2fanet/internal/stats"
	"github.com/ognbridge/ogn2fanet/internal/types"
)

const statsReportInterval = 5 * time.Minute

// Publisher interface for testability
type Publisher interface {
	PublishFrame(data []byte) error
}

// DeviceStore interface for testability
type DeviceStore interface {
	StoreDeviceState(ctx context.Context, state *types.DeviceState) error
}

// Bridge owns the parse-filter-encode-publish pipeline
type Bridge struct {
	log       *logrus.Logger
	parser    *aprs.Parser
	filter    *filter.Filter
	publisher Publisher
	devices   DeviceStore      // nil when Redis is not configured
	archive   *archive.Archive // nil when ARCHIVE_DIR is not set
	stats     *stats.Stats
}

// ProcessLine runs one raw line through the full pipeline
func (b *Bridge) ProcessLine(ctx context.Context, line aprs.Line) {
	b.stats.IncrementReceived()

	if b.archive != nil {
		if err := b.archive.WriteLine(line.Text, line.Received); err != nil {
			b.log.WithError(err).Warn("Failed to archive feed line")
		}
	}

	msg := b.parser.Parse(line.Text, line.Received)
	if msg == nil {
		return
	}
	b.stats.IncrementParsed()

	if !b.parser.Validate(msg) {
		b.filter.MarkInvalid()
		return
	}
	if !b.filter.ShouldProcess(msg) {
		return
	}
	if !msg.IsPosition() {
		return
	}

	buf, err := fanet.Encode(msg)
	if err != nil {
		b.log.WithError(err).WithField("device_id", msg.DeviceID).Debug("fix not convertible")
		b.stats.IncrementErrors()
		return
	}
	b.stats.IncrementConverted()

	if err := b.publisher.PublishFrame(buf); err != nil {
		b.log.WithError(err).Error("Failed to publish frame")
		b.stats.IncrementErrors()
		return
	}
	b.stats.IncrementPublished()

	if b.devices != nil {
		state := &types.DeviceState{
			DeviceID:     msg.DeviceID,
			Latitude:     msg.Latitude,
			Longitude:    msg.Longitude,
			Altitude:     msg.Altitude,
			Category:     msg.Category,
			CategoryName: msg.CategoryName,
			ClimbRate:    msg.ClimbRate,
			LastSeen:     msg.Received,
		}
		if err := b.devices.StoreDeviceState(ctx, state); err != nil {
			b.log.WithError(err).Warn("Failed to store device state in Redis")
		}
	}

	b.log.WithFields(logrus.Fields{
		"device_id": msg.DeviceID,
		"category":  msg.CategoryName,
		"lat":       msg.Latitude,
		"lon":       msg.Longitude,
	}).Debug("frame published")
}

// snapshotter assembles point-in-time stats views for the HTTP server and
// the persistence loop
type snapshotter struct {
	bridge *Bridge
	client *aprs.Client
}

func (s *snapshotter) Snapshot() *types.StatsSnapshot {
	status := s.client.Status()
	return s.bridge.stats.BuildSnapshot(
		s.bridge.filter.Stats(),
		stats.TransportStatus{
			SessionID:         status.SessionID,
			Connected:         status.Connected,
			ReconnectAttempts: status.ReconnectAttempts,
		},
		len(s.bridge.filter.ActiveDevices()),
	)
}

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{})
	}
	logger.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := newLogger(cfg)

	publisher, err := natsclient.New(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		logger.Fatalf("Failed to create NATS client: %v", err)
	}
	defer publisher.Close()

	st := stats.New()

	var deviceStore DeviceStore
	if cfg.RedisAddr != "" {
		rc, err := redisclient.New(cfg.RedisAddr, cfg.Filtering.MaxMessageAge)
		if err != nil {
			logger.Fatalf("Failed to create Redis client: %v", err)
		}
		defer rc.Close() //nolint:errcheck
		deviceStore = rc
	}

	if cfg.DatabaseURL != "" {
		dbClient, err := db.New(cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		defer dbClient.Close() //nolint:errcheck
		st.SetDB(dbClient)
	}

	var feedArchive *archive.Archive
	if cfg.ArchiveDir != "" {
		feedArchive = archive.New(cfg.ArchiveDir, logger)
		if err := feedArchive.Start(); err != nil {
			logger.Fatalf("Failed to start feed archive: %v", err)
		}
	}

	trafficFilter := filter.New(filter.Config{
		RateLimit:       cfg.Filtering.RateLimit,
		MaxMessageAge:   cfg.Filtering.MaxMessageAge,
		CleanupInterval: cfg.Filtering.CacheCleanupInterval,
		MaxCacheSize:    cfg.Filtering.MaxCacheSize,
	}, logger)

	bridge := &Bridge{
		log:       logger,
		parser:    aprs.NewParser(cfg.Filtering.AircraftTypes, cfg.Filtering.Region, logger),
		filter:    trafficFilter,
		publisher: publisher,
		devices:   deviceStore,
		archive:   feedArchive,
		stats:     st,
	}

	client := aprs.NewClient(cfg.OGN, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snap := &snapshotter{bridge: bridge, client: client}
	httpServer := server.New(cfg.HTTPAddr, logger, snap, trafficFilter, client)
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Errorf("HTTP server error: %v", err)
		}
	}()

	// The first connection attempt is the only one allowed to fail hard;
	// later failures go through the reconnect path inside the client.
	if err := client.Connect(); err != nil {
		logger.Fatalf("Failed to connect to OGN server: %v", err)
	}
	st.SetSessionID(client.Status().SessionID)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case line, ok := <-client.Lines():
				if !ok {
					return
				}
				bridge.ProcessLine(ctx, line)
			}
		}
	}()

	go reportStats(ctx, logger, bridge, client)
	go st.StartPersistence(ctx, statsReportInterval, snap.Snapshot)

	logger.WithFields(logrus.Fields{
		"server":  cfg.OGN.Server,
		"filter":  cfg.OGN.Filter,
		"subject": publisher.Subject(),
		"region":  cfg.Filtering.Region,
		"types":   cfg.Filtering.AircraftTypes,
	}).Info("OGN to FANET bridge started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigChan:
		logger.Infof("Received signal %v, shutting down", sig)
	case err := <-client.Fatal():
		logger.Errorf("Transport session exhausted: %v", err)
		exitCode = 1
	}

	cancel()
	client.Disconnect()
	trafficFilter.Stop()
	if feedArchive != nil {
		if err := feedArchive.Stop(); err != nil {
			logger.Errorf("Archive shutdown error: %v", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Errorf("HTTP shutdown error: %v", err)
	}

	logger.Info("Bridge stopped")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

// reportStats logs a processing summary every five minutes
func reportStats(ctx context.Context, logger *logrus.Logger, bridge *Bridge, client *aprs.Client) {
	ticker := time.NewTicker(statsReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := client.Status()
			fs := bridge.filter.Stats()
			logger.WithFields(logrus.Fields{
				"uptime":         bridge.stats.Uptime().Round(time.Second).String(),
				"connected":      status.Connected,
				"session_lines":  status.MessageCount,
				"reconnects":     status.ReconnectAttempts,
				"filter":         fs,
				"active_devices": len(bridge.filter.ActiveDevices()),
			}).Info("processing statistics")
		}
	}
}
