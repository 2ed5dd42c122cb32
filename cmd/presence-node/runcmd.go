package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sweeney/presence-node/internal/config"
	"github.com/sweeney/presence-node/internal/gpio"
	"github.com/sweeney/presence-node/internal/logic"
	"github.com/sweeney/presence-node/internal/mqtt"
	"github.com/sweeney/presence-node/internal/node"
	"github.com/sweeney/presence-node/internal/radio"
	"github.com/sweeney/presence-node/internal/scan"
	"github.com/sweeney/presence-node/internal/status"
	"github.com/sweeney/presence-node/internal/store"
	"github.com/sweeney/presence-node/internal/web"
)

// Node identity is generated once and kept in the store.
const (
	nodeNamespace = "node"
	nodeIDKey     = "id"
)

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "starts scanning and drives the presence output until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sig)
			return run(a.cfg, sig)
		},
	}
	config.BindFlags(a.v, cmd.Flags())
	return cmd
}

func run(cfg config.Config, sig <-chan os.Signal) error {
	// The node owns the registry while it runs; known add/remove/import
	// refuse to edit it underneath.
	lock, err := lockDatabase(cfg.DBPath)
	if err != nil {
		if errors.Is(err, store.ErrLocked) {
			return fmt.Errorf("%s: another node is running on this database", cfg.DBPath)
		}
		return err
	}
	defer lock.Release()

	st, err := openStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	nodeID, err := resolveNodeID(st, cfg.NodeID)
	if err != nil {
		return err
	}
	logger := log.WithFields(log.Fields{"component": "main", "node": nodeID})

	engine := logic.NewEngine(cfg.Limits(), st)
	if err := engine.Load(); err != nil {
		return fmt.Errorf("load registry: %w", err)
	}

	rad, err := openRadio(cfg)
	if err != nil {
		return err
	}
	defer rad.Close()

	output, err := openOutput(cfg)
	if err != nil {
		return err
	}
	defer output.Close()

	publisher, err := mqtt.NewRealPublisher(mqtt.Options{
		Broker:     cfg.Broker,
		ClientID:   "presence-node-" + nodeID,
		Topics:     mqtt.NewTopics(cfg.TopicPrefix, nodeID),
		OutboxSize: cfg.OutboxSize,
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	tracker := status.NewTracker(time.Now(), cfg.Status(nodeID))
	scanner := scan.NewController(cfg.Scan(), rad, engine)

	n := node.New(node.Options{
		Engine:     engine,
		Scanner:    scanner,
		Output:     output,
		Publisher:  publisher,
		MQTTStatus: publisher,
		Tracker:    tracker,
		Heartbeat:  cfg.Heartbeat,
		Network:    readNetworkInfo,
	})

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, n)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("http server failed")
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
		logger.WithField("addr", cfg.HTTPAddr).Info("http server listening")
	}

	logger.WithFields(log.Fields{
		"radio":     cfg.Radio,
		"scan":      cfg.ScanDuration,
		"cycle":     cfg.CycleDuration,
		"timeout":   cfg.DeviceTimeout,
		"broker":    cfg.Broker,
		"heartbeat": cfg.Heartbeat,
		"known":     engine.Registry().Len(),
	}).Info("started")

	ticker := time.NewTicker(cfg.Loop)
	defer ticker.Stop()

	return n.Run(ticker.C, sig)
}

// resolveNodeID returns configured when set. Otherwise it returns the stored
// identity, generating and storing one on first start.
func resolveNodeID(st store.Store, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	sess, err := st.Open(nodeNamespace, false)
	if err != nil {
		return "", fmt.Errorf("open node namespace: %w", err)
	}
	id := sess.GetString(nodeIDKey, "")
	if id == "" {
		id = uuid.NewString()
		if err := sess.PutString(nodeIDKey, id); err != nil {
			sess.Close()
			return "", fmt.Errorf("store node id: %w", err)
		}
		log.WithFields(log.Fields{"component": "main", "node": id}).Info("generated node id")
	}
	if err := sess.Close(); err != nil {
		return "", fmt.Errorf("store node id: %w", err)
	}
	return id, nil
}

func openRadio(cfg config.Config) (radio.Radio, error) {
	switch cfg.Radio {
	case config.RadioSerial:
		r, err := radio.OpenSerial(cfg.SerialPort, cfg.SerialBaud, cfg.QueueSize)
		if err != nil {
			return nil, err
		}
		return r, nil
	case config.RadioFake:
		log.WithField("component", "main").Warn("using fake radio, no devices will be seen")
		return radio.NewFake(), nil
	default:
		r, err := radio.NewBLE(cfg.QueueSize)
		if err != nil {
			return nil, fmt.Errorf("init ble: %w", err)
		}
		return r, nil
	}
}

func openOutput(cfg config.Config) (gpio.Output, error) {
	if !cfg.GPIOEnabled {
		return &gpio.Nop{}, nil
	}
	out, err := gpio.NewRealOutput(cfg.GPIOChip, cfg.PinRelay, cfg.PinLED)
	if err != nil {
		return nil, fmt.Errorf("init gpio: %w", err)
	}
	return out, nil
}
