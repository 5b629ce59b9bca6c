// carebot is the on-device agent for a 6-joint robotic arm. It takes
// commands from a backend over WebSocket or MQTT, plays gestures, tracks
// faces with the camera, and streams joint telemetry back. Missing
// hardware degrades the agent instead of killing it: commands that need
// the absent piece fail with an unavailability tag.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carebotlabs/go-carebot/internal/config"
	"github.com/carebotlabs/go-carebot/internal/log"
	"github.com/carebotlabs/go-carebot/pkg/arm"
	"github.com/carebotlabs/go-carebot/pkg/carebot"
	"github.com/carebotlabs/go-carebot/pkg/gesture"
	"github.com/carebotlabs/go-carebot/pkg/protocol"
	"github.com/carebotlabs/go-carebot/pkg/telemetry"
	"github.com/carebotlabs/go-carebot/pkg/tracking"
	"github.com/carebotlabs/go-carebot/pkg/transport"
	"github.com/carebotlabs/go-carebot/pkg/vision"
)

var (
	configPath    = flag.String("config", "", "config file path (default carebot.json)")
	transportKind = flag.String("transport", "ws", "backend transport: ws or mqtt")
	robotID       = flag.String("robot-id", "", "robot identity (overrides config)")
	orientation   = flag.String("orientation", "", "arm orientation, left or right (overrides config)")
	debug         = flag.Bool("debug", false, "enable debug logging")
)

const (
	bootTimeout     = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

func main() {
	flag.Parse()

	level := ""
	if *debug {
		level = "debug"
	}
	log.Init(level)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("config load failed", "err", err)
		os.Exit(1)
	}
	if *robotID != "" {
		cfg.RobotID = *robotID
	}
	if *orientation != "" {
		cfg.Orientation = config.Orientation(*orientation)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("config invalid", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Arm bus.
	driver := openArm(ctx, cfg)
	arb := arm.NewArbiter()
	var (
		writer  *arm.Writer
		engine  *gesture.Engine
		sampler *telemetry.Sampler
		tracker *tracking.Tracker
	)
	if driver != nil {
		defer driver.Close()
		writer = arm.NewWriter(driver, arb)
		engine = gesture.NewEngine(driver, arb, cfg.Orientation == config.OrientationRight)
		engine.Park(ctx)
	}

	// Camera. Face tracking needs the arm too: the tracker steers it.
	var source *vision.FaceSource
	if driver != nil {
		src, err := vision.NewFaceSource(cfg.CameraIndex, cfg.CascadePath)
		if err != nil {
			log.Warn("face tracking unavailable", "err", err)
		} else {
			source = src
			defer src.Release()
		}
	}

	caps := carebot.Capabilities(driver != nil, source != nil)

	// The transport calls back into the app, and the app publishes
	// through the transport; the handler closure breaks the cycle.
	var app *carebot.App
	trans, err := buildTransport(cfg, *transportKind, caps, func(raw []byte) {
		app.HandleRaw(raw)
	})
	if err != nil {
		log.Error("transport setup failed", "err", err)
		os.Exit(1)
	}

	if source != nil {
		trackCfg := tracking.DefaultConfig()
		trackCfg.StatusInterval = cfg.UpdateInterval()
		tracker = tracking.New(trackCfg, source, driver, arb, trans)
	}
	if driver != nil {
		sampler = telemetry.New(driver, arb, trans, writer, cfg.UpdateInterval())
	}

	app = carebot.New(carebot.Options{
		RobotID: cfg.RobotID,
		Writer:  writer,
		Engine:  engine,
		Tracker: tracker,
		Sampler: sampler,
		Sink:    trans,
	})

	go app.Run(ctx)

	// The transport outlives the signal context so the goodbye below can
	// still drain.
	transCtx, transCancel := context.WithCancel(context.Background())
	transDone := make(chan struct{})
	go func() {
		trans.Run(transCtx)
		close(transDone)
	}()

	log.Info("carebot up",
		"robot_id", cfg.RobotID, "transport", *transportKind,
		"arm", driver != nil, "camera", source != nil, "capabilities", caps)
	<-ctx.Done()
	log.Info("shutting down")

	shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	app.Shutdown(shCtx)

	trans.Publish(protocol.NewBye(1000, "shutdown"))
	transCancel()
	select {
	case <-transDone:
	case <-time.After(3 * time.Second):
		log.Warn("transport did not stop in time")
	}
}

// openArm opens the configured serial port, or probes for one. A missing
// arm is reported, not fatal.
func openArm(ctx context.Context, cfg *config.Config) *arm.FeetechDriver {
	bootCtx, cancel := context.WithTimeout(ctx, bootTimeout)
	defer cancel()

	if port := cfg.ResolveArmPort(); port != "" {
		drv, err := arm.OpenFeetech(bootCtx, port, cfg.ArmBaud)
		if err != nil {
			log.Warn("arm unavailable, running degraded", "port", port, "err", err)
			return nil
		}
		return drv
	}
	drv, err := arm.Discover(bootCtx, cfg.ArmBaud)
	if err != nil {
		log.Warn("arm unavailable, running degraded", "err", err)
		return nil
	}
	return drv
}

func buildTransport(cfg *config.Config, kind string, caps []string, handler transport.Handler) (transport.Client, error) {
	switch kind {
	case "ws":
		return transport.NewWS(transport.WSConfig{
			URL:          cfg.WSURL,
			RobotID:      cfg.RobotID,
			Capabilities: caps,
		}, handler), nil
	case "mqtt":
		return transport.NewMQTT(transport.MQTTConfig{
			BrokerURL:    cfg.BrokerURL(),
			Base:         cfg.MQTTBase,
			QoS:          byte(cfg.MQTTQoS),
			RobotID:      cfg.RobotID,
			Capabilities: caps,
		}, handler), nil
	default:
		return nil, fmt.Errorf("unknown transport %q (want ws or mqtt)", kind)
	}
}
