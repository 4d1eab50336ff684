// framegate bridges chat platforms (Microsoft Bot Framework, Telegram) to a
// message-processing pipeline registered on its bus.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pxfen/framegate/pkg/api"
	"github.com/pxfen/framegate/pkg/bus"
	"github.com/pxfen/framegate/pkg/channels"
	"github.com/pxfen/framegate/pkg/config"
	"github.com/pxfen/framegate/pkg/heartbeat"
	"github.com/pxfen/framegate/pkg/logger"
)

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(home, ".framegate", "config.json")
}

func main() {
	configPath := flag.String("config", defaultConfigPath(), "path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.SetLevelName(cfg.Logging.Level)
	if cfg.Logging.FileEnabled {
		if err := logger.EnableFileLogging(cfg.Logging.FilePath, cfg.Logging.RotationEnabled,
			cfg.Logging.MaxSizeMB, cfg.Logging.MaxAgeDays); err != nil {
			logger.WarnCF("main", "File logging unavailable", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	messageBus := bus.NewMessageBus()
	manager := channels.NewManager(messageBus)

	if cfg.Channels.BotFramework.Enabled {
		ch, err := channels.NewBotFrameworkChannel(cfg.Channels.BotFramework, messageBus)
		if err != nil {
			logger.FatalCF("main", "Failed to create botframework channel", map[string]interface{}{
				"error": err.Error(),
			})
		}
		manager.Register(ch)
	}

	if cfg.Channels.Telegram.Enabled {
		ch, err := channels.NewTelegramChannel(cfg.Channels.Telegram, messageBus)
		if err != nil {
			logger.FatalCF("main", "Failed to create telegram channel", map[string]interface{}{
				"error": err.Error(),
			})
		}
		manager.Register(ch)
	}

	if len(manager.Names()) == 0 {
		logger.Fatal("No channels enabled; nothing to do")
	}

	if cfg.Pipeline.Echo {
		messageBus.RegisterHandler(bus.WildcardChannel, echoHandler)
		logger.InfoC("main", "Built-in echo pipeline registered")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager.StartAll(ctx)
	go manager.DispatchOutbound(ctx)

	var apiServer *api.Server
	if cfg.Gateway.Enabled {
		apiServer = api.NewServer(cfg.Gateway, manager, messageBus)
		if err := apiServer.Start(ctx); err != nil {
			logger.ErrorCF("main", "Failed to start monitoring server", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	if cfg.Heartbeat.Enabled {
		hb, err := heartbeat.New(cfg.Heartbeat, messageBus)
		if err != nil {
			logger.WarnCF("main", "Heartbeat disabled", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			go hb.Run(ctx)
		}
	}

	logger.InfoCF("main", "framegate running", map[string]interface{}{
		"channels": manager.Names(),
	})

	<-ctx.Done()
	logger.InfoC("main", "Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	manager.StopAll(shutdownCtx)
	if apiServer != nil {
		apiServer.Stop(shutdownCtx)
	}
	messageBus.Close()
}

// echoHandler is the built-in pipeline: it replies with the inbound text.
// Real deployments register their own handler instead.
func echoHandler(ctx context.Context, msg bus.InboundMessage) error {
	if msg.Reply == nil {
		return fmt.Errorf("no reply capability on message from %s", msg.SenderID)
	}
	return msg.Reply.SendText(ctx, msg.Content)
}
