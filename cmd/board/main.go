// Command board runs a headless kitchen or cashier board: it follows the
// restaurant's orders live and rings, notifies or speaks on new orders.
package main

import (
	"context"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/yeremiapane/order-relay/config"
	"github.com/yeremiapane/order-relay/models"
	"github.com/yeremiapane/order-relay/realtime"
	"github.com/yeremiapane/order-relay/services"
	"github.com/yeremiapane/order-relay/utils"
)

func main() {
	cfg, err := config.LoadBoard()
	if err != nil {
		utils.ErrorLogger.Fatalf("Invalid configuration: %v", err)
	}
	utils.InitLogger(cfg.LogLevel)

	viewport := models.Viewport(cfg.Viewport)
	api := services.NewHTTPOrderAPI(cfg.APIURL, cfg.RestaurantID, viewport, cfg.ActorID, cfg.Token, cfg.HTTPTimeout)

	socketURL, err := url.Parse(cfg.SocketURL)
	if err != nil {
		utils.ErrorLogger.Fatalf("Invalid SOCKET_URL: %v", err)
	}
	q := socketURL.Query()
	q.Set("token", cfg.Token)
	socketURL.RawQuery = q.Encode()
	ch := realtime.NewChannel(socketURL.String(), realtime.Options{})

	var (
		system services.SystemNotifier
		speech services.Speaker
	)
	if cfg.Desktop {
		system = services.NewCommandNotifier()
	}
	if cfg.SpeechCommand != "" {
		speech = services.NewCommandSpeaker(cfg.SpeechCommand)
	}
	notifier := services.NewNotifier(services.NewBellPlayer(), system, speech)

	board, err := services.NewBoard(viewport, cfg.RestaurantID, api, ch, notifier, nil, cfg.PollInterval)
	if err != nil {
		utils.ErrorLogger.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := board.Start(ctx); err != nil {
		utils.ErrorLogger.Fatalf("Board failed to start: %v", err)
	}
	if cfg.Sound {
		if err := notifier.EnableSound(); err != nil {
			utils.ErrorLogger.Warnf("Sound disabled: %v", err)
		}
	}

	<-ctx.Done()
	utils.InfoLogger.Println("Stopping board...")
	board.Stop()
}
