// README: Entry point; loads config, wires services, starts the HTTP server.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"porter/internal/config"
	httptransport "porter/internal/http"
	"porter/internal/infra"
	"porter/internal/modules/cancellation"
	"porter/internal/modules/order"
	"porter/internal/modules/routes"
	"porter/internal/modules/tracking"
	"porter/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal(err)
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)

	// Without an API key the engine runs with local distance/ETA only;
	// broadcasts simply carry no polyline.
	var resolver tracking.RouteResolver
	if cfg.Maps.APIKey != "" {
		mapsClient, err := infra.NewMapsClient(cfg.Maps.APIKey)
		if err != nil {
			log.Fatalf("maps init: %v", err)
		}
		resolver = routes.NewResolver(routes.NewGoogleProvider(mapsClient), cfg.Route)
	} else {
		log.Print("PORTER_MAPS_KEY not set; route polylines disabled")
	}

	trackingStore := tracking.NewStore(redisClient)
	trackingSvc := tracking.NewService(trackingStore, resolver)

	orderStore := order.NewStore(dbPool)
	orderSvc := order.NewService(orderStore, trackingSvc)

	cancelStore := cancellation.NewStore(dbPool)
	cancelSvc := cancellation.NewService(orderSvc, cancelStore, cfg.Policy.LateWindowHours)

	gateway := ws.NewGateway(trackingSvc)

	handler := httptransport.NewRouter(httptransport.RouterDeps{
		Orders:       orderSvc,
		Cancellation: cancelSvc,
		Tracking:     trackingSvc,
		Gateway:      gateway,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Printf("porter-api listening on %s", cfg.HTTP.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
