package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/camden-git/mediasysintegrity/handlers"
	"github.com/camden-git/mediasysintegrity/realtime"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and the websocket event stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hub := realtime.NewHub()
			app, err := ctx.openWith(hub)
			if err != nil {
				return err
			}
			defer app.Close()

			runCtx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go hub.Run(runCtx)

			router := handlers.NewRouter(app.Config, handlers.Router{
				Integrity:   &handlers.IntegrityHandler{Engine: app.Engine},
				People:      &handlers.PersonHandler{Resolver: app.Resolver},
				Consistency: &handlers.ConsistencyHandler{Auditor: app.Auditor},
				Hub:         hub,
			})

			server := &http.Server{
				Addr:              ":" + app.Config.Port,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Printf("Server starting on port %s", app.Config.Port)
				log.Printf("Using database: %s", app.Config.DatabasePath)
				if app.Config.RecognitionServiceURL == "" {
					log.Printf("Info: RECOGNITION_SERVICE_URL not set, index rebuilds are disabled")
				}
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-runCtx.Done():
			}

			log.Printf("Shutting down server...")
			shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
			defer done()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return err
			}
			return nil
		},
	}
}
