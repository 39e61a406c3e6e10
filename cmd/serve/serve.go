package serve

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hvirtala/bottletag-go/internal/anomaly"
	"github.com/hvirtala/bottletag-go/internal/api"
	"github.com/hvirtala/bottletag-go/internal/conf"
	"github.com/hvirtala/bottletag-go/internal/datastore"
	"github.com/hvirtala/bottletag-go/internal/labels"
	"github.com/hvirtala/bottletag-go/internal/logging"
	"github.com/hvirtala/bottletag-go/internal/observability"
	"github.com/hvirtala/bottletag-go/internal/session"
	"github.com/hvirtala/bottletag-go/internal/volume"
)

// Command creates the serve command which runs the HTTP inventory service.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the BottleTag inventory service",
		Long:  "Open the datastore and serve the label lifecycle and inventory API over HTTP.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the serve command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.Service.Address, "address", viper.GetString("service.address"), "Listen address for the HTTP API")
	cmd.Flags().StringVar(&settings.Output.SQLite.Path, "dbpath", viper.GetString("output.sqlite.path"), "Path to the SQLite database")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}

func runServer(settings *conf.Settings) error {
	logger := logging.ForService("serve")

	ds := datastore.New(settings)
	if err := ds.Open(); err != nil {
		return fmt.Errorf("failed to open datastore: %w", err)
	}
	defer func() {
		if err := ds.Close(); err != nil && logger != nil {
			logger.Error("failed to close datastore", "error", err)
		}
	}()

	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	engine := volume.New(volume.ConfigFromSettings(settings))
	labelService := labels.NewService(ds, engine, labels.ConfigFromSettings(settings),
		logging.ForService("labels"), metrics)
	sessionService := session.NewService(ds, anomaly.PolicyFromSettings(settings),
		logging.ForService("session"), metrics)

	server, err := api.NewServer(settings,
		api.WithDataStore(ds),
		api.WithLabelService(labelService),
		api.WithSessionService(sessionService),
		api.WithMetrics(metrics),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	return server.StartWithGracefulShutdown()
}
