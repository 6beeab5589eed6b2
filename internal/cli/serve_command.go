package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/dirtree/internal/collector"
	"github.com/temirov/dirtree/internal/commands"
	"github.com/temirov/dirtree/internal/content"
	"github.com/temirov/dirtree/internal/services/server"
	"github.com/temirov/dirtree/internal/store"
	"github.com/temirov/dirtree/internal/types"
)

const (
	addressFlagName        = "address"
	addressFlagDescription = "address to listen on"

	serveUse              = types.CommandServe
	serveShortDescription = "accept folder uploads over HTTP"
	serveLongDescription  = `Run an HTTP service that ingests uploaded files or zip archives into one tree
and answers tree, content, and selection queries while content loads.`
	serveUsageExample = `  # Listen on a custom port
  dirtree serve --address 127.0.0.1:9090`

	infoServingMessage = "serving uploads"
)

// createServeCommand returns the serve subcommand.
func createServeCommand(app *application) *cobra.Command {
	var address string

	serveCommand := &cobra.Command{
		Use:     serveUse,
		Short:   serveShortDescription,
		Long:    serveLongDescription,
		Example: serveUsageExample,
		Args:    cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			configuration, configErr := app.loadConfiguration()
			if configErr != nil {
				return configErr
			}
			listenAddress := address
			if !command.Flags().Changed(addressFlagName) && configuration.Server.Address != "" {
				listenAddress = configuration.Server.Address
			}
			loader := content.Loader{Logger: app.logger}
			if configuration.Loader.Concurrency != nil {
				loader.Concurrency = *configuration.Loader.Concurrency
			}
			if configuration.Loader.MaxFileBytes != nil {
				loader.MaxFileBytes = *configuration.Loader.MaxFileBytes
			}
			service := server.NewServer(server.Config{
				Address: listenAddress,
				Ingestor: commands.Ingestor{
					Collector: collector.Collector{Logger: app.logger},
					Loader:    loader,
					Logger:    app.logger,
					Exclude:   configuration.Tree.Paths.Exclude,
				},
				Store:          store.New(),
				Logger:         app.logger,
				AllowedOrigins: configuration.Server.AllowedOrigins,
			})
			return service.Run(command.Context(), func(actualAddress string) {
				app.logger.Info(infoServingMessage, zap.String("address", actualAddress))
			})
		},
	}
	serveCommand.Flags().StringVar(&address, addressFlagName, server.DefaultListenAddress, addressFlagDescription)
	return serveCommand
}
