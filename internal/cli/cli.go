// Package cli provides the command line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/dirtree/internal/services/clipboard"
	"github.com/temirov/dirtree/internal/utils"
)

const (
	versionFlagName      = "version"
	configFlagName       = "config"
	versionTemplate      = "dirtree version: %s\n"
	rootUse              = "dirtree"
	rootShortDescription = "dirtree command line interface"
	rootLongDescription  = `dirtree ingests a folder into an in-memory tree and loads the text of every file.
Use tree to ingest local paths, archive to ingest a zip, and serve to accept uploads over HTTP.`
	versionFlagDescription = "display application version"
	configFlagDescription  = "configuration file to read instead of ./" + utils.LocalConfigFileName

	errorWorkingDirectoryFormat = "unable to determine working directory: %w"
)

// application carries the dependencies shared by every command.
type application struct {
	logger           *zap.Logger
	fileSystem       afero.Fs
	workingDirectory string
	stdout           io.Writer
	copier           clipboard.Copier
	configPath       string
}

// Execute runs the dirtree application until it finishes or is interrupted.
func Execute(logger *zap.Logger) error {
	workingDirectory, workingDirectoryError := os.Getwd()
	if workingDirectoryError != nil {
		return fmt.Errorf(errorWorkingDirectoryFormat, workingDirectoryError)
	}
	app := &application{
		logger:           logger,
		fileSystem:       afero.NewOsFs(),
		workingDirectory: workingDirectory,
		stdout:           os.Stdout,
		copier:           clipboard.NewService(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCommand := createRootCommand(app)
	rootCommand.SetArgs(normalizeBooleanFlagArguments(rootCommand, os.Args[1:]))
	return rootCommand.ExecuteContext(ctx)
}

// createRootCommand builds the root Cobra command.
func createRootCommand(app *application) *cobra.Command {
	if app.logger == nil {
		app.logger = zap.NewNop()
	}
	var showVersion bool

	rootCommand := &cobra.Command{
		Use:          rootUse,
		Short:        rootShortDescription,
		Long:         rootLongDescription,
		SilenceUsage: true,
		RunE: func(command *cobra.Command, arguments []string) error {
			if showVersion {
				fmt.Fprintf(command.OutOrStdout(), versionTemplate, utils.GetApplicationVersion())
				return nil
			}
			return command.Help()
		},
	}
	rootCommand.SetOut(app.stdout)
	rootCommand.Flags().BoolVar(&showVersion, versionFlagName, false, versionFlagDescription)
	rootCommand.PersistentFlags().StringVar(&app.configPath, configFlagName, "", configFlagDescription)
	rootCommand.AddCommand(
		createTreeCommand(app),
		createArchiveCommand(app),
		createServeCommand(app),
		createInitCommand(app),
	)
	rootCommand.InitDefaultHelpCmd()
	rootCommand.InitDefaultCompletionCmd()
	return rootCommand
}
