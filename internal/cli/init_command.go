package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/temirov/dirtree/internal/config"
)

const (
	globalFlagName        = "global"
	forceFlagName         = "force"
	globalFlagDescription = "write the configuration into ~/.dirtree instead of the working directory"
	forceFlagDescription  = "overwrite an existing configuration file"

	initUse              = "init"
	initShortDescription = "write a default configuration file"
	initWrittenTemplate  = "configuration written to %s\n"
)

// createInitCommand returns the init subcommand.
func createInitCommand(app *application) *cobra.Command {
	var global bool
	var force bool

	initCommand := &cobra.Command{
		Use:   initUse,
		Short: initShortDescription,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			target := config.InitTargetLocal
			if global {
				target = config.InitTargetGlobal
			}
			destination, initErr := config.InitializeConfiguration(config.InitOptions{
				Target:           target,
				Force:            force,
				WorkingDirectory: app.workingDirectory,
			})
			if initErr != nil {
				return initErr
			}
			fmt.Fprintf(command.OutOrStdout(), initWrittenTemplate, destination)
			return nil
		},
	}
	initCommand.Flags().BoolVar(&global, globalFlagName, false, globalFlagDescription)
	initCommand.Flags().BoolVar(&force, forceFlagName, false, forceFlagDescription)
	return initCommand
}
