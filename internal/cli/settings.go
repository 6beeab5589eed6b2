package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/temirov/dirtree/internal/config"
	"github.com/temirov/dirtree/internal/types"
)

const (
	exclusionFlagName   = "e"
	noGitignoreFlagName = "no-gitignore"
	noIgnoreFlagName    = "no-ignore"
	includeGitFlagName  = "git"
	formatFlagName      = "format"
	contentFlagName     = "content"
	summaryFlagName     = "summary"
	tokensFlagName      = "tokens"
	modelFlagName       = "model"
	showFlagName        = "show"
	copyFlagName        = "copy"

	exclusionFlagDescription        = "exclude path pattern"
	disableGitignoreFlagDescription = "do not use .gitignore"
	disableIgnoreFlagDescription    = "do not use .ignore"
	includeGitFlagDescription       = "include git directory"
	formatFlagDescription           = "output format: raw, json, or xml"
	contentFlagDescription          = "embed loaded file content in the output"
	summaryFlagDescription          = "include summary of resulting files"
	tokensFlagDescription           = "include token counts"
	modelFlagDescription            = "tokenizer model to use for token counting"
	showFlagDescription             = "print the preview of one file instead of the tree"
	copyFlagDescription             = "copy the output to the system clipboard"

	defaultTokenizerModelName = "gpt-4o"
	invalidFormatMessage      = "invalid format value '%s'"
)

// renderFlags holds the flags shared by tree and archive.
type renderFlags struct {
	format            string
	includeContent    bool
	summary           bool
	tokens            bool
	model             string
	exclusionPatterns []string
	disableGitignore  bool
	disableIgnoreFile bool
	includeGit        bool
	show              string
	copy              bool
}

// renderSettings is the outcome of merging configuration and flags.
type renderSettings struct {
	format            string
	includeContent    bool
	summary           bool
	tokens            bool
	model             string
	exclusionPatterns []string
	useGitignore      bool
	useIgnoreFile     bool
	includeGit        bool
	show              string
	copy              bool
	concurrency       int
	maxFileBytes      int64
}

func addRenderFlags(command *cobra.Command, flags *renderFlags) {
	flagSet := command.Flags()
	flagSet.StringVar(&flags.format, formatFlagName, types.FormatRaw, formatFlagDescription)
	registerBooleanFlag(flagSet, &flags.includeContent, contentFlagName, false, contentFlagDescription)
	registerBooleanFlag(flagSet, &flags.summary, summaryFlagName, true, summaryFlagDescription)
	registerBooleanFlag(flagSet, &flags.tokens, tokensFlagName, false, tokensFlagDescription)
	flagSet.StringVar(&flags.model, modelFlagName, defaultTokenizerModelName, modelFlagDescription)
	flagSet.StringArrayVarP(&flags.exclusionPatterns, exclusionFlagName, exclusionFlagName, nil, exclusionFlagDescription)
	flagSet.StringVar(&flags.show, showFlagName, "", showFlagDescription)
	registerBooleanFlag(flagSet, &flags.copy, copyFlagName, false, copyFlagDescription)
}

func addIgnoreFlags(command *cobra.Command, flags *renderFlags) {
	flagSet := command.Flags()
	flagSet.BoolVar(&flags.disableGitignore, noGitignoreFlagName, false, disableGitignoreFlagDescription)
	flagSet.BoolVar(&flags.disableIgnoreFile, noIgnoreFlagName, false, disableIgnoreFlagDescription)
	flagSet.BoolVar(&flags.includeGit, includeGitFlagName, false, includeGitFlagDescription)
}

// resolveRenderSettings applies configuration values wherever the matching
// flag was not given explicitly.
func resolveRenderSettings(command *cobra.Command, flags renderFlags, configuration config.ApplicationConfiguration) (renderSettings, error) {
	changed := func(name string) bool {
		flag := command.Flags().Lookup(name)
		return flag != nil && flag.Changed
	}
	tree := configuration.Tree

	settings := renderSettings{
		format:         flags.format,
		includeContent: flags.includeContent,
		summary:        flags.summary,
		tokens:         flags.tokens,
		model:          flags.model,
		show:           flags.show,
		copy:           flags.copy,
		useGitignore:   !flags.disableGitignore,
		useIgnoreFile:  !flags.disableIgnoreFile,
		includeGit:     flags.includeGit,
	}
	if !changed(formatFlagName) && tree.Format != "" {
		settings.format = tree.Format
	}
	if !changed(contentFlagName) {
		settings.includeContent = config.BoolOrDefault(tree.IncludeContent, settings.includeContent)
	}
	if !changed(summaryFlagName) {
		settings.summary = config.BoolOrDefault(tree.Summary, settings.summary)
	}
	if !changed(tokensFlagName) {
		settings.tokens = config.BoolOrDefault(tree.Tokens.Enabled, settings.tokens)
	}
	if !changed(modelFlagName) && tree.Tokens.Model != "" {
		settings.model = tree.Tokens.Model
	}
	if !changed(copyFlagName) {
		settings.copy = config.BoolOrDefault(tree.Copy, settings.copy)
	}
	if !changed(noGitignoreFlagName) {
		settings.useGitignore = config.BoolOrDefault(tree.Paths.UseGitignore, settings.useGitignore)
	}
	if !changed(noIgnoreFlagName) {
		settings.useIgnoreFile = config.BoolOrDefault(tree.Paths.UseIgnoreFile, settings.useIgnoreFile)
	}
	if !changed(includeGitFlagName) {
		settings.includeGit = config.BoolOrDefault(tree.Paths.IncludeGit, settings.includeGit)
	}
	settings.exclusionPatterns = append(append([]string{}, tree.Paths.Exclude...), flags.exclusionPatterns...)
	if configuration.Loader.Concurrency != nil {
		settings.concurrency = *configuration.Loader.Concurrency
	}
	if configuration.Loader.MaxFileBytes != nil {
		settings.maxFileBytes = *configuration.Loader.MaxFileBytes
	}

	settings.format = strings.ToLower(settings.format)
	if !isSupportedFormat(settings.format) {
		return renderSettings{}, fmt.Errorf(invalidFormatMessage, settings.format)
	}
	return settings, nil
}

// isSupportedFormat reports whether the provided format is recognized.
func isSupportedFormat(format string) bool {
	switch format {
	case types.FormatRaw, types.FormatJSON, types.FormatXML:
		return true
	default:
		return false
	}
}

func (app *application) loadConfiguration() (config.ApplicationConfiguration, error) {
	return config.LoadApplicationConfiguration(config.LoadOptions{
		WorkingDirectory: app.workingDirectory,
		ExplicitFilePath: app.configPath,
	})
}
