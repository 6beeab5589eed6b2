package cli

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/dirtree/internal/collector"
	"github.com/temirov/dirtree/internal/commands"
	"github.com/temirov/dirtree/internal/config"
	"github.com/temirov/dirtree/internal/content"
	"github.com/temirov/dirtree/internal/output"
	"github.com/temirov/dirtree/internal/sources"
	"github.com/temirov/dirtree/internal/store"
	"github.com/temirov/dirtree/internal/tokenizer"
	"github.com/temirov/dirtree/internal/types"
)

const (
	defaultPath = "."

	treeUse              = types.CommandTree + " [paths...]"
	treeAlias            = "t"
	treeShortDescription = "ingest local paths and render the tree (" + treeAlias + ")"
	treeLongDescription  = `Ingest each path as a dropped folder or file, load the text of every file,
and render the resulting tree. Use --format to select raw, json, or xml output.`
	treeUsageExample = `  # Render the current folder with file content as JSON
  dirtree tree --format json --content .

  # Show one file's preview
  dirtree tree --show proj/README.md ./proj

  # Exclude the vendor directory
  dirtree tree -e vendor/ .`

	archiveUse              = types.CommandArchive + " <file.zip>"
	archiveAlias            = "a"
	archiveShortDescription = "ingest the members of a zip archive (" + archiveAlias + ")"
	archiveLongDescription  = `Ingest every file of a zip archive using the member paths as relative paths,
then render the resulting tree like the tree command.`
	archiveUsageExample = `  # Render an archive as XML
  dirtree archive --format xml project.zip`

	errorAbsolutePathFormat = "abs failed for '%s': %w"
	errorPathMissingFormat  = "path '%s' does not exist"
	errorStatFormat         = "stat failed for '%s': %w"
	errorOpenArchiveFormat  = "open archive %s: %w"
	errorShowFormat         = "show %s: %w"
	errorCopyFormat         = "copy output to clipboard: %w"
	errorNoValidPaths       = "no valid paths"

	warningLoadCanceledMessage = "content loading interrupted"
)

// createTreeCommand returns the tree subcommand.
func createTreeCommand(app *application) *cobra.Command {
	var flags renderFlags

	treeCommand := &cobra.Command{
		Use:     treeUse,
		Aliases: []string{treeAlias},
		Short:   treeShortDescription,
		Long:    treeLongDescription,
		Example: treeUsageExample,
		Args:    cobra.ArbitraryArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			if len(arguments) == 0 {
				arguments = []string{defaultPath}
			}
			configuration, configErr := app.loadConfiguration()
			if configErr != nil {
				return configErr
			}
			settings, settingsErr := resolveRenderSettings(command, flags, configuration)
			if settingsErr != nil {
				return settingsErr
			}
			return app.runTree(command.Context(), arguments, settings)
		},
	}

	addRenderFlags(treeCommand, &flags)
	addIgnoreFlags(treeCommand, &flags)
	return treeCommand
}

// createArchiveCommand returns the archive subcommand.
func createArchiveCommand(app *application) *cobra.Command {
	var flags renderFlags

	archiveCommand := &cobra.Command{
		Use:     archiveUse,
		Aliases: []string{archiveAlias},
		Short:   archiveShortDescription,
		Long:    archiveLongDescription,
		Example: archiveUsageExample,
		Args:    cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			configuration, configErr := app.loadConfiguration()
			if configErr != nil {
				return configErr
			}
			settings, settingsErr := resolveRenderSettings(command, flags, configuration)
			if settingsErr != nil {
				return settingsErr
			}
			return app.runArchive(command.Context(), arguments[0], settings)
		},
	}

	addRenderFlags(archiveCommand, &flags)
	return archiveCommand
}

// validatedPath is a resolved command-line path.
type validatedPath struct {
	absolutePath string
	isDirectory  bool
}

func (app *application) runTree(ctx context.Context, paths []string, settings renderSettings) error {
	validatedPaths, validationErr := app.resolveAndValidatePaths(paths)
	if validationErr != nil {
		return validationErr
	}

	entries := make([]collector.Entry, 0, len(validatedPaths))
	rootExclusions := make(map[string][]string)
	for _, path := range validatedPaths {
		entry, entryErr := sources.NewFilesystemEntry(app.fileSystem, path.absolutePath, sources.FilesystemOptions{})
		if entryErr != nil {
			return entryErr
		}
		entries = append(entries, entry)
		if !path.isDirectory {
			continue
		}
		patterns, patternErr := config.LoadRecursiveIgnorePatterns(app.fileSystem, path.absolutePath, config.IgnoreOptions{
			UseGitignore:  settings.useGitignore,
			UseIgnoreFile: settings.useIgnoreFile,
			IncludeGit:    settings.includeGit,
		})
		if patternErr != nil {
			return patternErr
		}
		rootExclusions[entry.Name()] = append(rootExclusions[entry.Name()], patterns...)
	}

	ingestor, ingestorErr := app.newIngestor(settings, settings.exclusionPatterns)
	if ingestorErr != nil {
		return ingestorErr
	}
	ingestor.RootExclude = rootExclusions
	treeStore := store.New()
	ingestion, ingestErr := ingestor.IngestDropped(ctx, ctx, treeStore, entries)
	if ingestErr != nil {
		return ingestErr
	}
	return app.render(treeStore, ingestion, settings)
}

func (app *application) runArchive(ctx context.Context, archivePath string, settings renderSettings) error {
	absolutePath := archivePath
	if !filepath.IsAbs(absolutePath) {
		absolutePath = filepath.Join(app.workingDirectory, archivePath)
	}
	archive, openErr := openArchive(app, absolutePath)
	if openErr != nil {
		return fmt.Errorf(errorOpenArchiveFormat, archivePath, openErr)
	}

	rootName := strings.TrimSuffix(filepath.Base(absolutePath), filepath.Ext(absolutePath))
	ingestor, ingestorErr := app.newIngestor(settings, settings.exclusionPatterns)
	if ingestorErr != nil {
		return ingestorErr
	}
	ingestor.RootName = rootName
	treeStore := store.New()
	ingestion, ingestErr := ingestor.IngestPicked(ctx, treeStore, sources.FromZip(archive))
	if ingestErr != nil {
		return ingestErr
	}
	return app.render(treeStore, ingestion, settings)
}

// openArchive buffers a zip from the application's filesystem so members can
// be decoded concurrently.
func openArchive(app *application, absolutePath string) (*zip.Reader, error) {
	data, readErr := afero.ReadFile(app.fileSystem, absolutePath)
	if readErr != nil {
		return nil, readErr
	}
	return zip.NewReader(bytes.NewReader(data), int64(len(data)))
}

func (app *application) newIngestor(settings renderSettings, exclusions []string) (commands.Ingestor, error) {
	loader := content.Loader{
		Logger:       app.logger,
		Concurrency:  settings.concurrency,
		MaxFileBytes: settings.maxFileBytes,
	}
	if settings.tokens {
		counter, _, counterErr := tokenizer.NewCounter(tokenizer.Config{Model: settings.model})
		if counterErr != nil {
			return commands.Ingestor{}, counterErr
		}
		loader.TokenCounter = counter
	}
	return commands.Ingestor{
		Collector: collector.Collector{Logger: app.logger},
		Loader:    loader,
		Logger:    app.logger,
		Exclude:   exclusions,
	}, nil
}

// render waits for content to settle, then prints either the tree or the
// requested file preview.
func (app *application) render(treeStore *store.Store, ingestion *commands.Ingestion, settings renderSettings) error {
	if waitErr := ingestion.Batch.Wait(); waitErr != nil {
		app.logger.Warn(warningLoadCanceledMessage, zap.Error(waitErr))
	}

	var builder strings.Builder
	if settings.show != "" {
		state, stateErr := treeStore.ContentState(settings.show)
		if stateErr != nil {
			return fmt.Errorf(errorShowFormat, settings.show, stateErr)
		}
		output.WritePreview(&builder, settings.show, state)
	} else {
		model := ""
		if settings.tokens {
			model = settings.model
		}
		node := output.BuildTree(ingestion.Snapshot, output.Options{
			IncludeContent: settings.includeContent,
			IncludeSummary: settings.summary,
			Model:          model,
		})
		rendered, renderErr := output.Render(settings.format, node, settings.summary)
		if renderErr != nil {
			return renderErr
		}
		builder.WriteString(rendered)
		if !strings.HasSuffix(rendered, "\n") {
			builder.WriteString("\n")
		}
	}

	fmt.Fprint(app.stdout, builder.String())
	if settings.copy && app.copier != nil {
		if copyErr := app.copier.Copy(builder.String()); copyErr != nil {
			return fmt.Errorf(errorCopyFormat, copyErr)
		}
	}
	return nil
}

// resolveAndValidatePaths converts input paths to absolute form and validates their existence.
func (app *application) resolveAndValidatePaths(inputs []string) ([]validatedPath, error) {
	seen := make(map[string]struct{})
	var result []validatedPath
	for _, inputPath := range inputs {
		absolutePath := inputPath
		if !filepath.IsAbs(absolutePath) {
			if app.workingDirectory == "" {
				resolved, absolutePathError := filepath.Abs(inputPath)
				if absolutePathError != nil {
					return nil, fmt.Errorf(errorAbsolutePathFormat, inputPath, absolutePathError)
				}
				absolutePath = resolved
			} else {
				absolutePath = filepath.Join(app.workingDirectory, inputPath)
			}
		}
		cleanPath := filepath.Clean(absolutePath)
		if _, ok := seen[cleanPath]; ok {
			continue
		}
		info, fileStatusError := app.fileSystem.Stat(cleanPath)
		if fileStatusError != nil {
			if errors.Is(fileStatusError, fs.ErrNotExist) {
				return nil, fmt.Errorf(errorPathMissingFormat, inputPath)
			}
			return nil, fmt.Errorf(errorStatFormat, inputPath, fileStatusError)
		}
		seen[cleanPath] = struct{}{}
		result = append(result, validatedPath{absolutePath: cleanPath, isDirectory: info.IsDir()})
	}
	if len(result) == 0 {
		return nil, errors.New(errorNoValidPaths)
	}
	return result, nil
}
