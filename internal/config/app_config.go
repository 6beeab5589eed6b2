package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/temirov/dirtree/internal/utils"
)

const (
	errorWorkingDirectoryFormat = "determine working directory: %w"
	errorResolveConfigFormat    = "resolve configuration path %s: %w"
	errorStatConfigFormat       = "stat configuration %s: %w"
	errorConfigIsDirFormat      = "configuration path %s is a directory"
	errorReadConfigFormat       = "read configuration from %s: %w"
	errorDecodeConfigFormat     = "decode configuration from %s: %w"
)

// LoadOptions controls how application configuration is discovered.
type LoadOptions struct {
	WorkingDirectory string
	ExplicitFilePath string
}

// ApplicationConfiguration holds defaults read from configuration files.
// Unset values stay nil or empty so command-line flags and built-in defaults
// can tell them apart from explicit settings.
type ApplicationConfiguration struct {
	Tree   TreeConfiguration   `mapstructure:"tree"`
	Loader LoaderConfiguration `mapstructure:"loader"`
	Server ServerConfiguration `mapstructure:"server"`
}

// TreeConfiguration defines rendering and filtering defaults for the tree and
// archive commands.
type TreeConfiguration struct {
	Format         string             `mapstructure:"format"`
	Summary        *bool              `mapstructure:"summary"`
	IncludeContent *bool              `mapstructure:"content"`
	Copy           *bool              `mapstructure:"copy"`
	Tokens         TokenConfiguration `mapstructure:"tokens"`
	Paths          PathConfiguration  `mapstructure:"paths"`
}

// TokenConfiguration controls token counting defaults.
type TokenConfiguration struct {
	Enabled *bool  `mapstructure:"enabled"`
	Model   string `mapstructure:"model"`
}

// PathConfiguration configures exclusion rules applied to ingested paths.
type PathConfiguration struct {
	Exclude       []string `mapstructure:"exclude"`
	UseGitignore  *bool    `mapstructure:"use_gitignore"`
	UseIgnoreFile *bool    `mapstructure:"use_ignore"`
	IncludeGit    *bool    `mapstructure:"include_git"`
}

// LoaderConfiguration bounds content decoding.
type LoaderConfiguration struct {
	Concurrency  *int   `mapstructure:"concurrency"`
	MaxFileBytes *int64 `mapstructure:"max_file_bytes"`
}

// ServerConfiguration configures the HTTP service.
type ServerConfiguration struct {
	Address        string   `mapstructure:"address"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoadApplicationConfiguration loads configuration from the global file and
// then the local or explicit file, later files overriding earlier ones.
func LoadApplicationConfiguration(options LoadOptions) (ApplicationConfiguration, error) {
	workingDirectory := options.WorkingDirectory
	if workingDirectory == "" {
		currentDirectory, err := os.Getwd()
		if err != nil {
			return ApplicationConfiguration{}, fmt.Errorf(errorWorkingDirectoryFormat, err)
		}
		workingDirectory = currentDirectory
	}

	var merged ApplicationConfiguration

	if homeDirectory, err := os.UserHomeDir(); err == nil && homeDirectory != "" {
		globalPath := filepath.Join(homeDirectory, utils.GlobalConfigDirectoryName, utils.ConfigFileName)
		globalConfig, loadErr := loadConfigurationFromPath(globalPath)
		if loadErr != nil {
			return ApplicationConfiguration{}, loadErr
		}
		merged = merged.Merge(globalConfig)
	}

	localPath, resolveErr := resolveLocalConfigPath(workingDirectory, options.ExplicitFilePath)
	if resolveErr != nil {
		return ApplicationConfiguration{}, resolveErr
	}
	if localPath != "" {
		localConfig, loadErr := loadConfigurationFromPath(localPath)
		if loadErr != nil {
			return ApplicationConfiguration{}, loadErr
		}
		merged = merged.Merge(localConfig)
	}

	merged.Tree.Paths.Exclude = utils.DeduplicatePatterns(merged.Tree.Paths.Exclude)

	return merged, nil
}

func resolveLocalConfigPath(workingDirectory, explicitPath string) (string, error) {
	if explicitPath != "" {
		if filepath.IsAbs(explicitPath) {
			return explicitPath, nil
		}
		if workingDirectory == "" {
			absolute, err := filepath.Abs(explicitPath)
			if err != nil {
				return "", fmt.Errorf(errorResolveConfigFormat, explicitPath, err)
			}
			return absolute, nil
		}
		return filepath.Join(workingDirectory, explicitPath), nil
	}
	if workingDirectory == "" {
		return "", nil
	}
	return filepath.Join(workingDirectory, utils.LocalConfigFileName), nil
}

func loadConfigurationFromPath(path string) (ApplicationConfiguration, error) {
	if path == "" {
		return ApplicationConfiguration{}, nil
	}
	info, statErr := os.Stat(path)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return ApplicationConfiguration{}, nil
		}
		return ApplicationConfiguration{}, fmt.Errorf(errorStatConfigFormat, path, statErr)
	}
	if info.IsDir() {
		return ApplicationConfiguration{}, fmt.Errorf(errorConfigIsDirFormat, path)
	}

	reader := viper.New()
	reader.SetConfigFile(path)
	reader.SetConfigType("yaml")
	if readErr := reader.ReadInConfig(); readErr != nil {
		return ApplicationConfiguration{}, fmt.Errorf(errorReadConfigFormat, path, readErr)
	}
	var config ApplicationConfiguration
	if decodeErr := reader.Unmarshal(&config); decodeErr != nil {
		return ApplicationConfiguration{}, fmt.Errorf(errorDecodeConfigFormat, path, decodeErr)
	}
	return config, nil
}

// Merge overlays override onto the receiver returning the combined configuration.
func (config ApplicationConfiguration) Merge(override ApplicationConfiguration) ApplicationConfiguration {
	result := config
	result.Tree = result.Tree.merge(override.Tree)
	result.Loader = result.Loader.merge(override.Loader)
	if override.Server.Address != "" {
		result.Server.Address = override.Server.Address
	}
	if len(override.Server.AllowedOrigins) > 0 {
		result.Server.AllowedOrigins = append([]string{}, override.Server.AllowedOrigins...)
	}
	return result
}

func (config TreeConfiguration) merge(override TreeConfiguration) TreeConfiguration {
	result := config
	if override.Format != "" {
		result.Format = override.Format
	}
	if override.Summary != nil {
		result.Summary = clonePointer(override.Summary)
	}
	if override.IncludeContent != nil {
		result.IncludeContent = clonePointer(override.IncludeContent)
	}
	if override.Copy != nil {
		result.Copy = clonePointer(override.Copy)
	}
	result.Tokens = result.Tokens.merge(override.Tokens)
	result.Paths = result.Paths.merge(override.Paths)
	return result
}

func (config TokenConfiguration) merge(override TokenConfiguration) TokenConfiguration {
	result := config
	if override.Enabled != nil {
		result.Enabled = clonePointer(override.Enabled)
	}
	if override.Model != "" {
		result.Model = override.Model
	}
	return result
}

func (config PathConfiguration) merge(override PathConfiguration) PathConfiguration {
	result := config
	if len(override.Exclude) > 0 {
		result.Exclude = append([]string{}, utils.DeduplicatePatterns(override.Exclude)...)
	}
	if override.UseGitignore != nil {
		result.UseGitignore = clonePointer(override.UseGitignore)
	}
	if override.UseIgnoreFile != nil {
		result.UseIgnoreFile = clonePointer(override.UseIgnoreFile)
	}
	if override.IncludeGit != nil {
		result.IncludeGit = clonePointer(override.IncludeGit)
	}
	return result
}

func (config LoaderConfiguration) merge(override LoaderConfiguration) LoaderConfiguration {
	result := config
	if override.Concurrency != nil {
		result.Concurrency = clonePointer(override.Concurrency)
	}
	if override.MaxFileBytes != nil {
		result.MaxFileBytes = clonePointer(override.MaxFileBytes)
	}
	return result
}

func clonePointer[T any](value *T) *T {
	if value == nil {
		return nil
	}
	cloned := *value
	return &cloned
}

// BoolOrDefault dereferences value, falling back when it is unset.
func BoolOrDefault(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}
