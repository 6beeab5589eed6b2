// Package config loads application configuration and ignore files.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/temirov/dirtree/internal/utils"
)

const (
	// gitDirectoryPattern represents the pattern that matches the Git directory.
	gitDirectoryPattern = utils.GitDirectoryName + "/"
	// binarySectionHeader opens a section whose patterns are not exclusions.
	binarySectionHeader = "[binary]"
	// ignoreSectionHeader identifies the section listing ignore patterns.
	ignoreSectionHeader = "[ignore]"

	errorLoadIgnoreFormat = "loading %s from %s: %w"
)

// LoadIgnoreFilePatterns reads an ignore file and returns its exclusion
// patterns. A missing file yields no patterns. Lines in a [binary] section are
// skipped because binary content is never loaded.
func LoadIgnoreFilePatterns(fileSystem afero.Fs, ignoreFilePath string) ([]string, error) {
	fileHandle, openFileError := fileSystem.Open(ignoreFilePath)
	if openFileError != nil {
		if os.IsNotExist(openFileError) {
			return nil, nil
		}
		return nil, openFileError
	}
	defer fileHandle.Close()

	var ignorePatterns []string
	currentSectionHeader := ignoreSectionHeader
	scanner := bufio.NewScanner(fileHandle)
	for scanner.Scan() {
		trimmedLine := strings.TrimSpace(scanner.Text())
		if trimmedLine == "" || strings.HasPrefix(trimmedLine, "#") {
			continue
		}
		if strings.EqualFold(trimmedLine, binarySectionHeader) {
			currentSectionHeader = binarySectionHeader
			continue
		}
		if strings.EqualFold(trimmedLine, ignoreSectionHeader) {
			currentSectionHeader = ignoreSectionHeader
			continue
		}
		if currentSectionHeader == binarySectionHeader {
			continue
		}
		ignorePatterns = append(ignorePatterns, trimmedLine)
	}
	if scanError := scanner.Err(); scanError != nil {
		return nil, scanError
	}
	return ignorePatterns, nil
}

// IgnoreOptions selects which ignore sources apply to a dropped folder.
type IgnoreOptions struct {
	Exclude       []string
	UseGitignore  bool
	UseIgnoreFile bool
	IncludeGit    bool
}

// LoadRecursiveIgnorePatterns walks rootDirectoryPath and aggregates patterns
// from the ignore files of every nested directory. Patterns found below the
// root are prefixed with their directory's path relative to the root. The
// .git directory is excluded unless IncludeGit is set, and the explicit
// exclusions are appended last.
func LoadRecursiveIgnorePatterns(fileSystem afero.Fs, rootDirectoryPath string, options IgnoreOptions) ([]string, error) {
	var aggregatedPatterns []string

	ignoreFileNames := make([]string, 0, 2)
	if options.UseIgnoreFile {
		ignoreFileNames = append(ignoreFileNames, utils.IgnoreFileName)
	}
	if options.UseGitignore {
		ignoreFileNames = append(ignoreFileNames, utils.GitIgnoreFileName)
	}

	walkFunction := func(currentDirectoryPath string, info os.FileInfo, walkError error) error {
		if walkError != nil {
			return walkError
		}
		if !info.IsDir() {
			return nil
		}
		if !options.IncludeGit && info.Name() == utils.GitDirectoryName {
			return filepath.SkipDir
		}

		prefix := ""
		if relativeDirectory, relErr := filepath.Rel(rootDirectoryPath, currentDirectoryPath); relErr == nil && relativeDirectory != "." {
			prefix = filepath.ToSlash(relativeDirectory) + "/"
		}

		for _, ignoreFileName := range ignoreFileNames {
			patterns, loadError := LoadIgnoreFilePatterns(fileSystem, filepath.Join(currentDirectoryPath, ignoreFileName))
			if loadError != nil {
				return fmt.Errorf(errorLoadIgnoreFormat, ignoreFileName, currentDirectoryPath, loadError)
			}
			for _, pattern := range patterns {
				aggregatedPatterns = append(aggregatedPatterns, prefix+pattern)
			}
		}
		return nil
	}

	if len(ignoreFileNames) > 0 {
		if walkError := afero.Walk(fileSystem, rootDirectoryPath, walkFunction); walkError != nil {
			return nil, walkError
		}
	}

	if !options.IncludeGit {
		aggregatedPatterns = append(aggregatedPatterns, gitDirectoryPattern)
	}

	deduplicatedPatterns := utils.DeduplicatePatterns(aggregatedPatterns)
	for _, pattern := range options.Exclude {
		trimmedPattern := strings.TrimSpace(pattern)
		if trimmedPattern == "" {
			continue
		}
		if !utils.ContainsString(deduplicatedPatterns, trimmedPattern) {
			deduplicatedPatterns = append(deduplicatedPatterns, trimmedPattern)
		}
	}

	return deduplicatedPatterns, nil
}
