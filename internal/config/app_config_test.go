package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/temirov/dirtree/internal/utils"
)

type configTestCase struct {
	name              string
	globalContent     string
	localContent      string
	explicitPath      string
	expectFormat      string
	expectSummary     *bool
	expectTokens      *bool
	expectModel       string
	expectContent     *bool
	expectCopy        *bool
	expectConcurrency *int
	expectAddress     string
	expectExclude     []string
}

func boolPointer(value bool) *bool {
	pointer := value
	return &pointer
}

func intPointer(value int) *int {
	pointer := value
	return &pointer
}

func TestLoadApplicationConfigurationMergesSources(t *testing.T) {
	testCases := []configTestCase{
		{
			name:              "local_overrides_global",
			globalContent:     "tree:\n  format: raw\n  summary: false\n  content: false\n  copy: true\nserver:\n  address: 0.0.0.0:9000\n",
			localContent:      "tree:\n  format: xml\n  content: true\n  copy: false\n  tokens:\n    enabled: true\n    model: custom\nloader:\n  concurrency: 3\n",
			expectFormat:      "xml",
			expectSummary:     boolPointer(false),
			expectTokens:      boolPointer(true),
			expectModel:       "custom",
			expectContent:     boolPointer(true),
			expectCopy:        boolPointer(false),
			expectConcurrency: intPointer(3),
			expectAddress:     "0.0.0.0:9000",
		},
		{
			name:          "explicit_path_replaces_local",
			globalContent: "tree:\n  format: json\n",
			localContent:  "tree:\n  format: xml\n",
			explicitPath:  "custom.yaml",
			expectFormat:  "raw",
		},
		{
			name:          "exclusions_are_deduplicated",
			globalContent: "tree:\n  paths:\n    exclude: [\"dist/\", \"*.log\", \"dist/\"]\n",
			expectExclude: []string{"dist/", "*.log"},
		},
		{
			name: "no_files",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			homeDir := t.TempDir()
			workingDir := t.TempDir()
			configDir := filepath.Join(homeDir, utils.GlobalConfigDirectoryName)
			if err := os.MkdirAll(configDir, 0o755); err != nil {
				t.Fatalf("create config dir: %v", err)
			}
			if testCase.globalContent != "" {
				globalPath := filepath.Join(configDir, utils.ConfigFileName)
				if err := os.WriteFile(globalPath, []byte(testCase.globalContent), 0o600); err != nil {
					t.Fatalf("write global config: %v", err)
				}
			}
			if testCase.localContent != "" {
				localPath := filepath.Join(workingDir, utils.LocalConfigFileName)
				if err := os.WriteFile(localPath, []byte(testCase.localContent), 0o600); err != nil {
					t.Fatalf("write local config: %v", err)
				}
			}
			if testCase.explicitPath != "" {
				target := filepath.Join(workingDir, testCase.explicitPath)
				if err := os.WriteFile(target, []byte("tree:\n  format: raw\n"), 0o600); err != nil {
					t.Fatalf("write explicit config: %v", err)
				}
			}

			t.Setenv("HOME", homeDir)
			t.Setenv("USERPROFILE", homeDir)

			loadedConfig, err := LoadApplicationConfiguration(LoadOptions{
				WorkingDirectory: workingDir,
				ExplicitFilePath: testCase.explicitPath,
			})
			if err != nil {
				t.Fatalf("LoadApplicationConfiguration error: %v", err)
			}

			if loadedConfig.Tree.Format != testCase.expectFormat {
				t.Fatalf("expected format %q, got %q", testCase.expectFormat, loadedConfig.Tree.Format)
			}
			assertBoolPointer(t, "summary", loadedConfig.Tree.Summary, testCase.expectSummary)
			assertBoolPointer(t, "tokens", loadedConfig.Tree.Tokens.Enabled, testCase.expectTokens)
			assertBoolPointer(t, "content", loadedConfig.Tree.IncludeContent, testCase.expectContent)
			assertBoolPointer(t, "copy", loadedConfig.Tree.Copy, testCase.expectCopy)
			if loadedConfig.Tree.Tokens.Model != testCase.expectModel {
				t.Fatalf("expected model %q, got %q", testCase.expectModel, loadedConfig.Tree.Tokens.Model)
			}
			if testCase.expectConcurrency == nil {
				if loadedConfig.Loader.Concurrency != nil {
					t.Fatalf("expected no concurrency override")
				}
			} else if loadedConfig.Loader.Concurrency == nil || *loadedConfig.Loader.Concurrency != *testCase.expectConcurrency {
				t.Fatalf("unexpected concurrency value")
			}
			if loadedConfig.Server.Address != testCase.expectAddress {
				t.Fatalf("expected address %q, got %q", testCase.expectAddress, loadedConfig.Server.Address)
			}
			if len(loadedConfig.Tree.Paths.Exclude) != len(testCase.expectExclude) {
				t.Fatalf("expected exclusions %v, got %v", testCase.expectExclude, loadedConfig.Tree.Paths.Exclude)
			}
			for index, pattern := range testCase.expectExclude {
				if loadedConfig.Tree.Paths.Exclude[index] != pattern {
					t.Fatalf("expected exclusions %v, got %v", testCase.expectExclude, loadedConfig.Tree.Paths.Exclude)
				}
			}
		})
	}
}

func assertBoolPointer(t *testing.T, name string, actual *bool, expected *bool) {
	t.Helper()
	if expected == nil {
		if actual != nil {
			t.Fatalf("expected no %s override", name)
		}
		return
	}
	if actual == nil || *actual != *expected {
		t.Fatalf("unexpected %s value", name)
	}
}

func TestLoadApplicationConfigurationRejectsDirectory(t *testing.T) {
	homeDir := t.TempDir()
	workingDir := t.TempDir()
	t.Setenv("HOME", homeDir)
	t.Setenv("USERPROFILE", homeDir)
	if err := os.MkdirAll(filepath.Join(workingDir, utils.LocalConfigFileName), 0o755); err != nil {
		t.Fatalf("create directory: %v", err)
	}
	if _, err := LoadApplicationConfiguration(LoadOptions{WorkingDirectory: workingDir}); err == nil {
		t.Fatalf("expected an error when the configuration path is a directory")
	}
}

func TestMergeKeepsUnsetValues(t *testing.T) {
	t.Parallel()

	base := ApplicationConfiguration{
		Tree:   TreeConfiguration{Format: "json", Summary: boolPointer(true)},
		Server: ServerConfiguration{Address: "127.0.0.1:8080"},
	}
	merged := base.Merge(ApplicationConfiguration{Tree: TreeConfiguration{IncludeContent: boolPointer(true)}})
	if merged.Tree.Format != "json" || !BoolOrDefault(merged.Tree.Summary, false) {
		t.Fatalf("expected base values to survive, got %+v", merged.Tree)
	}
	if !BoolOrDefault(merged.Tree.IncludeContent, false) {
		t.Fatalf("expected override to apply")
	}
	if merged.Server.Address != "127.0.0.1:8080" {
		t.Fatalf("expected address to survive, got %q", merged.Server.Address)
	}
	if BoolOrDefault(nil, true) != true {
		t.Fatalf("expected fallback for nil pointer")
	}

	withOrigins := merged.Merge(ApplicationConfiguration{Server: ServerConfiguration{AllowedOrigins: []string{"http://localhost:5173"}}})
	if len(withOrigins.Server.AllowedOrigins) != 1 || withOrigins.Server.AllowedOrigins[0] != "http://localhost:5173" {
		t.Fatalf("expected allowed origins override, got %v", withOrigins.Server.AllowedOrigins)
	}
	if kept := withOrigins.Merge(ApplicationConfiguration{}); len(kept.Server.AllowedOrigins) != 1 {
		t.Fatalf("expected allowed origins to survive an empty override, got %v", kept.Server.AllowedOrigins)
	}
}
