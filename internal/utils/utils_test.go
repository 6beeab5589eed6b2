package utils_test

import (
	"testing"

	"github.com/temirov/dirtree/internal/utils"
)

// directoryName defines the directory used for ignore tests.
const directoryName = "dir"

// nestedDirectoryName defines the directory used for nested path tests.
const nestedDirectoryName = "subdir"

// nodeModulesDirectoryPattern defines the ignore pattern for the node_modules directory inside nestedDirectoryName.
const nodeModulesDirectoryPattern = nestedDirectoryName + "/node_modules/"

// backslashNodeModulesDirectoryPattern defines the same pattern with backslashes to verify normalization.
const backslashNodeModulesDirectoryPattern = nestedDirectoryName + `\node_modules\`

// nodeModulesDirectoryPath defines the path to the node_modules directory.
const nodeModulesDirectoryPath = nestedDirectoryName + "/node_modules"

// nodeModulesFilePath defines a file inside the node_modules directory.
const nodeModulesFilePath = nestedDirectoryName + "/node_modules/index.js"

// claspFilePattern defines the ignore pattern for a clasp configuration file inside nestedDirectoryName.
const claspFilePattern = nestedDirectoryName + "/.clasp.json"

// nestedFilePath defines the path to the clasp configuration file inside nestedDirectoryName.
const nestedFilePath = nestedDirectoryName + "/.clasp.json"

// unrelatedNodeModulesFilePath defines a node_modules path in an unrelated directory.
const unrelatedNodeModulesFilePath = "other/" + nodeModulesFilePath

// unrelatedNestedFilePath defines the clasp configuration file path in an unrelated directory.
const unrelatedNestedFilePath = "other/" + nestedFilePath

// TestDeduplicatePatterns verifies that DeduplicatePatterns removes duplicate patterns.
func TestDeduplicatePatterns(testingInstance *testing.T) {
	testCases := []struct {
		testName string
		patterns []string
		expected []string
	}{
		{
			testName: "removes duplicates",
			patterns: []string{"a", "b", "a"},
			expected: []string{"a", "b"},
		},
		{
			testName: "keeps unique",
			patterns: []string{"a", "b"},
			expected: []string{"a", "b"},
		},
	}
	for index, testCase := range testCases {
		actual := utils.DeduplicatePatterns(testCase.patterns)
		if len(actual) != len(testCase.expected) {
			testingInstance.Errorf("case %d (%s): expected length %d, got %d", index, testCase.testName, len(testCase.expected), len(actual))
			continue
		}
		for position, value := range actual {
			if value != testCase.expected[position] {
				testingInstance.Errorf("case %d (%s): expected %s at position %d, got %s", index, testCase.testName, testCase.expected[position], position, value)
			}
		}
	}
}

// TestContainsString verifies that ContainsString locates strings in a slice.
func TestContainsString(testingInstance *testing.T) {
	testCases := []struct {
		testName string
		slice    []string
		target   string
		expected bool
	}{
		{
			testName: "contains target",
			slice:    []string{"alpha", "beta"},
			target:   "beta",
			expected: true,
		},
		{
			testName: "missing target",
			slice:    []string{"alpha", "beta"},
			target:   "gamma",
			expected: false,
		},
	}
	for index, testCase := range testCases {
		actual := utils.ContainsString(testCase.slice, testCase.target)
		if actual != testCase.expected {
			testingInstance.Errorf("case %d (%s): expected %t, got %t", index, testCase.testName, testCase.expected, actual)
		}
	}
}

// TestShouldIgnoreByPath verifies path ignoring logic.
func TestShouldIgnoreByPath(testingInstance *testing.T) {
	testCases := []struct {
		testName       string
		relativePath   string
		patterns       []string
		expectedIgnore bool
	}{
		{
			testName:       "service files are not special",
			relativePath:   ".gitignore",
			patterns:       nil,
			expectedIgnore: false,
		},
		{
			testName:       "single segment directory pattern matches at depth",
			relativePath:   "src/node_modules/index.js",
			patterns:       []string{"node_modules/"},
			expectedIgnore: true,
		},
		{
			testName:       "single segment directory pattern ignores file name",
			relativePath:   "src/node_modules",
			patterns:       []string{"node_modules/"},
			expectedIgnore: false,
		},
		{
			testName:       "exclude pattern",
			relativePath:   "dir/file.txt",
			patterns:       []string{"EXCL:dir"},
			expectedIgnore: true,
		},
		{
			testName:       "directory pattern for directory",
			relativePath:   "dir",
			patterns:       []string{"dir/"},
			expectedIgnore: true,
		},
		{
			testName:       "nested directory pattern",
			relativePath:   "dir/file.txt",
			patterns:       []string{"dir/*"},
			expectedIgnore: true,
		},
		{
			testName:       "wildcard file pattern",
			relativePath:   "dir/file.txt",
			patterns:       []string{"*.txt"},
			expectedIgnore: true,
		},
		{
			testName:       "path pattern",
			relativePath:   "dir/file.txt",
			patterns:       []string{"dir/*.txt"},
			expectedIgnore: true,
		},
		{
			testName:       "not ignored",
			relativePath:   "dir/file.txt",
			patterns:       []string{"*.md"},
			expectedIgnore: false,
		},
		{
			testName:       "nested directory with slash",
			relativePath:   nodeModulesFilePath,
			patterns:       []string{nodeModulesDirectoryPattern},
			expectedIgnore: true,
		},
		{
			testName:       "nested directory with backslashes",
			relativePath:   nodeModulesFilePath,
			patterns:       []string{backslashNodeModulesDirectoryPattern},
			expectedIgnore: true,
		},
		{
			testName:       "directory match short circuits",
			relativePath:   nodeModulesDirectoryPath,
			patterns:       []string{nodeModulesDirectoryPattern},
			expectedIgnore: true,
		},
		{
			testName:       "nested file pattern",
			relativePath:   nestedFilePath,
			patterns:       []string{claspFilePattern},
			expectedIgnore: true,
		},
		{
			testName:       "nested file pattern no match",
			relativePath:   unrelatedNestedFilePath,
			patterns:       []string{claspFilePattern},
			expectedIgnore: false,
		},
		{
			testName:       "nested directory pattern no match",
			relativePath:   unrelatedNodeModulesFilePath,
			patterns:       []string{nodeModulesDirectoryPattern},
			expectedIgnore: false,
		},
	}
	for index, testCase := range testCases {
		actual := utils.ShouldIgnoreByPath(testCase.relativePath, testCase.patterns)
		if actual != testCase.expectedIgnore {
			testingInstance.Errorf("case %d (%s): expected %t, got %t", index, testCase.testName, testCase.expectedIgnore, actual)
		}
	}
}

// TestIsBinary verifies detection of binary data in byte slices.
func TestIsBinary(testingInstance *testing.T) {
	testCases := []struct {
		testName string
		data     []byte
		expected bool
	}{
		{
			testName: "utf8 text",
			data:     []byte("hello"),
			expected: false,
		},
		{
			testName: "null byte",
			data:     []byte{0x00, 0x01},
			expected: true,
		},
		{
			testName: "invalid utf8",
			data:     []byte{0xff},
			expected: true,
		},
		{
			testName: "empty slice",
			data:     []byte{},
			expected: false,
		},
	}
	for index, testCase := range testCases {
		actual := utils.IsBinary(testCase.data)
		if actual != testCase.expected {
			testingInstance.Errorf("case %d (%s): expected %t, got %t", index, testCase.testName, testCase.expected, actual)
		}
	}
}

// TestJoinRelativePath verifies slash-delimited path joining.
func TestJoinRelativePath(testingInstance *testing.T) {
	testCases := []struct {
		testName string
		prefix   string
		name     string
		expected string
	}{
		{testName: "empty prefix", prefix: "", name: "proj", expected: "proj"},
		{testName: "nested prefix", prefix: "proj/sub", name: "b.txt", expected: "proj/sub/b.txt"},
	}
	for index, testCase := range testCases {
		actual := utils.JoinRelativePath(testCase.prefix, testCase.name)
		if actual != testCase.expected {
			testingInstance.Errorf("case %d (%s): expected %s, got %s", index, testCase.testName, testCase.expected, actual)
		}
	}
}
