// Package output renders ingested trees and file previews.
package output

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"github.com/temirov/dirtree/internal/content"
	"github.com/temirov/dirtree/internal/store"
	"github.com/temirov/dirtree/internal/types"
	"github.com/temirov/dirtree/internal/utils"
)

const (
	indentPrefix = ""
	indentSpacer = "  "

	separatorLine = "----------------------------------------"
	xmlHeader     = xml.Header

	loadingPlaceholder           = "(loading)"
	unavailablePlaceholderFormat = "(content unavailable: %s)"

	treeBranchConnector = "├── "
	treeLastConnector   = "└── "
	treeBranchPadding   = "│   "
	treeLastPadding     = "    "

	errorUnsupportedFormat = "unsupported format %q"
)

// ErrNoTree is returned when there is nothing to render.
var ErrNoTree = errors.New("no tree to render")

// Options controls how a snapshot becomes a TreeOutputNode.
type Options struct {
	IncludeContent bool
	IncludeSummary bool
	Model          string
}

// BuildTree converts a snapshot into its rendered form, attaching each file's
// current content state.
func BuildTree(snapshot store.Snapshot, options Options) *types.TreeOutputNode {
	if snapshot.Root == nil {
		return nil
	}
	return buildNode(snapshot.Root, snapshot.Contents, options)
}

func buildNode(node *types.Node, contents *content.Table, options Options) *types.TreeOutputNode {
	rendered := &types.TreeOutputNode{
		Path: node.Path,
		Name: node.Name,
		Type: node.Kind,
	}
	if node.IsFile() {
		state, _ := contents.Lookup(node.Path)
		rendered.ContentStatus = state.Status.String()
		rendered.ContentError = state.Reason
		if state.Status == types.ContentLoaded {
			rendered.SizeBytes = state.SizeBytes
			rendered.Size = utils.FormatFileSize(state.SizeBytes)
			rendered.Tokens = state.Tokens
			if state.Tokens > 0 {
				rendered.Model = options.Model
			}
			if options.IncludeContent {
				rendered.Content = state.Text
			}
		}
		return rendered
	}

	for _, child := range node.Children {
		rendered.Children = append(rendered.Children, buildNode(child, contents, options))
	}
	if options.IncludeSummary {
		files, sizeBytes, tokens := summarizeTree(rendered)
		rendered.TotalFiles = files
		rendered.TotalSize = utils.FormatFileSize(sizeBytes)
		rendered.TotalTokens = tokens
	}
	return rendered
}

// Render formats node as raw text, JSON or XML.
func Render(format string, node *types.TreeOutputNode, includeSummary bool) (string, error) {
	if node == nil {
		return "", ErrNoTree
	}
	switch format {
	case types.FormatJSON:
		return RenderJSON(node)
	case types.FormatXML:
		return RenderXML(node)
	case types.FormatRaw, "":
		var buffer bytes.Buffer
		if includeSummary {
			fmt.Fprintln(&buffer, FormatSummaryLine(ComputeSummary(node)))
			fmt.Fprintln(&buffer)
		}
		WriteTreeRaw(&buffer, node, includeSummary)
		return buffer.String(), nil
	default:
		return "", fmt.Errorf(errorUnsupportedFormat, format)
	}
}

// RenderJSON marshals a tree as indented JSON.
func RenderJSON(node *types.TreeOutputNode) (string, error) {
	encoded, jsonEncodeError := json.MarshalIndent(node, indentPrefix, indentSpacer)
	return string(encoded), jsonEncodeError
}

// RenderXML marshals a tree as an XML document.
func RenderXML(node *types.TreeOutputNode) (string, error) {
	encoded, xmlMarshalError := xml.MarshalIndent(node, indentPrefix, indentSpacer)
	if xmlMarshalError != nil {
		return "", xmlMarshalError
	}
	return xmlHeader + string(encoded), nil
}

// ComputeSummary aggregates file counts, sizes and tokens below node.
func ComputeSummary(node *types.TreeOutputNode) *types.OutputSummary {
	files, sizeBytes, tokens := summarizeTree(node)
	summary := &types.OutputSummary{
		TotalFiles:  files,
		TotalSize:   utils.FormatFileSize(sizeBytes),
		TotalTokens: tokens,
		Failed:      countFailed(node),
	}
	types.WalkOutput(node, func(visited *types.TreeOutputNode) {
		if summary.Model == "" && visited.Model != "" {
			summary.Model = visited.Model
		}
	})
	return summary
}

// summarizeTree returns the file count, total size, and tokens for a tree node.
func summarizeTree(node *types.TreeOutputNode) (int, int64, int) {
	if node == nil {
		return 0, 0, 0
	}
	if node.Type == types.NodeTypeFile {
		return 1, node.SizeBytes, node.Tokens
	}
	var totalFiles int
	var totalBytes int64
	var totalTokens int
	for _, child := range node.Children {
		childFiles, childBytes, childTokens := summarizeTree(child)
		totalFiles += childFiles
		totalBytes += childBytes
		totalTokens += childTokens
	}
	return totalFiles, totalBytes, totalTokens
}

func countFailed(node *types.TreeOutputNode) int {
	failed := 0
	types.WalkOutput(node, func(visited *types.TreeOutputNode) {
		if visited.ContentStatus == types.ContentFailed.String() {
			failed++
		}
	})
	return failed
}

// FormatSummaryLine formats an OutputSummary into the raw summary line.
func FormatSummaryLine(summary *types.OutputSummary) string {
	if summary == nil {
		summary = &types.OutputSummary{}
	}
	label := "files"
	if summary.TotalFiles == 1 {
		label = "file"
	}
	extra := ""
	if summary.TotalTokens > 0 {
		extra = fmt.Sprintf(", %d tokens", summary.TotalTokens)
	}
	if summary.Failed > 0 {
		extra += fmt.Sprintf(", %d unavailable", summary.Failed)
	}
	modelSuffix := ""
	if summary.Model != "" {
		modelSuffix = fmt.Sprintf(" (model: %s)", summary.Model)
	}
	return fmt.Sprintf("Summary: %d %s, %s%s%s", summary.TotalFiles, label, summary.TotalSize, extra, modelSuffix)
}

func directorySummaryLine(node *types.TreeOutputNode, includeSummary bool) string {
	if !includeSummary || node == nil || node.Type != types.NodeTypeDirectory {
		return ""
	}
	count, sizeBytes, tokens := summarizeTree(node)
	label := "files"
	if count == 1 {
		label = "file"
	}
	tokenSuffix := ""
	if tokens > 0 {
		tokenSuffix = fmt.Sprintf(", %d tokens", tokens)
	}
	return fmt.Sprintf("Summary: %d %s, %s%s", count, label, utils.FormatFileSize(sizeBytes), tokenSuffix)
}

func treeNodeLinePrefix(prefix string, isRoot bool, isLast bool) (string, string) {
	if isRoot {
		return "", ""
	}
	connector := treeBranchConnector
	childPrefix := prefix + treeBranchPadding
	if isLast {
		connector = treeLastConnector
		childPrefix = prefix + treeLastPadding
	}
	return prefix + connector, childPrefix
}

// fileStatusSuffix annotates a file line with tokens or its content state.
func fileStatusSuffix(node *types.TreeOutputNode) string {
	switch node.ContentStatus {
	case types.ContentFailed.String():
		return fmt.Sprintf(" "+unavailablePlaceholderFormat, node.ContentError)
	case types.ContentNotLoaded.String():
		return " " + loadingPlaceholder
	}
	if node.Tokens > 0 {
		return fmt.Sprintf(" (%d tokens)", node.Tokens)
	}
	return ""
}

func renderTreeNode(writer io.Writer, node *types.TreeOutputNode, prefix string, includeSummary bool, isRoot bool, isLast bool) {
	if node == nil {
		return
	}
	linePrefix, childPrefix := treeNodeLinePrefix(prefix, isRoot, isLast)
	if node.Type == types.NodeTypeFile {
		fmt.Fprintf(writer, "%s[File] %s%s\n", linePrefix, node.Name, fileStatusSuffix(node))
		return
	}
	fmt.Fprintf(writer, "%s%s\n", linePrefix, node.Name)
	summaryLine := directorySummaryLine(node, includeSummary)
	if summaryLine != "" {
		if isRoot {
			fmt.Fprintf(writer, "%s\n", summaryLine)
		} else {
			fmt.Fprintf(writer, "%s%s\n", childPrefix, summaryLine)
		}
	}
	for index, child := range node.Children {
		renderTreeNode(writer, child, childPrefix, includeSummary, false, index == len(node.Children)-1)
	}
}

// WriteTreeRaw renders a directory tree to the provided writer.
func WriteTreeRaw(writer io.Writer, node *types.TreeOutputNode, includeSummary bool) {
	if node == nil {
		return
	}
	renderTreeNode(writer, node, "", includeSummary, true, true)
}

// PreviewText returns what a preview pane shows for a content state.
func PreviewText(state types.ContentState) string {
	switch state.Status {
	case types.ContentLoaded:
		return state.Text
	case types.ContentFailed:
		return fmt.Sprintf(unavailablePlaceholderFormat, state.Reason)
	default:
		return loadingPlaceholder
	}
}

// WritePreview renders one file's preview to the provided writer.
func WritePreview(writer io.Writer, path string, state types.ContentState) {
	fmt.Fprintf(writer, "File: %s\n", path)
	fmt.Fprintln(writer, PreviewText(state))
	fmt.Fprintf(writer, "End of file: %s\n", path)
	fmt.Fprintln(writer, separatorLine)
}
