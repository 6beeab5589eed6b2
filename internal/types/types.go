// Package types defines every cross‑package data structure used by the dirtree CLI.
package types

import (
	"encoding/xml"
	"strings"
)

const (
	NodeTypeFile      = "file"
	NodeTypeDirectory = "directory"

	CommandTree    = "tree"
	CommandArchive = "archive"
	CommandServe   = "serve"

	FormatRaw  = "raw"
	FormatJSON = "json"
	FormatXML  = "xml"

	// PathSeparator delimits segments of a relative path.
	PathSeparator = "/"
)

// ContentStatus tracks the single transition of a file's content.
type ContentStatus int

const (
	ContentNotLoaded ContentStatus = iota
	ContentLoaded
	ContentFailed
)

// String returns the wire name of the status.
func (status ContentStatus) String() string {
	switch status {
	case ContentLoaded:
		return "loaded"
	case ContentFailed:
		return "failed"
	default:
		return "pending"
	}
}

// ContentState is the decode outcome for one file path.
type ContentState struct {
	Status    ContentStatus
	Text      string
	Reason    string
	SizeBytes int64
	Tokens    int
}

// Node is a directory or file inside an ingested tree.
// Shape is fixed once the builder returns; content lives outside the node.
type Node struct {
	Name     string
	Path     string
	Kind     string
	Children []*Node
}

// IsFile reports whether the node is a file leaf.
func (node *Node) IsFile() bool {
	return node != nil && node.Kind == NodeTypeFile
}

// IsDirectory reports whether the node is a directory.
func (node *Node) IsDirectory() bool {
	return node != nil && node.Kind == NodeTypeDirectory
}

// Child returns the direct child with the given name.
func (node *Node) Child(name string) *Node {
	if node == nil {
		return nil
	}
	for _, child := range node.Children {
		if child.Name == name {
			return child
		}
	}
	return nil
}

// FindNode performs a depth-first search for the node whose path equals target.
func FindNode(root *Node, target string) *Node {
	if root == nil {
		return nil
	}
	if root.Path == target {
		return root
	}
	if root.Path != "" && !strings.HasPrefix(target, root.Path+PathSeparator) {
		return nil
	}
	for _, child := range root.Children {
		if found := FindNode(child, target); found != nil {
			return found
		}
	}
	return nil
}

// Walk visits node and its descendants in depth-first pre-order.
func Walk(node *Node, visit func(*Node)) {
	if node == nil {
		return
	}
	visit(node)
	for _, child := range node.Children {
		Walk(child, visit)
	}
}

// TreeOutputNode is the rendered form of a node returned to callers.
type TreeOutputNode struct {
	XMLName       xml.Name          `json:"-" xml:"node"`
	Path          string            `json:"path" xml:"path"`
	Name          string            `json:"name" xml:"name"`
	Type          string            `json:"type" xml:"type"`
	Size          string            `json:"size,omitempty" xml:"size,omitempty"`
	SizeBytes     int64             `json:"-" xml:"-"`
	Tokens        int               `json:"tokens,omitempty" xml:"tokens,omitempty"`
	Model         string            `json:"model,omitempty" xml:"model,omitempty"`
	ContentStatus string            `json:"contentStatus,omitempty" xml:"contentStatus,omitempty"`
	ContentError  string            `json:"contentError,omitempty" xml:"contentError,omitempty"`
	Content       string            `json:"content,omitempty" xml:"content,omitempty"`
	Children      []*TreeOutputNode `json:"children,omitempty" xml:"children>node,omitempty"`
	TotalFiles    int               `json:"totalFiles,omitempty" xml:"totalFiles,omitempty"`
	TotalSize     string            `json:"totalSize,omitempty" xml:"totalSize,omitempty"`
	TotalTokens   int               `json:"totalTokens,omitempty" xml:"totalTokens,omitempty"`
}

// OutputSummary captures aggregate information about rendered files.
type OutputSummary struct {
	TotalFiles  int    `json:"totalFiles" xml:"totalFiles"`
	TotalSize   string `json:"totalSize" xml:"totalSize"`
	TotalTokens int    `json:"totalTokens,omitempty" xml:"totalTokens,omitempty"`
	Model       string `json:"model,omitempty" xml:"model,omitempty"`
	Failed      int    `json:"failed,omitempty" xml:"failed,omitempty"`
}

// WalkOutput visits a rendered node and its descendants in depth-first pre-order.
func WalkOutput(node *TreeOutputNode, visit func(*TreeOutputNode)) {
	if node == nil {
		return
	}
	visit(node)
	for _, child := range node.Children {
		WalkOutput(child, visit)
	}
}
