// Package treebuilder turns collected path pairs into a single rooted tree.
package treebuilder

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/dirtree/internal/collector"
	"github.com/temirov/dirtree/internal/types"
)

const (
	// DefaultRootName names the synthetic root when the caller supplies none.
	DefaultRootName = "root"

	errorEmptyPathFormat     = "%w: empty relative path"
	errorSegmentFormat       = "%w: %q has an invalid segment %q"
	errorFileAsParentFormat  = "%w: %q descends from file %q"
	errorDirectoryFileFormat = "%w: %q is already a directory"

	warningRejectedMessage = "discarding entry"
)

var (
	// ErrMalformedPath marks an empty or otherwise invalid relative path.
	ErrMalformedPath = errors.New("malformed path")
	// ErrConflictingPath marks a path whose kind contradicts an existing node.
	ErrConflictingPath = errors.New("conflicting path")
)

// Binding ties a file node's path to the handle its content is decoded from.
type Binding struct {
	Path   string
	Handle collector.FileHandle
}

// Rejection records one discarded entry.
type Rejection struct {
	Path string
	Err  error
}

// Result is the outcome of one build pass.
type Result struct {
	// Root is the synthetic root; its path is empty.
	Root *types.Node
	// Exposed is the node handed to consumers, see Expose.
	Exposed    *types.Node
	Bindings   []Binding
	Rejections []Rejection
}

// FileCount returns the number of file nodes built.
func (result Result) FileCount() int {
	return len(result.Bindings)
}

// TreeBuilder builds trees using configured options.
type TreeBuilder struct {
	RootName string
	Logger   *zap.Logger
}

// Build constructs a tree from pairs using a default builder.
func Build(rootName string, pairs []collector.Pair) Result {
	return TreeBuilder{RootName: rootName}.Build(pairs)
}

// Build walks every pair from the synthetic root, finding or creating a
// directory per intermediate segment and a file at the last one. A repeated
// path reuses its node and keeps the first handle. Malformed and conflicting
// paths are rejected individually without affecting the rest of the pass.
func (builder TreeBuilder) Build(pairs []collector.Pair) Result {
	logger := builder.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rootName := builder.RootName
	if rootName == "" {
		rootName = DefaultRootName
	}

	result := Result{
		Root: &types.Node{Name: rootName, Path: "", Kind: types.NodeTypeDirectory},
	}
	bound := make(map[string]struct{}, len(pairs))
	nodeByPath := map[string]*types.Node{"": result.Root}

	for _, pair := range pairs {
		fileNode, insertErr := insert(nodeByPath, pair.RelativePath)
		if insertErr != nil {
			logger.Warn(warningRejectedMessage, zap.String("path", pair.RelativePath), zap.Error(insertErr))
			result.Rejections = append(result.Rejections, Rejection{Path: pair.RelativePath, Err: insertErr})
			continue
		}
		if _, exists := bound[fileNode.Path]; exists {
			continue
		}
		bound[fileNode.Path] = struct{}{}
		result.Bindings = append(result.Bindings, Binding{Path: fileNode.Path, Handle: pair.Handle})
	}

	result.Exposed = Expose(result.Root)
	return result
}

// Expose returns the single top-level directory when the root holds exactly
// one child and that child is a directory; otherwise it returns root itself.
func Expose(root *types.Node) *types.Node {
	if root == nil {
		return nil
	}
	if len(root.Children) == 1 && root.Children[0].IsDirectory() {
		return root.Children[0]
	}
	return root
}

// SplitRelativePath splits a slash-delimited path and validates every segment.
func SplitRelativePath(relativePath string) ([]string, error) {
	if relativePath == "" {
		return nil, fmt.Errorf(errorEmptyPathFormat, ErrMalformedPath)
	}
	segments := strings.Split(relativePath, types.PathSeparator)
	for _, segment := range segments {
		if segment == "" || segment == "." || segment == ".." {
			return nil, fmt.Errorf(errorSegmentFormat, ErrMalformedPath, relativePath, segment)
		}
	}
	return segments, nil
}

// insert places relativePath under the root indexed at "" and returns its
// file node. Conflicts can only be found on nodes that already existed, and
// once a segment is created every later segment is new, so a rejected path
// never leaves partially created directories behind.
func insert(nodeByPath map[string]*types.Node, relativePath string) (*types.Node, error) {
	segments, splitErr := SplitRelativePath(relativePath)
	if splitErr != nil {
		return nil, splitErr
	}

	current := nodeByPath[""]
	for index, segment := range segments {
		isLast := index == len(segments)-1
		childPath := strings.Join(segments[:index+1], types.PathSeparator)
		child := nodeByPath[childPath]
		if child == nil {
			child = &types.Node{
				Name: segment,
				Path: childPath,
				Kind: types.NodeTypeDirectory,
			}
			if isLast {
				child.Kind = types.NodeTypeFile
			}
			current.Children = append(current.Children, child)
			nodeByPath[childPath] = child
		} else if isLast && child.IsDirectory() {
			return nil, fmt.Errorf(errorDirectoryFileFormat, ErrConflictingPath, relativePath)
		} else if !isLast && child.IsFile() {
			return nil, fmt.Errorf(errorFileAsParentFormat, ErrConflictingPath, relativePath, child.Path)
		}
		current = child
	}
	return current, nil
}
