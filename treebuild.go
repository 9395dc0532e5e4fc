package gitvault

import (
	"context"
	"sort"
	"strings"

	"github.com/gitvault/gitvault/plumbing"
	"github.com/gitvault/gitvault/plumbing/format/index"
	"github.com/gitvault/gitvault/plumbing/object"
	"github.com/gitvault/gitvault/storage"
)

// treeNode is one directory inode while folding the flat index into a
// nested tree.
type treeNode struct {
	files map[string]object.TreeEntry
	dirs  map[string]*treeNode
}

func newTreeNode() *treeNode {
	return &treeNode{
		files: map[string]object.TreeEntry{},
		dirs:  map[string]*treeNode{},
	}
}

func (n *treeNode) dir(name string) *treeNode {
	d, ok := n.dirs[name]
	if !ok {
		d = newTreeNode()
		n.dirs[name] = d
	}
	return d
}

// BuildTree folds the index's stage-0 entries into tree objects and
// returns the root tree ID. With dryRun the ID is computed without
// persisting anything. An empty index yields the empty tree.
func (r *Repository) BuildTree(ctx context.Context, idx *index.Index, dryRun bool) (plumbing.ObjectID, error) {
	oid, err := buildTreeFromIndex(ctx, r.backend, idx, dryRun)
	return oid, wrapOp("build_tree", err)
}

func buildTreeFromIndex(ctx context.Context, b storage.Backend, idx *index.Index, dryRun bool) (plumbing.ObjectID, error) {
	root := newTreeNode()

	for _, e := range idx.StageEntries() {
		segments := strings.Split(e.Name, "/")
		node := root
		for _, seg := range segments[:len(segments)-1] {
			node = node.dir(seg)
		}
		leaf := segments[len(segments)-1]
		node.files[leaf] = object.TreeEntry{Name: leaf, Mode: e.Mode, Hash: e.Hash}
	}

	return writeTreeNode(ctx, b, root, dryRun)
}

// writeTreeNode computes a directory inode's object depth-first:
// children first, then the sorted entry list of this level.
func writeTreeNode(ctx context.Context, b storage.Backend, node *treeNode, dryRun bool) (plumbing.ObjectID, error) {
	tree := &object.Tree{}

	dirNames := make([]string, 0, len(node.dirs))
	for name := range node.dirs {
		dirNames = append(dirNames, name)
	}
	sort.Strings(dirNames)

	for _, name := range dirNames {
		childID, err := writeTreeNode(ctx, b, node.dirs[name], dryRun)
		if err != nil {
			return plumbing.ObjectID{}, err
		}
		tree.Entries = append(tree.Entries, object.TreeEntry{
			Name: name,
			Mode: plumbing.Dir,
			Hash: childID,
		})
	}

	for _, e := range node.files {
		tree.Entries = append(tree.Entries, e)
	}

	return writeObject(ctx, b, plumbing.TreeObject, tree.Encode(), plumbing.ContentForm, dryRun)
}
