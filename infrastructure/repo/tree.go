package repo

import (
	"fmt"
	"strings"
)

// UnlimitedDepth expands every directory.
const UnlimitedDepth = -1

// RenderTree lists dir's children. Directories are expanded while their
// level is below depth: depth 0 shows only dir's children, depth 1 also
// their children, and so on.
//
//	- [File]: path
//	v [Dir]: path:
//		- [File]: path/child
//	> [Dir]: collapsed
func (idx *Index) RenderTree(dir string, depth int) (string, error) {
	n, err := idx.Lookup(dir)
	if err != nil {
		return "", err
	}
	if !n.IsDir {
		return "", fmt.Errorf("%s: %w", dir, ErrNotDirectory)
	}
	return strings.Join(renderChildren(n.Children, 0, depth), "\n"), nil
}

func renderChildren(nodes []*Node, level, depth int) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if !n.IsDir {
			out = append(out, "- [File]: "+n.Path)
			continue
		}
		var children []string
		if len(n.Children) > 0 && (level < depth || depth == UnlimitedDepth) {
			children = renderChildren(n.Children, level+1, depth)
		}
		if len(children) == 0 {
			out = append(out, "> [Dir]: "+n.Path)
			continue
		}
		var b strings.Builder
		b.WriteString("v [Dir]: " + n.Path + ":")
		indent := strings.Repeat("\t", level+1)
		for _, c := range children {
			b.WriteString("\n" + indent + c)
		}
		out = append(out, b.String())
	}
	return out
}
