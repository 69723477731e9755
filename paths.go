package store

import (
	"sort"
	"strings"
)

// tree owns the nested state mapping. All access goes through dot-delimited
// paths; callers only ever see clones, never live subtrees.
type tree struct {
	root map[string]any
}

func newTree(initial map[string]any) *tree {
	root := cloneTree(initial)
	if root == nil {
		root = map[string]any{}
	}
	return &tree{root: root}
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// get resolves path and returns a clone of the value. A missing segment
// yields (nil, false); absence is not an error.
func (t *tree) get(path string) (any, bool) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return nil, false
	}
	current := any(t.root)
	for _, segment := range segments {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}
	return cloneValue(current), true
}

// set commits a clone of value at path, creating intermediate mappings as
// needed. When the existing value is deep-equal to value the tree is left
// untouched and changed is false. The returned old value is a clone.
func (t *tree) set(path string, value any) (old any, changed bool) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return nil, false
	}
	node := t.root
	for _, segment := range segments[:len(segments)-1] {
		next, ok := node[segment].(map[string]any)
		if !ok {
			next = map[string]any{}
			node[segment] = next
		}
		node = next
	}
	leaf := segments[len(segments)-1]
	existing, exists := node[leaf]
	if exists && valueEqual(existing, value) {
		return nil, false
	}
	if exists {
		old = cloneValue(existing)
	}
	node[leaf] = cloneValue(value)
	return old, true
}

// snapshot returns a full clone of the tree.
func (t *tree) snapshot() map[string]any {
	return cloneTree(t.root)
}

// restore replaces the tree contents in place, keeping the same root
// identity.
func (t *tree) restore(state map[string]any) {
	for key := range t.root {
		delete(t.root, key)
	}
	for key, value := range state {
		t.root[key] = cloneValue(value)
	}
}

// setSection replaces one top-level section with a clone of value.
func (t *tree) setSection(name string, value any) {
	t.root[name] = cloneValue(value)
}

// merge layers overlay onto the current contents, map-wise.
func (t *tree) merge(overlay map[string]any) {
	t.root = mergeTrees(t.root, overlay)
}

// diffTrees walks two snapshots and reports one Change per leaf whose value
// differs, addressed by full dot path. Used to notify after undo/redo, load
// and reset, where the tree moves wholesale rather than one path at a time.
func diffTrees(prefix string, before, after map[string]any) []Change {
	var changes []Change
	keys := make(map[string]struct{}, len(before)+len(after))
	for key := range before {
		keys[key] = struct{}{}
	}
	for key := range after {
		keys[key] = struct{}{}
	}
	ordered := make([]string, 0, len(keys))
	for key := range keys {
		ordered = append(ordered, key)
	}
	sort.Strings(ordered)

	for _, key := range ordered {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		oldValue, hadOld := before[key]
		newValue, hasNew := after[key]

		oldMap, oldIsMap := oldValue.(map[string]any)
		newMap, newIsMap := newValue.(map[string]any)
		if oldIsMap && newIsMap {
			changes = append(changes, diffTrees(path, oldMap, newMap)...)
			continue
		}
		if hadOld && hasNew && valueEqual(oldValue, newValue) {
			continue
		}
		changes = append(changes, Change{
			Path:     path,
			Value:    cloneValue(newValue),
			OldValue: cloneValue(oldValue),
		})
	}
	return changes
}
