package thread

import "fmt"

// Merge folds records into existing by parent id and returns the new tree.
// Neither argument is modified.
//
// Records with a nil ParentID become top-level entries. Every other record is
// appended, in the order given, under each node whose ID equals its ParentID;
// records attached during the call also collect their own children from the
// same batch. Depths are recomputed from the attachment point.
//
// The walk visits the whole tree for every call, so the cost is tree size
// times batch size. Merging the same batch twice duplicates it.
func Merge(existing Tree, records []Record) (Tree, error) {
	if len(records) == 0 {
		return existing, nil
	}

	m := &merger{
		records:   records,
		byParent:  make(map[string][]int, len(records)),
		placed:    make([]bool, len(records)),
		ancestors: make(map[string]int),
	}
	var roots []int
	for i, rec := range records {
		if rec.IsRoot() {
			roots = append(roots, i)
			continue
		}
		if *rec.ParentID == rec.ID {
			return nil, fmt.Errorf("%w: comment %s is its own parent", ErrCycleDetected, rec.ID)
		}
		m.byParent[*rec.ParentID] = append(m.byParent[*rec.ParentID], i)
	}

	out, err := m.walk(existing, 0)
	if err != nil {
		return nil, err
	}
	for _, i := range roots {
		node, err := m.attach(i, 0)
		if err != nil {
			return nil, err
		}
		out = append(out, node)
	}

	for i, ok := range m.placed {
		if !ok {
			return nil, m.unplacedError(i)
		}
	}
	return out, nil
}

// Build assembles a tree from a complete set of flat records.
func Build(records []Record) (Tree, error) {
	return Merge(nil, records)
}

type merger struct {
	records   []Record
	byParent  map[string][]int
	placed    []bool
	ancestors map[string]int
}

func (m *merger) walk(nodes []Record, depth int) ([]Record, error) {
	if len(nodes) == 0 {
		return nil, nil
	}
	out := make([]Record, 0, len(nodes))
	for _, node := range nodes {
		node.Depth = depth
		m.ancestors[node.ID]++
		children, err := m.walk(node.Children, depth+1)
		if err != nil {
			return nil, err
		}
		for _, i := range m.byParent[node.ID] {
			child, err := m.attach(i, depth+1)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		m.release(node.ID)
		node.Children = children
		out = append(out, node)
	}
	return out, nil
}

func (m *merger) attach(i, depth int) (Record, error) {
	node := m.records[i]
	if m.ancestors[node.ID] > 0 {
		return Record{}, fmt.Errorf("%w: comment %s would be nested under itself", ErrCycleDetected, node.ID)
	}
	m.placed[i] = true
	node.Depth = depth
	node.Children = nil

	m.ancestors[node.ID]++
	defer m.release(node.ID)
	for _, j := range m.byParent[node.ID] {
		child, err := m.attach(j, depth+1)
		if err != nil {
			return Record{}, err
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}

func (m *merger) release(id string) {
	if m.ancestors[id] <= 1 {
		delete(m.ancestors, id)
		return
	}
	m.ancestors[id]--
}

// unplacedError tells a parent chain that loops back on itself apart from one
// that simply ends at a missing id.
func (m *merger) unplacedError(i int) error {
	byID := make(map[string]int, len(m.records))
	for j, rec := range m.records {
		if _, ok := byID[rec.ID]; !ok {
			byID[rec.ID] = j
		}
	}
	seen := map[int]bool{}
	for cur := i; ; {
		if seen[cur] {
			return fmt.Errorf("%w: comment %s", ErrCycleDetected, m.records[i].ID)
		}
		seen[cur] = true
		parent := m.records[cur].ParentID
		if parent == nil {
			break
		}
		next, ok := byID[*parent]
		if !ok {
			break
		}
		cur = next
	}
	return fmt.Errorf("%w: comment %s references %s", ErrOrphanRecord, m.records[i].ID, derefOr(m.records[i].ParentID, "<nil>"))
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
