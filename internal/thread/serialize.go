package thread

// Node is the caller-visible shape of a comment in a tree.
type Node struct {
	ID       string  `json:"id"`
	ParentID *string `json:"parentId"`
	Author   string  `json:"author"`
	Body     string  `json:"body"`
	Depth    int     `json:"depth"`
	Children []Node  `json:"children"`
}

// Serialize projects a tree onto its JSON shape.
func Serialize(t Tree) []Node {
	out := make([]Node, 0, len(t))
	for _, rec := range t {
		out = append(out, Node{
			ID:       rec.ID,
			ParentID: rec.ParentID,
			Author:   rec.Author,
			Body:     rec.Body,
			Depth:    rec.Depth,
			Children: Serialize(rec.Children),
		})
	}
	return out
}
