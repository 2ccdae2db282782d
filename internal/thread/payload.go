package thread

import (
	"bytes"
	"encoding/json"
	"log"
	"strings"
)

// Kinds used by the content service to tag payload nodes.
const (
	KindComment = "t1"
	KindPost    = "t3"
	KindListing = "Listing"
	KindMore    = "more"
)

// RepliesShape tags which of the three shapes a replies field arrived in.
type RepliesShape int

const (
	RepliesAbsent RepliesShape = iota
	RepliesSingle
	RepliesMany
)

// Replies holds a replies (or children) field after its shape has been
// resolved at the JSON boundary. Decoding never fails: anything that is not an
// object or an array of objects becomes RepliesAbsent.
type Replies struct {
	Shape  RepliesShape
	Single *Thing
	Many   []Thing
}

// Thing is one node of the content service payload: a comment, a post, a
// "more" stub or a Listing envelope around further things.
type Thing struct {
	Kind string    `json:"kind"`
	Data ThingData `json:"data"`
}

// ThingData carries the fields the normalizer reads. Depth sent by the
// service is deliberately not decoded.
type ThingData struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	ParentID string  `json:"parent_id"`
	LinkID   string  `json:"link_id"`
	Author   string  `json:"author"`
	Body     string  `json:"body"`
	Children Replies `json:"children"`
	Replies  Replies `json:"replies"`
}

// None returns the absent variant.
func None() Replies {
	return Replies{Shape: RepliesAbsent}
}

// One wraps a single node.
func One(t Thing) Replies {
	return Replies{Shape: RepliesSingle, Single: &t}
}

// Many wraps a list of nodes.
func Many(things ...Thing) Replies {
	return Replies{Shape: RepliesMany, Many: things}
}

// Things returns the nodes of r as a list: absent is empty, a single node is
// a one-element list.
func (r Replies) Things() []Thing {
	switch r.Shape {
	case RepliesSingle:
		if r.Single == nil {
			return nil
		}
		return []Thing{*r.Single}
	case RepliesMany:
		return r.Many
	default:
		return nil
	}
}

func (r *Replies) UnmarshalJSON(data []byte) error {
	*r = None()
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}
	switch trimmed[0] {
	case '{':
		var t Thing
		if err := json.Unmarshal(trimmed, &t); err != nil {
			return nil
		}
		*r = One(t)
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil
		}
		things := make([]Thing, 0, len(raw))
		for _, item := range raw {
			var t Thing
			if err := json.Unmarshal(item, &t); err != nil {
				continue
			}
			things = append(things, t)
		}
		*r = Many(things...)
	}
	return nil
}

// ParsePayload decodes a raw thread payload. Payloads that do not decode are
// logged and treated as carrying no comments.
func ParsePayload(data []byte) Replies {
	var r Replies
	_ = r.UnmarshalJSON(data)
	if r.Shape == RepliesAbsent && len(bytes.TrimSpace(data)) > 0 {
		log.Printf("thread: unrecognised payload shape (%d bytes), treating as empty", len(data))
	}
	return r
}

func (t Thing) isEnvelope() bool {
	return t.Kind == KindListing || (t.Kind == "" && t.Data.Children.Shape != RepliesAbsent)
}

func (t Thing) record(depth int) (Record, bool) {
	id := strings.TrimSpace(t.Data.Name)
	if id == "" && strings.TrimSpace(t.Data.ID) != "" {
		id = KindComment + "_" + strings.TrimSpace(t.Data.ID)
	}
	if id == "" {
		return Record{}, false
	}
	rec := Record{
		ID:     id,
		PostID: t.Data.LinkID,
		Author: t.Data.Author,
		Body:   t.Data.Body,
		Depth:  depth,
	}
	parent := strings.TrimSpace(t.Data.ParentID)
	if parent != "" && parent != t.Data.LinkID && !strings.HasPrefix(parent, KindPost+"_") {
		rec.ParentID = strPtr(parent)
	}
	return rec, true
}
