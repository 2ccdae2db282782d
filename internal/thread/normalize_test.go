package thread

import (
	"encoding/json"
	"testing"
)

func comment(name, parent, link string, replies Replies) Thing {
	return Thing{Kind: KindComment, Data: ThingData{
		Name:     name,
		ParentID: parent,
		LinkID:   link,
		Author:   "author_" + name,
		Body:     "body of " + name,
		Replies:  replies,
	}}
}

func listing(things ...Thing) Thing {
	return Thing{Kind: KindListing, Data: ThingData{Children: Many(things...)}}
}

func ids(records []Record) []string {
	out := make([]string, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.ID)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNormalizeAbsentIsEmpty(t *testing.T) {
	got := Normalize(None())
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestNormalizeSingleNode(t *testing.T) {
	got := Normalize(One(comment("t1_a", "t3_p", "t3_p", None())))
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	rec := got[0]
	if rec.ID != "t1_a" || rec.ParentID != nil || rec.PostID != "t3_p" || rec.Depth != 0 {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.Author != "author_t1_a" || rec.Body != "body of t1_a" {
		t.Errorf("author/body not mapped: %+v", rec)
	}
}

func TestNormalizeRootWithOneReply(t *testing.T) {
	c2 := comment("t1_c2", "t1_c1", "t3_p", Replies{Shape: RepliesAbsent})
	c1 := comment("t1_c1", "t3_p", "t3_p", One(listing(c2)))

	got := Normalize(Many(listing(c1)))

	if !equalStrings(ids(got), []string{"t1_c1", "t1_c2"}) {
		t.Fatalf("unexpected order: %v", ids(got))
	}
	if got[0].Depth != 0 || got[1].Depth != 1 {
		t.Errorf("unexpected depths: %d, %d", got[0].Depth, got[1].Depth)
	}
	if got[1].ParentID == nil || *got[1].ParentID != "t1_c1" {
		t.Errorf("expected c2 parent t1_c1, got %v", got[1].ParentID)
	}
}

func TestNormalizeIsLevelMajor(t *testing.T) {
	a1 := comment("t1_a1", "t1_a", "t3_p", None())
	a2 := comment("t1_a2", "t1_a", "t3_p", None())
	b1 := comment("t1_b1", "t1_b", "t3_p", None())
	a1x := comment("t1_a1x", "t1_a1", "t3_p", None())
	a1.Data.Replies = One(listing(a1x))
	a := comment("t1_a", "t3_p", "t3_p", One(listing(a1, a2)))
	b := comment("t1_b", "t3_p", "t3_p", One(listing(b1)))

	got := Normalize(Many(listing(a, b)))

	want := []string{"t1_a", "t1_b", "t1_a1", "t1_a2", "t1_b1", "t1_a1x"}
	if !equalStrings(ids(got), want) {
		t.Fatalf("expected %v, got %v", want, ids(got))
	}
	wantDepth := []int{0, 0, 1, 1, 1, 2}
	for i, rec := range got {
		if rec.Depth != wantDepth[i] {
			t.Errorf("%s: expected depth %d, got %d", rec.ID, wantDepth[i], rec.Depth)
		}
	}
}

func TestNormalizeCountMatchesCommentNodes(t *testing.T) {
	// A chain ten levels deep plus a wide level of siblings.
	var node Thing
	replies := None()
	for i := 9; i >= 0; i-- {
		name := "t1_chain" + string(rune('a'+i))
		parent := "t3_p"
		if i > 0 {
			parent = "t1_chain" + string(rune('a'+i-1))
		}
		node = comment(name, parent, "t3_p", replies)
		replies = One(listing(node))
	}
	siblings := []Thing{node}
	for i := 0; i < 5; i++ {
		siblings = append(siblings, comment("t1_s"+string(rune('0'+i)), "t3_p", "t3_p", None()))
	}

	got := Normalize(Many(listing(siblings...)))
	if len(got) != 15 {
		t.Fatalf("expected 15 records, got %d", len(got))
	}
}

func TestNormalizeSkipsNonComments(t *testing.T) {
	post := Thing{Kind: KindPost, Data: ThingData{Name: "t3_p"}}
	more := Thing{Kind: KindMore, Data: ThingData{Name: "t1_more"}}
	c := comment("t1_c", "t3_p", "t3_p", One(listing(more)))

	got := Normalize(Many(listing(post), listing(c)))
	if !equalStrings(ids(got), []string{"t1_c"}) {
		t.Fatalf("expected only the comment, got %v", ids(got))
	}
}

func TestNormalizeFromRawPayload(t *testing.T) {
	raw := `[
	  {"kind":"Listing","data":{"children":[{"kind":"t3","data":{"name":"t3_p","title":"post"}}]}},
	  {"kind":"Listing","data":{"children":[
	    {"kind":"t1","data":{"name":"t1_c1","parent_id":"t3_p","link_id":"t3_p","author":"alice","body":"hi","depth":"not-a-number-but-ignored","replies":
	      {"kind":"Listing","data":{"children":[
	        {"kind":"t1","data":{"name":"t1_c2","parent_id":"t1_c1","link_id":"t3_p","author":"bob","body":"hello","replies":""}}
	      ]}}
	    }},
	    {"kind":"t1","data":{"name":"t1_c3","parent_id":"t3_p","link_id":"t3_p","author":"carol","body":"yo"}}
	  ]}}
	]`

	got := Normalize(ParsePayload([]byte(raw)))
	if !equalStrings(ids(got), []string{"t1_c1", "t1_c3", "t1_c2"}) {
		t.Fatalf("unexpected records: %v", ids(got))
	}
	if got[2].Author != "bob" || got[2].Depth != 1 {
		t.Errorf("unexpected reply record: %+v", got[2])
	}
}

func TestNormalizeMalformedPayloadIsEmpty(t *testing.T) {
	cases := []string{``, `garbage`, `42`, `"just a string"`, `{"kind":`, `null`}
	for _, raw := range cases {
		got := Normalize(ParsePayload([]byte(raw)))
		if len(got) != 0 {
			t.Errorf("payload %q: expected no records, got %v", raw, ids(got))
		}
	}
}

func TestRepliesUnmarshalShapes(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		shape RepliesShape
		count int
	}{
		{"missing", `{"kind":"t1","data":{"name":"t1_a"}}`, RepliesAbsent, 0},
		{"empty string", `{"kind":"t1","data":{"name":"t1_a","replies":""}}`, RepliesAbsent, 0},
		{"null", `{"kind":"t1","data":{"name":"t1_a","replies":null}}`, RepliesAbsent, 0},
		{"number", `{"kind":"t1","data":{"name":"t1_a","replies":7}}`, RepliesAbsent, 0},
		{"single", `{"kind":"t1","data":{"name":"t1_a","replies":{"kind":"t1","data":{"name":"t1_b"}}}}`, RepliesSingle, 1},
		{"list", `{"kind":"t1","data":{"name":"t1_a","replies":[{"kind":"t1","data":{"name":"t1_b"}},{"kind":"t1","data":{"name":"t1_c"}}]}}`, RepliesMany, 2},
		{"list with junk", `{"kind":"t1","data":{"name":"t1_a","replies":[1,{"kind":"t1","data":{"name":"t1_c"}}]}}`, RepliesMany, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var thing Thing
			if err := json.Unmarshal([]byte(tt.raw), &thing); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if thing.Data.Replies.Shape != tt.shape {
				t.Fatalf("expected shape %d, got %d", tt.shape, thing.Data.Replies.Shape)
			}
			if n := len(thing.Data.Replies.Things()); n != tt.count {
				t.Errorf("expected %d things, got %d", tt.count, n)
			}
		})
	}
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	c := comment("t1_c", "t3_p", "t3_p", None())
	children := make([]Thing, 1, 4)
	children[0] = c
	env := Thing{Kind: KindListing, Data: ThingData{Children: Replies{Shape: RepliesMany, Many: children}}}
	other := comment("t1_d", "t3_p", "t3_p", None())

	Normalize(Many(env, other))

	if spare := children[:2]; spare[1].Data.Name != "" {
		t.Fatalf("input backing array was written: %+v", spare[1])
	}
}
