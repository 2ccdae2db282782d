package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	meili "github.com/meilisearch/meilisearch-go"
)

type fakeSearcher struct {
	results []Result
	total   int
	err     error
	got     Query
}

func (f *fakeSearcher) Search(ctx context.Context, q Query) ([]Result, int, error) {
	f.got = q
	return f.results, f.total, f.err
}

func (f *fakeSearcher) Healthy() bool { return true }

func TestParseResultType(t *testing.T) {
	tests := []struct {
		in   string
		want ResultType
		ok   bool
	}{
		{"", "", true},
		{"post", ResultPost, true},
		{"comment", ResultComment, true},
		{"thread", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseResultType(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseResultType(%q) = %q, %v", tt.in, got, ok)
		}
	}
}

func TestServiceFallsBackToPgFTS(t *testing.T) {
	fallback := &fakeSearcher{results: []Result{{Type: ResultComment, ID: "7"}}, total: 1}
	svc := NewService(nil, fallback)

	resp := svc.Search(context.Background(), Query{Text: "generics", FilterType: ResultComment})
	if resp.Total != 1 || len(resp.Results) != 1 || resp.Results[0].ID != "7" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Query != "generics" || fallback.got.FilterType != ResultComment {
		t.Fatalf("query not passed through: %+v", fallback.got)
	}
}

func TestServiceNeverReturnsNilResults(t *testing.T) {
	svc := NewService(nil, &fakeSearcher{err: errors.New("db down")})
	resp := svc.Search(context.Background(), Query{Text: "x"})
	if resp.Results == nil || len(resp.Results) != 0 {
		t.Fatalf("expected empty results, got %+v", resp.Results)
	}

	resp = NewService(nil, nil).Search(context.Background(), Query{Text: "x"})
	if resp.Results == nil {
		t.Fatal("expected non-nil results without any backend")
	}

	body, err := json.Marshal(NewService(nil, &fakeSearcher{}).Search(context.Background(), Query{Text: "x"}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(body), `"results":[]`) {
		t.Fatalf("expected empty array in %s", body)
	}
}

func TestIndexingWithoutMeiliIsNoop(t *testing.T) {
	svc := NewService(nil, &fakeSearcher{})
	svc.IndexPost(PostRecord{ID: "1"})
	svc.IndexComments([]CommentRecord{{ID: "2"}})
	svc.ReindexAllFromPG(context.Background(), nil)
}

func TestBuildQueryFilters(t *testing.T) {
	countSQL, dataSQL, args := buildQuery(Query{Text: "go", FilterType: ResultPost, Limit: 5, Offset: 10})
	if strings.Contains(dataSQL, "FROM comments") {
		t.Fatalf("post filter should skip comments: %s", dataSQL)
	}
	if !strings.Contains(dataSQL, "LIMIT 5 OFFSET 10") {
		t.Fatalf("missing paging: %s", dataSQL)
	}
	if !strings.HasPrefix(countSQL, "SELECT count(*)") || len(args) != 1 {
		t.Fatalf("unexpected count query %q args %v", countSQL, args)
	}

	_, dataSQL, args = buildQuery(Query{Text: "go", FilterSubredditID: "3", Offset: -4})
	if !strings.Contains(dataSQL, "FROM posts p") || !strings.Contains(dataSQL, "FROM comments c") {
		t.Fatalf("expected both sources: %s", dataSQL)
	}
	if strings.Count(dataSQL, "subreddit_id::text = $2") != 2 || len(args) != 2 {
		t.Fatalf("expected subreddit filter on both sources, args %v", args)
	}
	if !strings.Contains(dataSQL, "LIMIT 20 OFFSET 0") {
		t.Fatalf("expected default paging: %s", dataSQL)
	}
}

func TestBuildMultiSearch(t *testing.T) {
	queries := buildMultiSearch(Query{Text: "go", FilterType: ResultComment, FilterSubredditID: "9"})
	if len(queries) != 1 || queries[0].IndexUID != idxComments {
		t.Fatalf("expected only the comment index, got %+v", queries)
	}
	if queries[0].Query != "go" || queries[0].Limit != 20 {
		t.Fatalf("unexpected request %+v", queries[0])
	}
	if len(buildMultiSearch(Query{Text: "go"})) != 2 {
		t.Fatal("expected both indexes without a type filter")
	}
}

func TestHitToResult(t *testing.T) {
	hit := meili.Hit{
		"id":          json.RawMessage(`"42"`),
		"postId":      json.RawMessage(`"7"`),
		"postTitle":   json.RawMessage(`"Generics"`),
		"body":        json.RawMessage(`"type params"`),
		"subredditId": json.RawMessage(`"3"`),
		"_formatted":  json.RawMessage(`{"body":"<mark>type</mark> params"}`),
	}
	got := hitToResult(hit, ResultComment)
	want := Result{Type: ResultComment, ID: "42", Title: "Generics", Snippet: "<mark>type</mark> params", PostID: "7", SubredditID: "3"}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	post := hitToResult(meili.Hit{"id": json.RawMessage(`"7"`), "title": json.RawMessage(`"Generics"`)}, ResultPost)
	if post.PostID != "7" || post.Title != "Generics" {
		t.Fatalf("unexpected post result %+v", post)
	}
}

func TestAddInBatches(t *testing.T) {
	docs := make([]int, 2*indexBatchSize+5)
	var sizes []int
	err := addInBatches(docs, func(batch []int) error {
		sizes = append(sizes, len(batch))
		return nil
	})
	if err != nil {
		t.Fatalf("addInBatches: %v", err)
	}
	if len(sizes) != 3 || sizes[0] != indexBatchSize || sizes[2] != 5 {
		t.Fatalf("unexpected batch sizes %v", sizes)
	}

	calls := 0
	err = addInBatches(docs, func(batch []int) error {
		calls++
		return errors.New("boom")
	})
	if err == nil || calls != 1 {
		t.Fatalf("expected first failure to stop, got %v after %d calls", err, calls)
	}
	if err := addInBatches([]int{}, func([]int) error { t.Fatal("unexpected call"); return nil }); err != nil {
		t.Fatalf("empty input: %v", err)
	}
}

func TestBuildMultiSearchClampsOffset(t *testing.T) {
	queries := buildMultiSearch(Query{Text: "go", FilterType: ResultPost, Offset: -3, Limit: 7})
	if len(queries) != 1 || queries[0].IndexUID != idxPosts {
		t.Fatalf("expected only the post index, got %+v", queries)
	}
	if queries[0].Offset != 0 || queries[0].Limit != 7 {
		t.Fatalf("unexpected paging %+v", queries[0])
	}
	if indexToResultType("unknown") != "" || indexToResultType(idxPosts) != ResultPost {
		t.Fatal("unexpected index mapping")
	}
}

type meiliStub struct {
	mu        sync.Mutex
	documents map[string]int
}

func (m *meiliStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.URL.Path == "/health" {
		_, _ = w.Write([]byte(`{"status":"available"}`))
		return
	}
	if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/documents") {
		var docs []map[string]any
		_ = json.NewDecoder(r.Body).Decode(&docs)
		m.mu.Lock()
		m.documents[r.URL.Path] += len(docs)
		m.mu.Unlock()
	}
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte(`{"taskUid":1,"indexUid":"x","status":"enqueued","type":"documentAdditionOrUpdate","enqueuedAt":"2024-01-01T00:00:00Z"}`))
}

func (m *meiliStub) count(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.documents[path]
}

func TestWaitCoversBackgroundIndexing(t *testing.T) {
	stub := &meiliStub{documents: map[string]int{}}
	server := httptest.NewServer(stub)
	defer server.Close()

	m := NewMeili(server.URL, "key")
	defer m.Close()
	if !m.Healthy() {
		t.Fatal("expected stub meilisearch to be healthy")
	}
	svc := NewService(m, nil)

	svc.IndexPost(PostRecord{ID: "1", Title: "Go 1.24"})
	svc.IndexComments([]CommentRecord{{ID: "2", Body: "a"}, {ID: "3", Body: "b"}})
	svc.Wait()

	if got := stub.count("/indexes/" + idxPosts + "/documents"); got != 1 {
		t.Fatalf("expected 1 post document, got %d", got)
	}
	if got := stub.count("/indexes/" + idxComments + "/documents"); got != 2 {
		t.Fatalf("expected 2 comment documents, got %d", got)
	}
}
