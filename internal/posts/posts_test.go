package posts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/notionposts/internal/notion"
	"github.com/hyperifyio/notionposts/internal/slug"
)

const (
	testRoot       = "root"
	testCollection = "coll"
)

var schema = DefaultSchema()

// fakeFetcher serves fixed graphs and errors by page ID.
type fakeFetcher struct {
	mu     sync.Mutex
	graphs map[string]*notion.RecordMap
	errs   map[string]error
	delay  map[string]time.Duration
	calls  []string
}

func (f *fakeFetcher) GetPage(ctx context.Context, id string) (*notion.RecordMap, error) {
	f.mu.Lock()
	f.calls = append(f.calls, id)
	d := f.delay[id]
	err := f.errs[id]
	g := f.graphs[id]
	f.mu.Unlock()
	if d > 0 {
		time.Sleep(d)
	}
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, notion.ErrNotFound
	}
	return g, nil
}

type nullResolver struct{}

func (nullResolver) Resolve(string, *notion.RecordMap, slug.Options) string { return "" }

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

type row struct {
	public string
	title  string
	date   string
	tags   string
}

func rowGraph(t *testing.T, id string, r row) *notion.RecordMap {
	t.Helper()
	props := notion.Properties{}
	if r.public != "" {
		props[schema.PublicKey] = raw(t, [][]string{{r.public}})
	}
	if r.title != "" {
		props[schema.TitleKey] = raw(t, [][]string{{r.title}})
	}
	if r.date != "" {
		props[schema.DateKey] = raw(t, []any{[]any{"‣", []any{[]any{"d", map[string]string{"type": "date", "start_date": r.date}}}}})
	}
	if r.tags != "" {
		props[schema.TagsKey] = raw(t, [][]string{{r.tags}})
	}
	return &notion.RecordMap{Block: map[string]notion.Record{
		id: {Role: "reader", Value: &notion.BlockValue{ID: id, Type: notion.TypePage, ParentTable: notion.ParentCollection, Properties: props}},
	}}
}

func rootGraph(ids ...string) *notion.RecordMap {
	rm := &notion.RecordMap{Block: map[string]notion.Record{
		testRoot: {Value: &notion.BlockValue{ID: testRoot, Type: notion.TypePage}},
	}}
	rm.SetCollectionQuery(testCollection, "view", notion.CollectionQueryResult{
		CollectionGroupResults: &notion.GroupResults{Type: "results", BlockIDs: ids},
	})
	return rm
}

func newFetcher(root *notion.RecordMap) *fakeFetcher {
	return &fakeFetcher{
		graphs: map[string]*notion.RecordMap{testRoot: root},
		errs:   map[string]error{},
		delay:  map[string]time.Duration{},
	}
}

func newExtractor(f PageFetcher) *Extractor {
	return New(f, slug.Canonical{}, Options{CollectionID: testCollection, Schema: schema})
}

func TestExtract_PublicFilter(t *testing.T) {
	f := newFetcher(rootGraph("p1", "p2"))
	f.graphs["p1"] = rowGraph(t, "p1", row{public: "Yes", title: "Hello", date: "2025-01-01"})
	f.graphs["p2"] = rowGraph(t, "p2", row{public: "No", title: "Hidden", date: "2025-02-01"})

	got := newExtractor(f).Extract(context.Background(), testRoot)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].ID)
	assert.Equal(t, "Hello", got[0].Title)
	assert.Equal(t, "2025-01-01", got[0].Date)
	assert.Equal(t, []string{}, got[0].Tags)
}

func TestExtract_RefetchesEveryCandidate(t *testing.T) {
	f := newFetcher(rootGraph("p1", "p2"))
	f.graphs["p1"] = rowGraph(t, "p1", row{public: "Yes"})
	f.graphs["p2"] = rowGraph(t, "p2", row{public: "Yes"})

	newExtractor(f).Extract(context.Background(), testRoot)
	assert.ElementsMatch(t, []string{testRoot, "p1", "p2"}, f.calls)
}

func TestExtract_CandidateFetchErrorDropsOnlyThatPost(t *testing.T) {
	f := newFetcher(rootGraph("p1", "p2", "p3"))
	f.graphs["p1"] = rowGraph(t, "p1", row{public: "Yes", title: "One"})
	f.errs["p2"] = errors.New("network down")
	f.graphs["p3"] = rowGraph(t, "p3", row{public: "Yes", title: "Three"})

	got := newExtractor(f).Extract(context.Background(), testRoot)
	require.Len(t, got, 2)
	assert.Equal(t, "p1", got[0].ID)
	assert.Equal(t, "p3", got[1].ID)
}

func TestExtract_NoCollectionQuery(t *testing.T) {
	root := &notion.RecordMap{Block: map[string]notion.Record{testRoot: {Value: &notion.BlockValue{ID: testRoot}}}}
	got := newExtractor(newFetcher(root)).Extract(context.Background(), testRoot)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestExtract_UnknownCollection(t *testing.T) {
	f := newFetcher(rootGraph("p1"))
	f.graphs["p1"] = rowGraph(t, "p1", row{public: "Yes"})
	e := New(f, nil, Options{CollectionID: "other", Schema: schema})
	assert.Empty(t, e.Extract(context.Background(), testRoot))
}

func TestExtract_EmptyView(t *testing.T) {
	f := newFetcher(rootGraph())
	assert.Empty(t, newExtractor(f).Extract(context.Background(), testRoot))
	assert.Equal(t, []string{testRoot}, f.calls)
}

// An unavailable upstream and a workspace without posts both yield an empty
// list; callers cannot distinguish them.
func TestExtract_RootFailureIsIndistinguishableFromNoPosts(t *testing.T) {
	down := newFetcher(nil)
	down.errs[testRoot] = errors.New("503 from upstream")
	empty := newFetcher(rootGraph())

	a := newExtractor(down).Extract(context.Background(), testRoot)
	b := newExtractor(empty).Extract(context.Background(), testRoot)
	assert.Equal(t, []Post{}, a)
	assert.Equal(t, a, b)
}

func TestExtract_MalformedRecordsDropped(t *testing.T) {
	f := newFetcher(rootGraph("missing", "noprops", "nopublic", "ok"))
	f.graphs["missing"] = &notion.RecordMap{}
	f.graphs["noprops"] = &notion.RecordMap{Block: map[string]notion.Record{"noprops": {Value: &notion.BlockValue{ID: "noprops"}}}}
	f.graphs["nopublic"] = rowGraph(t, "nopublic", row{title: "No flag"})
	f.graphs["ok"] = rowGraph(t, "ok", row{public: "Yes"})

	got := newExtractor(f).Extract(context.Background(), testRoot)
	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0].ID)
	assert.Equal(t, Untitled, got[0].Title)
}

func TestExtract_PublicValueIsExact(t *testing.T) {
	f := newFetcher(rootGraph("a", "b", "c"))
	f.graphs["a"] = rowGraph(t, "a", row{public: "yes"})
	f.graphs["b"] = rowGraph(t, "b", row{public: "Yes "})
	f.graphs["c"] = rowGraph(t, "c", row{public: "Yes"})

	got := newExtractor(f).Extract(context.Background(), testRoot)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].ID)
}

func TestExtract_Ordering(t *testing.T) {
	f := newFetcher(rootGraph("u1", "d1", "u2", "d2", "d3", "u3"))
	f.graphs["u1"] = rowGraph(t, "u1", row{public: "Yes"})
	f.graphs["d1"] = rowGraph(t, "d1", row{public: "Yes", date: "2024-05-01"})
	f.graphs["u2"] = rowGraph(t, "u2", row{public: "Yes", date: "not a date"})
	f.graphs["d2"] = rowGraph(t, "d2", row{public: "Yes", date: "2025-01-01"})
	f.graphs["d3"] = rowGraph(t, "d3", row{public: "Yes", date: "2024-05-01"})
	f.graphs["u3"] = rowGraph(t, "u3", row{public: "Yes"})
	// Arrival order must not matter.
	f.delay["u1"] = 30 * time.Millisecond
	f.delay["d1"] = 20 * time.Millisecond

	got := newExtractor(f).Extract(context.Background(), testRoot)
	ids := make([]string, len(got))
	for i, p := range got {
		ids[i] = p.ID
	}
	assert.Equal(t, []string{"d2", "d1", "d3", "u1", "u2", "u3"}, ids)
	assert.Empty(t, got[4].Date, "unparseable date is absent")
}

func TestExtract_Idempotent(t *testing.T) {
	f := newFetcher(rootGraph("a", "b", "c", "d"))
	f.graphs["a"] = rowGraph(t, "a", row{public: "Yes", title: "A", date: "2024-01-01", tags: "x, y"})
	f.graphs["b"] = rowGraph(t, "b", row{public: "Yes", title: "B"})
	f.graphs["c"] = rowGraph(t, "c", row{public: "Yes", title: "C", date: "2024-01-01"})
	f.graphs["d"] = rowGraph(t, "d", row{public: "Yes", title: "D"})
	f.delay["a"] = 10 * time.Millisecond

	e := newExtractor(f)
	first := e.Extract(context.Background(), testRoot)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, e.Extract(context.Background(), testRoot))
	}
}

func TestExtract_Tags(t *testing.T) {
	f := newFetcher(rootGraph("p"))
	f.graphs["p"] = rowGraph(t, "p", row{public: "Yes", tags: "Tag1,Tag2 , Tag3"})
	got := newExtractor(f).Extract(context.Background(), testRoot)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"Tag1", "Tag2", "Tag3"}, got[0].Tags)
}

func TestExtract_SlugFallback(t *testing.T) {
	f := newFetcher(rootGraph("abcd-1234-efgh"))
	f.graphs["abcd-1234-efgh"] = rowGraph(t, "abcd-1234-efgh", row{public: "Yes", title: "Hello"})
	e := New(f, nullResolver{}, Options{CollectionID: testCollection, Schema: schema})

	got := e.Extract(context.Background(), testRoot)
	require.Len(t, got, 1)
	assert.Equal(t, "abcd1234efgh", got[0].Slug)

	e = New(f, nil, Options{CollectionID: testCollection, Schema: schema})
	assert.Equal(t, "abcd1234efgh", e.Extract(context.Background(), testRoot)[0].Slug)
}

func TestExtract_CanonicalSlug(t *testing.T) {
	f := newFetcher(rootGraph("abcd-1234-efgh"))
	f.graphs["abcd-1234-efgh"] = rowGraph(t, "abcd-1234-efgh", row{public: "Yes", title: "Hello World"})
	got := newExtractor(f).Extract(context.Background(), testRoot)
	require.Len(t, got, 1)
	assert.Equal(t, "hello-world-abcd1234efgh", got[0].Slug)
}

func TestExtract_Limit(t *testing.T) {
	ids := make([]string, 10)
	f := newFetcher(nil)
	for i := range ids {
		ids[i] = fmt.Sprintf("p%d", i)
		f.graphs[ids[i]] = rowGraph(t, ids[i], row{public: "Yes", date: fmt.Sprintf("2024-01-%02d", i+1)})
	}
	f.graphs[testRoot] = rootGraph(ids...)
	e := New(f, nil, Options{CollectionID: testCollection, Schema: schema, Limit: 6})

	got := e.Extract(context.Background(), testRoot)
	require.Len(t, got, 6)
	assert.Equal(t, "p9", got[0].ID)
	assert.Equal(t, "p4", got[5].ID)
}

func TestExtract_ConcurrencyBound(t *testing.T) {
	ids := make([]string, 12)
	var inFlight, peak int32
	f := &boundedFetcher{inFlight: &inFlight, peak: &peak, t: t}
	for i := range ids {
		ids[i] = fmt.Sprintf("p%d", i)
	}
	f.root = rootGraph(ids...)
	e := New(f, nil, Options{CollectionID: testCollection, Schema: schema, Concurrency: 3})

	got := e.Extract(context.Background(), testRoot)
	assert.Len(t, got, 12)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

type boundedFetcher struct {
	root           *notion.RecordMap
	inFlight, peak *int32
	t              *testing.T
}

func (b *boundedFetcher) GetPage(_ context.Context, id string) (*notion.RecordMap, error) {
	if id == testRoot {
		return b.root, nil
	}
	n := atomic.AddInt32(b.inFlight, 1)
	defer atomic.AddInt32(b.inFlight, -1)
	for {
		p := atomic.LoadInt32(b.peak)
		if n <= p || atomic.CompareAndSwapInt32(b.peak, p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	return rowGraph(b.t, id, row{public: "Yes"}), nil
}

func TestExtract_DefaultCollectionAndViewOrder(t *testing.T) {
	root := &notion.RecordMap{}
	root.SetCollectionQuery("b-coll", "v1", notion.CollectionQueryResult{CollectionGroupResults: &notion.GroupResults{BlockIDs: []string{"late"}}})
	root.SetCollectionQuery("a-coll", "v2", notion.CollectionQueryResult{CollectionGroupResults: &notion.GroupResults{BlockIDs: []string{"second"}}})
	root.SetCollectionQuery("a-coll", "v1", notion.CollectionQueryResult{})
	root.SetCollectionQuery("a-coll", "v3", notion.CollectionQueryResult{CollectionGroupResults: &notion.GroupResults{BlockIDs: []string{"third"}}})
	f := newFetcher(root)
	for _, id := range []string{"late", "second", "third"} {
		f.graphs[id] = rowGraph(t, id, row{public: "Yes"})
	}

	got := New(f, nil, Options{Schema: schema}).Extract(context.Background(), testRoot)
	require.Len(t, got, 1)
	assert.Equal(t, "second", got[0].ID)
}

type panicFetcher struct{ *fakeFetcher }

func (p *panicFetcher) GetPage(ctx context.Context, id string) (*notion.RecordMap, error) {
	if id == "boom" {
		panic("unexpected shape")
	}
	return p.fakeFetcher.GetPage(ctx, id)
}

func TestExtract_PanicInCandidateIsContained(t *testing.T) {
	f := &panicFetcher{fakeFetcher: newFetcher(rootGraph("boom", "ok"))}
	f.graphs["ok"] = rowGraph(t, "ok", row{public: "Yes"})

	got := New(f, nil, Options{CollectionID: testCollection, Schema: schema}).Extract(context.Background(), testRoot)
	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0].ID)
}
