package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/referencias-work/curator-cli/internal/enrich"
	"github.com/referencias-work/curator-cli/internal/extract"
	"github.com/referencias-work/curator-cli/internal/fetcher"
	"github.com/referencias-work/curator-cli/internal/model"
	"github.com/referencias-work/curator-cli/internal/probe"
	"github.com/referencias-work/curator-cli/internal/rank"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// memStore round-trips through JSON so tests see exactly what was persisted.
type memStore struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

func newMemStore(t *testing.T, items ...model.Reference) *memStore {
	t.Helper()
	data, err := json.Marshal(&model.ReferenceDB{Count: len(items), Items: items})
	require.NoError(t, err)
	return &memStore{data: data}
}

func (m *memStore) Load(context.Context) (*model.ReferenceDB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var db model.ReferenceDB
	err := json.Unmarshal(m.data, &db)
	return &db, err
}

func (m *memStore) Save(_ context.Context, db *model.ReferenceDB) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, err := json.Marshal(db)
	if err != nil {
		return err
	}
	m.data = data
	m.saves++
	return nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) items(t *testing.T) []model.Reference {
	t.Helper()
	db, err := m.Load(context.Background())
	require.NoError(t, err)
	return db.Items
}

type memSink struct {
	mu    sync.Mutex
	names []string
	blobs map[string][]byte
	fail  string
}

func (s *memSink) Put(_ context.Context, name string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != "" && strings.Contains(name, s.fail) {
		return "", errors.New("sink down")
	}
	if s.blobs == nil {
		s.blobs = make(map[string][]byte)
	}
	s.names = append(s.names, name)
	s.blobs[name] = data
	return "mem://" + name, nil
}

func (s *memSink) report(t *testing.T) model.Report {
	t.Helper()
	for _, n := range s.names {
		if strings.Contains(n, "-report-") {
			var rep model.Report
			require.NoError(t, json.Unmarshal(s.blobs[n], &rep))
			return rep
		}
	}
	t.Fatal("no report written")
	return model.Report{}
}

type thumbFunc func(ctx context.Context, url string, s enrich.Strategy) (model.ThumbnailResult, error)

func (f thumbFunc) FindThumbnail(ctx context.Context, url string, s enrich.Strategy) (model.ThumbnailResult, error) {
	return f(ctx, url, s)
}

type locFunc func(ctx context.Context, url string) (model.LocationResult, error)

func (f locFunc) SuggestLocation(ctx context.Context, url string) (model.LocationResult, error) {
	return f(ctx, url)
}

func newRunner(st *memStore, sink *memSink, opts Options) *Runner {
	return &Runner{Store: st, Sink: sink, Options: opts, Now: func() time.Time { return testNow }}
}

func ref(id string) model.Reference {
	return model.Reference{ID: id, Name: "Studio " + id, URL: "https://" + id + ".example"}
}

func TestThumbnailJob_Eligible(t *testing.T) {
	j := &ThumbnailJob{Quality: rank.New(nil)}
	old := testNow.Add(-200 * time.Hour)
	recent := testNow.Add(-time.Hour)

	tests := []struct {
		name string
		st   model.ThumbState
		want bool
	}{
		{"never tried", model.ThumbState{Status: model.ThumbNeverTried}, true},
		{"good thumbnail", model.ThumbState{Status: model.ThumbFound, URL: "https://x.example/hero.jpg"}, false},
		{"good thumbnail tried", model.ThumbState{Status: model.ThumbFound, URL: "https://x.example/hero.jpg", Attempts: 1, TriedAt: old}, false},
		{"low quality untried", model.ThumbState{Status: model.ThumbFound, URL: "https://x.example/logo.png"}, true},
		{"low quality recent", model.ThumbState{Status: model.ThumbFound, URL: "https://x.example/logo.png", Attempts: 1, TriedAt: recent}, false},
		{"low quality expired", model.ThumbState{Status: model.ThumbFound, URL: "https://x.example/logo.png", Attempts: 1, TriedAt: old}, true},
		{"low quality capped", model.ThumbState{Status: model.ThumbFound, URL: "https://x.example/logo.png", Attempts: 2, TriedAt: old}, false},
		{"not found recent", model.ThumbState{Status: model.ThumbTriedNotFound, Attempts: 1, TriedAt: recent}, false},
		{"not found expired", model.ThumbState{Status: model.ThumbTriedNotFound, Attempts: 1, TriedAt: old}, true},
		{"not found capped", model.ThumbState{Status: model.ThumbTriedNotFound, Attempts: 2, TriedAt: old}, false},
		{"not found no timestamp", model.ThumbState{Status: model.ThumbTriedNotFound, Attempts: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, j.Eligible(tt.st, testNow))
		})
	}
}

func TestThumbnailJob_QueueOrder(t *testing.T) {
	j := &ThumbnailJob{Quality: rank.New(nil)}
	at := func(h int) string { return model.FormatTime(testNow.Add(-time.Duration(h) * time.Hour)) }

	items := []model.Reference{
		{ID: "tried-old", ThumbnailAttempts: 1, ThumbnailTriedAt: at(400)},
		{ID: "fresh-a"},
		{ID: "good", ThumbnailURL: model.StringPtr("https://x.example/hero.jpg")},
		{ID: "tried-older", ThumbnailAttempts: 1, ThumbnailTriedAt: at(900)},
		{ID: "logo", ThumbnailURL: model.StringPtr("https://x.example/logo.png")},
		{ID: "fresh-b"},
		{ID: "capped", ThumbnailAttempts: 2, ThumbnailTriedAt: at(900)},
	}

	ids := func(q []int) []string {
		out := make([]string, len(q))
		for i, idx := range q {
			out[i] = items[idx].ID
		}
		return out
	}
	want := []string{"fresh-a", "logo", "fresh-b", "tried-older", "tried-old"}
	assert.Equal(t, want, ids(j.Queue(items, testNow)))
	assert.Equal(t, want, ids(j.Queue(items, testNow)), "queue is deterministic")
}

func TestLocationJob_Queue(t *testing.T) {
	items := []model.Reference{ref("a"), {ID: "b", ReviewedAt: "2024-01-01T00:00:00.000Z"}, ref("c")}
	assert.Equal(t, []int{0, 2}, (&LocationJob{}).Queue(items, testNow))
}

func TestRun_Location(t *testing.T) {
	same := ref("same")
	same.City = model.StringPtr("Porto")
	same.Country = model.StringPtr("Portugal")
	reviewed := ref("reviewed")
	reviewed.ReviewedAt = "2024-01-01T00:00:00.000Z"
	empty := model.Reference{ID: "empty", Name: "No URL"}

	st := newMemStore(t, ref("new"), same, reviewed, empty, ref("miss"), ref("down"))
	sink := &memSink{}
	finder := locFunc(func(_ context.Context, url string) (model.LocationResult, error) {
		switch {
		case strings.Contains(url, "new"):
			return model.LocationResult{
				Address: model.Address{City: "Berlin", Country: "Germany", Method: model.MethodJSONLD},
				Source:  url + "/contact",
			}, nil
		case strings.Contains(url, "same"):
			return model.LocationResult{Address: model.Address{City: "Porto", Country: "Portugal"}}, nil
		case strings.Contains(url, "miss"):
			return model.LocationResult{}, enrich.ErrNoCandidate
		}
		return model.LocationResult{}, &enrich.UnreachableError{Code: "TIMEOUT"}
	})

	rep, err := newRunner(st, sink, Options{}).Run(context.Background(), &LocationJob{Finder: finder})
	require.NoError(t, err)

	assert.Equal(t, model.ModeLocation, rep.Mode)
	assert.Equal(t, 5, rep.Eligible)
	assert.Equal(t, 4, rep.Processed)
	assert.Equal(t, 1, rep.Updated)
	assert.Equal(t, 3, rep.Skipped)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.Batches)
	require.Len(t, rep.Samples, 1)
	assert.Equal(t, "Berlin", rep.Samples[0].City)
	assert.Equal(t, "jsonld", rep.Samples[0].Method)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, "TIMEOUT", rep.Failures[0].Error)

	items := st.items(t)
	assert.Equal(t, "Berlin", model.StringValue(items[0].City))
	assert.Equal(t, model.FormatTime(testNow), items[0].UpdatedAt)
	assert.Empty(t, items[1].UpdatedAt, "unchanged item keeps its timestamp")
	assert.Equal(t, "https://new.example", items[0].URL)
	assert.Equal(t, "Studio new", items[0].Name)

	require.Len(t, sink.names, 2)
	assert.True(t, strings.HasPrefix(sink.names[0], "references.backup.location."), "backup first")
	assert.True(t, strings.HasPrefix(sink.names[1], "location-report-"), "report last")
	assert.Equal(t, "mem://"+sink.names[0], rep.Backup)
}

func TestRun_ThumbnailsAllFail(t *testing.T) {
	var items []model.Reference
	for i := range 30 {
		items = append(items, ref(fmt.Sprintf("s%02d", i)))
	}
	st := newMemStore(t, items...)
	sink := &memSink{}
	finder := thumbFunc(func(context.Context, string, enrich.Strategy) (model.ThumbnailResult, error) {
		return model.ThumbnailResult{}, &enrich.UnreachableError{Code: "HTTP_503"}
	})

	rep, err := newRunner(st, sink, Options{BatchSize: 8, Concurrency: 4}).Run(context.Background(),
		&ThumbnailJob{Finder: finder, Quality: rank.New(nil), Search: enrich.StrategyCheap})
	require.NoError(t, err)

	assert.Equal(t, 30, rep.Processed)
	assert.Equal(t, 30, rep.Failed)
	assert.Equal(t, 0, rep.Updated)
	assert.Equal(t, 4, rep.Batches)
	assert.Len(t, rep.Failures, ThumbnailSamples)
	assert.Equal(t, "cheap", rep.Strategy)
	assert.Equal(t, 4, st.saves)

	for _, it := range st.items(t) {
		assert.Equal(t, 1, it.ThumbnailAttempts)
		assert.Equal(t, model.ThumbSourceNone, it.ThumbnailSource)
		assert.Nil(t, it.ThumbnailURL)
		assert.Empty(t, it.UpdatedAt)
	}
	persisted := sink.report(t)
	assert.Equal(t, rep.ID, persisted.ID)
	assert.Equal(t, 30, persisted.Failed)
}

func TestRun_GoodThumbnailUntouched(t *testing.T) {
	good := ref("good")
	good.ThumbnailURL = model.StringPtr("https://good.example/work/hero.jpg")
	good.ThumbnailSource = model.ThumbSourceProject
	good.Extra = map[string]json.RawMessage{"tags": json.RawMessage(`["type"]`)}
	low := ref("low")
	low.ThumbnailURL = model.StringPtr("https://low.example/logo.png")
	low.ThumbnailSource = model.ThumbSourceOG

	st := newMemStore(t, good, low)
	before, err := json.Marshal(st.items(t)[0])
	require.NoError(t, err)

	var calls atomic.Int32
	finder := thumbFunc(func(_ context.Context, url string, _ enrich.Strategy) (model.ThumbnailResult, error) {
		calls.Add(1)
		return model.ThumbnailResult{}, enrich.ErrNoCandidate
	})
	rep, err := newRunner(st, &memSink{}, Options{}).Run(context.Background(),
		&ThumbnailJob{Finder: finder, Quality: rank.New(nil)})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, rep.Skipped)

	items := st.items(t)
	after, err := json.Marshal(items[0])
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))

	assert.Equal(t, "https://low.example/logo.png", items[1].Thumbnail(), "a miss keeps the old thumbnail")
	assert.Equal(t, model.ThumbSourceOG, items[1].ThumbnailSource)
	assert.Equal(t, 1, items[1].ThumbnailAttempts)
}

func TestRun_ThumbnailUpdate(t *testing.T) {
	st := newMemStore(t, ref("a"), model.Reference{ID: "blank"})
	finder := thumbFunc(func(_ context.Context, url string, s enrich.Strategy) (model.ThumbnailResult, error) {
		assert.Equal(t, enrich.StrategyLadder, s)
		return model.ThumbnailResult{URL: url + "/cover.jpg", Source: model.ThumbSourceProject, Page: "project@/works"}, nil
	})
	rep, err := newRunner(st, &memSink{}, Options{}).Run(context.Background(),
		&ThumbnailJob{Finder: finder, Quality: rank.New(nil)})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Updated)
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, 1, rep.Processed)
	require.Len(t, rep.Samples, 1)
	assert.Equal(t, "project@/works", rep.Samples[0].Method)

	items := st.items(t)
	assert.Equal(t, "https://a.example/cover.jpg", items[0].Thumbnail())
	assert.Equal(t, model.ThumbSourceProject, items[0].ThumbnailSource)
	assert.Equal(t, model.FormatTime(testNow), items[0].UpdatedAt)
	assert.Equal(t, 1, items[1].ThumbnailAttempts, "items without a URL age out")
}

func TestRun_LadderIncrementsAttemptsOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<p>nothing here</p>`))
	}))
	defer srv.Close()

	svc := enrich.NewService(
		fetcher.NewHTTPFetcher(fetcher.HTTPOptions{}),
		extract.NewHTML(nil), rank.New(nil), probe.New(nil),
		enrich.OnDemandPolicy(2*time.Second),
	)
	site := model.Reference{ID: "s", Name: "Empty", URL: srv.URL}
	st := newMemStore(t, site)

	rep, err := newRunner(st, &memSink{}, Options{}).Run(context.Background(),
		&ThumbnailJob{Finder: svc, Quality: rank.New(nil), Search: enrich.StrategyLadder})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Skipped)
	assert.Greater(t, hits.Load(), int32(10), "both ladder steps ran")

	it := st.items(t)[0]
	assert.Equal(t, 1, it.ThumbnailAttempts)
	assert.Equal(t, model.FormatTime(testNow), it.ThumbnailTriedAt)
	assert.Equal(t, model.ThumbSourceNone, it.ThumbnailSource)
}

func TestRun_MaxItemsAndBatches(t *testing.T) {
	var items []model.Reference
	for i := range 7 {
		items = append(items, ref(fmt.Sprintf("m%d", i)))
	}
	st := newMemStore(t, items...)
	finder := thumbFunc(func(context.Context, string, enrich.Strategy) (model.ThumbnailResult, error) {
		return model.ThumbnailResult{}, enrich.ErrNoCandidate
	})

	rep, err := newRunner(st, &memSink{}, Options{BatchSize: 2, MaxItems: 5}).Run(context.Background(),
		&ThumbnailJob{Finder: finder, Quality: rank.New(nil)})
	require.NoError(t, err)
	assert.Equal(t, 7, rep.Eligible)
	assert.Equal(t, 5, rep.Queued)
	assert.Equal(t, 3, rep.Batches)
	assert.Equal(t, 3, st.saves)

	got := st.items(t)
	for i, it := range got {
		want := 0
		if i < 5 {
			want = 1
		}
		assert.Equal(t, want, it.ThumbnailAttempts, it.ID)
	}
}

func TestRun_CancelPersistsAndReports(t *testing.T) {
	var items []model.Reference
	for i := range 6 {
		items = append(items, ref(fmt.Sprintf("c%d", i)))
	}
	st := newMemStore(t, items...)
	sink := &memSink{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	finder := thumbFunc(func(ctx context.Context, url string, _ enrich.Strategy) (model.ThumbnailResult, error) {
		if strings.Contains(url, "c0") {
			cancel()
			return model.ThumbnailResult{URL: url + "/a.jpg", Source: model.ThumbSourceDeep}, nil
		}
		<-ctx.Done()
		return model.ThumbnailResult{}, ctx.Err()
	})

	rep, err := newRunner(st, sink, Options{BatchSize: 2, Concurrency: 1}).Run(ctx,
		&ThumbnailJob{Finder: finder, Quality: rank.New(nil)})
	require.NoError(t, err)
	assert.True(t, rep.Canceled)
	assert.Equal(t, 1, rep.Batches)
	assert.Equal(t, 1, rep.Updated)
	assert.Equal(t, 1, st.saves, "in-flight batch saved")

	got := st.items(t)
	assert.Equal(t, "https://c0.example/a.jpg", got[0].Thumbnail())
	for _, it := range got[1:] {
		assert.Equal(t, 0, it.ThumbnailAttempts, "abandoned items untouched: %s", it.ID)
	}
	assert.True(t, sink.report(t).Canceled)
}

func TestRun_PanicRecovered(t *testing.T) {
	st := newMemStore(t, ref("boom"), ref("ok"))
	finder := locFunc(func(_ context.Context, url string) (model.LocationResult, error) {
		if strings.Contains(url, "boom") {
			panic("parser exploded")
		}
		return model.LocationResult{Address: model.Address{City: "Lima", Country: "Peru"}}, nil
	})
	rep, err := newRunner(st, &memSink{}, Options{}).Run(context.Background(), &LocationJob{Finder: finder})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.Updated)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, CodePanic, rep.Failures[0].Error)
}

func TestRun_BackupFailureAborts(t *testing.T) {
	st := newMemStore(t, ref("a"))
	var calls atomic.Int32
	finder := locFunc(func(context.Context, string) (model.LocationResult, error) {
		calls.Add(1)
		return model.LocationResult{}, nil
	})
	_, err := newRunner(st, &memSink{fail: "backup"}, Options{}).Run(context.Background(), &LocationJob{Finder: finder})
	require.Error(t, err)
	assert.Zero(t, calls.Load())
	assert.Zero(t, st.saves)
}

func TestSleepCtx(t *testing.T) {
	assert.True(t, sleepCtx(context.Background(), 0))
	assert.True(t, sleepCtx(context.Background(), time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleepCtx(ctx, time.Hour))
}
