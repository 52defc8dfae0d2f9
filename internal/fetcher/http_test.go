package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFetcher() *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{UserAgent: "test-agent"})
}

func TestFetchHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Equal(t, "no-cache", r.Header.Get("Cache-Control"))
		assert.Contains(t, r.Header.Get("Accept-Language"), "pt-BR")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><title>ok</title></html>"))
	}))
	defer srv.Close()

	page, err := newTestFetcher().FetchHTML(context.Background(), srv.URL+"/", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "<html><title>ok</title></html>", page.Body)
	assert.Equal(t, srv.URL+"/", page.FinalURL)
}

func TestFetchHTML_FollowsRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("moved"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	page, err := newTestFetcher().FetchHTML(context.Background(), srv.URL+"/old", time.Second)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/new", page.FinalURL)
	assert.Equal(t, srv.URL+"/old", page.URL)
}

func TestFetchHTML_DecodesCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		// "São Paulo" in Latin-1.
		_, _ = w.Write([]byte{'S', 0xe3, 'o', ' ', 'P', 'a', 'u', 'l', 'o'})
	}))
	defer srv.Close()

	page, err := newTestFetcher().FetchHTML(context.Background(), srv.URL, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "São Paulo", page.Body)
}

func TestFetchHTML_FailureCodes(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		code    string
	}{
		{
			name: "http status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusForbidden)
			},
			code: "HTTP_403",
		},
		{
			name: "not html",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte("{}"))
			},
			code: CodeNotHTML,
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			code: CodeTimeout,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := newTestFetcher().FetchHTML(context.Background(), srv.URL, 100*time.Millisecond)
			require.Error(t, err)
			assert.Equal(t, tt.code, CodeOf(err))
		})
	}
}

func TestFetchHTML_InvalidURL(t *testing.T) {
	f := newTestFetcher()
	for _, raw := range []string{"", "not a url", "ftp://example.com/file", "mailto:a@b.c"} {
		_, err := f.FetchHTML(context.Background(), raw, time.Second)
		assert.Equal(t, CodeInvalid, CodeOf(err), raw)
	}
}

func TestFetchHTML_Canceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := newTestFetcher().FetchHTML(ctx, srv.URL, 5*time.Second)
	assert.Equal(t, CodeCanceled, CodeOf(err))
}

func TestFetchHTML_TruncatesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(strings.Repeat("a", 100)))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{MaxBodyBytes: 10})
	page, err := f.FetchHTML(context.Background(), srv.URL, time.Second)
	require.NoError(t, err)
	assert.Len(t, page.Body, 10)
}

func TestFetchJSON(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=UTF-8")
		_, _ = w.Write([]byte(`[{"source_url":"https://x/a.jpg"}]`))
	})
	mux.HandleFunc("/html", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := newTestFetcher()
	data, err := f.FetchJSON(context.Background(), srv.URL+"/ok", time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"source_url":"https://x/a.jpg"}]`, string(data))

	_, err = f.FetchJSON(context.Background(), srv.URL+"/html", time.Second)
	assert.Equal(t, CodeNotJSON, CodeOf(err))

	_, err = f.FetchJSON(context.Background(), srv.URL+"/missing", time.Second)
	assert.Equal(t, "HTTP_404", CodeOf(err))
}

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		assert.Equal(t, "bytes=0-0", r.Header.Get("Range"))
		w.WriteHeader(http.StatusPartialContent)
	}))
	defer srv.Close()

	f := newTestFetcher()
	status, err := f.Status(context.Background(), http.MethodHead, srv.URL, nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, status)

	status, err = f.Status(context.Background(), http.MethodGet, srv.URL, http.Header{"Range": {"bytes=0-0"}}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, http.StatusPartialContent, status)
}

func TestHostLimiterSpacesRequests(t *testing.T) {
	var (
		mu    sync.Mutex
		times []time.Time
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		times = append(times, time.Now())
		mu.Unlock()
		w.Header().Set("Content-Type", "text/html")
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{Delay: 80 * time.Millisecond})
	for range 3 {
		_, err := f.FetchHTML(context.Background(), srv.URL, time.Second)
		require.NoError(t, err)
	}

	require.Len(t, times, 3)
	assert.GreaterOrEqual(t, times[2].Sub(times[0]), 150*time.Millisecond)
}

func TestObserver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html")
	}))
	defer srv.Close()

	var ok, failed atomic.Int32
	f := NewHTTPFetcher(HTTPOptions{Observer: func(_, code string, _ time.Duration) {
		if code == "OK" {
			ok.Add(1)
			return
		}
		assert.Equal(t, "HTTP_500", code)
		failed.Add(1)
	}})

	_, _ = f.FetchHTML(context.Background(), srv.URL+"/good", time.Second)
	_, _ = f.FetchHTML(context.Background(), srv.URL+"/bad", time.Second)
	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(1), failed.Load())
}
