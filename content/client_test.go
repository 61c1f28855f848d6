package content

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

const searchBody = `[
  {"repo": {"url": "https://github.com/acme/widgets", "full_name": "acme/widgets", "name": "widgets", "owner": "acme", "stars": 42},
   "summary": {"repo_id": 1, "summary": "Widgets for everyone.", "tags": ["ui"], "category": "frontend"}},
  {"repo": {"url": "https://github.com/acme/gadgets", "full_name": "acme/gadgets", "name": "gadgets", "owner": "acme"}}
]`

func TestSearch_QueryAndDecode(t *testing.T) {
	var gotPath, gotQ, gotLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQ = r.URL.Query().Get("q")
		gotLimit = r.URL.Query().Get("limit")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(searchBody))
	}))
	defer srv.Close()

	c := New(StaticBase(srv.URL + "/"))
	res, err := c.Search(context.Background(), "acme/widgets", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if gotPath != "/search" || gotQ != "acme/widgets" || gotLimit != "5" {
		t.Errorf("request: path=%q q=%q limit=%q", gotPath, gotQ, gotLimit)
	}
	if len(res) != 2 {
		t.Fatalf("results: got %d, want 2", len(res))
	}
	if res[0].Repo.FullName != "acme/widgets" || res[0].Summary == nil || res[0].Summary.Category != "frontend" {
		t.Errorf("result[0]: %+v", res[0])
	}
	if res[1].Summary != nil {
		t.Errorf("result[1].Summary: got %+v, want nil", res[1].Summary)
	}
}

func TestSearch_EmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	res, err := New(StaticBase(srv.URL)).Search(context.Background(), "nothing/here", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 0 {
		t.Errorf("results: got %d, want 0", len(res))
	}
}

func TestSearch_ErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{"status", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}, ErrStatus},
		{"parse", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"detail": "not a list"`))
		}, ErrParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := New(StaticBase(srv.URL)).Search(context.Background(), "x", 5)
			if !errors.Is(err, tt.want) {
				t.Errorf("error: got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSearch_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	_, err := New(StaticBase(base)).Search(context.Background(), "acme/widgets", 5)
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("error: got %v, want ErrNetwork", err)
	}
}

func TestClient_BaseURLResolvedPerCall(t *testing.T) {
	srvA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"total_repos": 1, "total_boards": 2, "total_categories": 3}`))
	}))
	defer srvA.Close()
	srvB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"total_repos": 10, "total_boards": 20, "total_categories": 30}`))
	}))
	defer srvB.Close()

	src := &switchBase{url: srvA.URL}
	c := New(src)

	st, err := c.Stats(context.Background())
	if err != nil || st.TotalRepos != 1 {
		t.Fatalf("Stats A: %+v, %v", st, err)
	}
	src.url = srvB.URL
	st, err = c.Stats(context.Background())
	if err != nil || st.TotalRepos != 10 {
		t.Fatalf("Stats B: %+v, %v", st, err)
	}
}

type switchBase struct{ url string }

func (s *switchBase) BaseURL() string { return s.url }

func TestBoardsAndRepo(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/boards", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "10" {
			t.Errorf("boards limit: got %q", r.URL.Query().Get("limit"))
		}
		w.Write([]byte(`[{"id": 7, "name": "Rust CLIs", "description": "Terminal tools", "repo_count": 12}]`))
	})
	mux.HandleFunc("/boards/7", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"board": {"id": 7, "name": "Rust CLIs", "description": "d", "repo_count": 1},
			"repos": [{"repo": {"url": "https://github.com/a/b", "full_name": "a/b", "name": "b", "owner": "a"}}]}`))
	})
	mux.HandleFunc("/repos/3", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"repo": {"id": 3, "url": "https://github.com/c/d", "full_name": "c/d", "name": "d", "owner": "c",
			"created_at": "2024-03-01T10:00:00"}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(StaticBase(srv.URL))
	ctx := context.Background()

	boards, err := c.Boards(ctx, 10)
	if err != nil || len(boards) != 1 || boards[0].RepoCount != 12 {
		t.Fatalf("Boards: %+v, %v", boards, err)
	}
	b, err := c.Board(ctx, 7)
	if err != nil || len(b.Repos) != 1 || b.Repos[0].Repo.FullName != "a/b" {
		t.Fatalf("Board: %+v, %v", b, err)
	}
	r, err := c.Repo(ctx, 3)
	if err != nil || r.Repo.ID != 3 {
		t.Fatalf("Repo: %+v, %v", r, err)
	}
	if _, err := c.Board(ctx, 99); !errors.Is(err, ErrStatus) {
		t.Errorf("missing board: got %v, want ErrStatus", err)
	}
}
