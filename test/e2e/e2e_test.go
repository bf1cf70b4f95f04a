package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/assethub/internal/assets"
	"github.com/hyperjump/assethub/internal/config"
	"github.com/hyperjump/assethub/internal/embedding"
	"github.com/hyperjump/assethub/internal/ingest"
	"github.com/hyperjump/assethub/internal/keyword"
	"github.com/hyperjump/assethub/internal/models"
	"github.com/hyperjump/assethub/internal/objectstore"
	"github.com/hyperjump/assethub/internal/queue"
	"github.com/hyperjump/assethub/internal/search"
	"github.com/hyperjump/assethub/internal/server"
	"github.com/hyperjump/assethub/internal/storage"
	"github.com/hyperjump/assethub/internal/vector"
	"github.com/hyperjump/assethub/internal/worker"
)

const e2eDimensions = 16

func startStack(t *testing.T) *httptest.Server {
	t.Helper()
	catalog, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	names, err := keyword.NewBleveIndex(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	index, err := vector.NewMemoryIndex(e2eDimensions)
	if err != nil {
		t.Fatal(err)
	}
	blobs := objectstore.NewMemoryStore("http://blobs.test")
	q := queue.NewMemoryQueue()
	embedder := embedding.NewCachedEmbedder(embedding.NewMockEmbedder(e2eDimensions), 64)
	buckets := objectstore.Buckets{Assets: "assets", Thumbnails: "thumbnails", Frames: "frames"}
	logger := zap.NewNop()

	gate := ingest.NewGate(catalog, blobs, q, buckets, ingest.WithNameIndex(names), ingest.WithLogger(logger))
	svc := assets.NewService(catalog, blobs, index, q, buckets, assets.WithNameIndex(names))
	proc := search.NewProcessor(catalog, blobs, embedder, index, buckets, config.SearchConfig{})
	pool := worker.New(worker.Deps{
		Catalog: catalog, Blobs: blobs, Embedder: embedder, Index: index,
		Queue: q, Buckets: buckets,
	}, worker.Options{Workers: 2, PollTimeout: 20 * time.Millisecond}, worker.WithLogger(logger))

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	srv := server.NewServer(gate, svc, proc, &config.ServerConfig{MaxUploadSize: 1 << 20}, logger)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		cancel()
		pool.Stop()
		_ = q.Close()
		_ = names.Close()
		_ = catalog.Close()
	})
	return ts
}

func multipartFile(t *testing.T, filename string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write(data)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	_ = mw.Close()
	return &buf, mw.FormDataContentType()
}

func doJSON(t *testing.T, req *http.Request, want int, out interface{}) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		var body map[string]interface{}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		t.Fatalf("%s %s: status %d, want %d (%v)", req.Method, req.URL.Path, resp.StatusCode, want, body)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatal(err)
		}
	}
}

func waitCompleted(t *testing.T, base string, ids []string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for _, id := range ids {
		for {
			req, _ := http.NewRequest(http.MethodGet, base+"/api/v1/assets/"+id, nil)
			var detail models.MediaAsset
			doJSON(t, req, http.StatusOK, &detail)
			if detail.VectorStatus == models.StatusCompleted {
				break
			}
			if detail.VectorStatus == models.StatusFailed || time.Now().After(deadline) {
				t.Fatalf("asset %s stuck in %s", id, detail.VectorStatus)
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestE2E_UploadVectorizeSearchDelete(t *testing.T) {
	ts := startStack(t)
	corpus, err := BuildCorpus()
	if err != nil {
		t.Fatal(err)
	}

	ids := make([]string, len(corpus))
	for i, f := range corpus {
		body, ct := multipartFile(t, f.Name, f.Data, nil)
		req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/assets/upload", body)
		req.Header.Set("Content-Type", ct)
		var asset models.MediaAsset
		doJSON(t, req, http.StatusCreated, &asset)
		ids[i] = asset.ID
	}

	// Same bytes again are rejected.
	body, ct := multipartFile(t, "again.png", corpus[0].Data, nil)
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/assets/upload", body)
	req.Header.Set("Content-Type", ct)
	doJSON(t, req, http.StatusConflict, nil)

	waitCompleted(t, ts.URL, ids)

	for i, f := range corpus {
		body, ct := multipartFile(t, "query.png", f.Data, map[string]string{"top_k": "3"})
		req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/search/image", body)
		req.Header.Set("Content-Type", ct)
		var resp models.SearchResponse
		doJSON(t, req, http.StatusOK, &resp)
		if len(resp.Results) != 3 {
			t.Fatalf("query %d: %d results, want 3", i, len(resp.Results))
		}
		if resp.Results[0].AssetID != ids[i] {
			t.Errorf("query %d: top result %s, want %s", i, resp.Results[0].AssetID, ids[i])
		}
	}

	req, _ = http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/assets/"+ids[0], nil)
	doJSON(t, req, http.StatusOK, nil)

	body, ct = multipartFile(t, "query.png", corpus[0].Data, map[string]string{"top_k": "10"})
	req, _ = http.NewRequest(http.MethodPost, ts.URL+"/api/v1/search/image", body)
	req.Header.Set("Content-Type", ct)
	var after models.SearchResponse
	doJSON(t, req, http.StatusOK, &after)
	for _, r := range after.Results {
		if r.AssetID == ids[0] {
			t.Errorf("deleted asset %s still returned", ids[0])
		}
	}
	if len(after.Results) != len(corpus)-1 {
		t.Errorf("results after delete = %d, want %d", len(after.Results), len(corpus)-1)
	}
}

func TestE2E_TextSearchAndNameListing(t *testing.T) {
	ts := startStack(t)
	corpus, err := BuildCorpus()
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for i, f := range corpus[:3] {
		body, ct := multipartFile(t, f.Name, f.Data, map[string]string{"name": fmt.Sprintf("swatch %d", i)})
		req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/assets/upload", body)
		req.Header.Set("Content-Type", ct)
		var asset models.MediaAsset
		doJSON(t, req, http.StatusCreated, &asset)
		ids = append(ids, asset.ID)
	}
	waitCompleted(t, ts.URL, ids)

	payload, _ := json.Marshal(map[string]interface{}{"query": "a bright swatch", "top_k": 2})
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/search/text", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	var resp models.SearchResponse
	doJSON(t, req, http.StatusOK, &resp)
	if len(resp.Results) != 2 || resp.Query != "a bright swatch" {
		t.Errorf("text search = %+v", resp)
	}

	req, _ = http.NewRequest(http.MethodGet, ts.URL+"/api/v1/assets?q=swatch&status=completed", nil)
	var list struct {
		Assets []*models.MediaAsset `json:"assets"`
		Total  int                  `json:"total"`
	}
	doJSON(t, req, http.StatusOK, &list)
	if list.Total != 3 {
		t.Errorf("name listing total = %d, want 3", list.Total)
	}
}
