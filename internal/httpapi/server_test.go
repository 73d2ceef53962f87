package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"soundpairs/internal/blob"
	"soundpairs/internal/protocol"
	"soundpairs/internal/records"
	"soundpairs/internal/sets"
	"soundpairs/internal/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	temp := t.TempDir()

	st, err := store.Open(filepath.Join(temp, "game.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	blobStore, err := blob.NewStore(filepath.Join(temp, "audio"), st)
	if err != nil {
		t.Fatalf("create blob store: %v", err)
	}

	api := New(st, blobStore)
	ts := httptest.NewServer(api.Echo())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestMessagesRoundTripAndSanitize(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/messages", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	doc := decodeBody[protocol.MessagesDoc](t, resp)
	if len(doc.Messages) != 0 {
		t.Fatalf("expected empty messages, got %v", doc.Messages)
	}

	put := protocol.MessagesDoc{Messages: []string{
		"  first  ",
		"",
		strings.Repeat("x", protocol.MaxMessageLen+1),
		"second",
	}}
	resp = doJSON(t, http.MethodPut, ts.URL+"/api/messages", put)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from put, got %d", resp.StatusCode)
	}
	putResp := decodeBody[messagesPutResponse](t, resp)
	if !putResp.OK || putResp.Count != 2 {
		t.Fatalf("expected ok with 2 kept, got %+v", putResp)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/messages", nil)
	doc = decodeBody[protocol.MessagesDoc](t, resp)
	if len(doc.Messages) != 2 || doc.Messages[0] != "first" || doc.Messages[1] != "second" {
		t.Fatalf("unexpected stored messages %v", doc.Messages)
	}
}

func TestRecordsDefaultDocument(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/records", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	doc := decodeBody[protocol.RecordsDoc](t, resp)
	for _, key := range []string{"0", "1", "2"} {
		b, ok := doc.Best[key]
		if !ok {
			t.Fatalf("missing set %s in default document", key)
		}
		if b.Time != nil || b.Attempts != nil {
			t.Fatalf("expected null record for set %s, got %+v", key, b)
		}
	}
	if doc.Names != sets.DefaultNames {
		t.Fatalf("expected default names, got %v", doc.Names)
	}
	if len(doc.Keys[0]) != 0 || len(doc.Keys[1]) != 0 {
		t.Fatalf("expected empty key lists, got %v", doc.Keys)
	}
}

func TestRecordsPutThenGet(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	bestTime, bestAttempts := 73, 24
	put := protocol.RecordsDoc{
		Best: map[string]records.Best{
			"0": {Time: &bestTime, Attempts: &bestAttempts},
		},
		Names: [2]string{"Animal Sounds", ""},
	}
	resp := doJSON(t, http.MethodPut, ts.URL+"/api/records", put)
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200 from put, got %d: %s", resp.StatusCode, raw)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/records", nil)
	doc := decodeBody[protocol.RecordsDoc](t, resp)
	b := doc.Best["0"]
	if b.Time == nil || *b.Time != 73 || b.Attempts == nil || *b.Attempts != 24 {
		t.Fatalf("unexpected tones record %+v", b)
	}
	if doc.Names[0] != "Animal Sounds" {
		t.Fatalf("expected saved name, got %q", doc.Names[0])
	}
	// The blank second name was never stored, so the default is served.
	if doc.Names[1] != sets.DefaultNames[1] {
		t.Fatalf("expected default second name, got %q", doc.Names[1])
	}
}

func TestRecordsPutBlankNamesKeepStored(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	put := protocol.RecordsDoc{Names: [2]string{"Bird Calls", "Drums"}}
	resp := doJSON(t, http.MethodPut, ts.URL+"/api/records", put)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from put, got %d", resp.StatusCode)
	}

	// A later document without names must not clobber them.
	bestTime := 50
	put = protocol.RecordsDoc{Best: map[string]records.Best{"0": {Time: &bestTime}}}
	resp = doJSON(t, http.MethodPut, ts.URL+"/api/records", put)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from partial put, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/records", nil)
	doc := decodeBody[protocol.RecordsDoc](t, resp)
	if doc.Names[0] != "Bird Calls" || doc.Names[1] != "Drums" {
		t.Fatalf("stored names clobbered by partial put: %v", doc.Names)
	}
	if b := doc.Best["0"]; b.Time == nil || *b.Time != 50 {
		t.Fatalf("expected record from partial put, got %+v", b)
	}
}

func TestRecordsPutRejectsBadSetID(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	put := protocol.RecordsDoc{Best: map[string]records.Best{"7": {}}}
	resp := doJSON(t, http.MethodPut, ts.URL+"/api/records", put)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestAudioUploadDownloadDelete(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	want := []byte("fake wav payload")

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/audio/set1-0", bytes.NewReader(want))
	if err != nil {
		t.Fatalf("new upload request: %v", err)
	}
	req.Header.Set("Content-Type", "audio/wav")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 201 from upload, got %d: %s", resp.StatusCode, raw)
	}
	uploaded := decodeBody[audioPutResponse](t, resp)
	if uploaded.Name != "set1-0" || uploaded.SizeBytes != int64(len(want)) {
		t.Fatalf("unexpected upload response %+v", uploaded)
	}

	resp, err = http.Get(ts.URL + "/api/audio/set1-0")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from download, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Cache-Control"); got != audioCacheControl {
		t.Fatalf("expected immutable cache header, got %q", got)
	}
	if got := resp.Header.Get("Content-Type"); got != "audio/wav" {
		t.Fatalf("expected audio/wav, got %q", got)
	}
	got, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read download body: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("downloaded bytes mismatch: got %q want %q", got, want)
	}

	delReq, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/audio/set1-0", nil)
	if err != nil {
		t.Fatalf("new delete request: %v", err)
	}
	delResp, err := http.DefaultClient.Do(delReq)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from delete, got %d", delResp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/api/audio/set1-0")
	if err != nil {
		t.Fatalf("download after delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestAudioDeleteMissingIs404(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/audio/never-there", nil)
	if err != nil {
		t.Fatalf("new delete request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestAudioListAndDerivedKeys(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	for _, name := range []string{"set1-0", "set1-1", "set2-0"} {
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/audio/"+name, strings.NewReader("payload"))
		if err != nil {
			t.Fatalf("new upload request: %v", err)
		}
		req.Header.Set("Content-Type", "audio/wav")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("upload %s: %v", name, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("upload %s: expected 201, got %d", name, resp.StatusCode)
		}
	}

	resp, err := http.Get(ts.URL + "/api/audio?list=1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	list := decodeBody[audioListResponse](t, resp)
	if len(list.Keys) != 3 {
		t.Fatalf("expected 3 keys, got %v", list.Keys)
	}

	// Without list=1 the collection endpoint is a bad request.
	resp, err = http.Get(ts.URL + "/api/audio")
	if err != nil {
		t.Fatalf("bare list: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without list=1, got %d", resp.StatusCode)
	}

	// The records document partitions keys by slot prefix.
	resp = doJSON(t, http.MethodGet, ts.URL+"/api/records", nil)
	doc := decodeBody[protocol.RecordsDoc](t, resp)
	if len(doc.Keys[0]) != 2 || doc.Keys[0][0] != "set1-0" || doc.Keys[0][1] != "set1-1" {
		t.Fatalf("unexpected slot 1 keys %v", doc.Keys[0])
	}
	if len(doc.Keys[1]) != 1 || doc.Keys[1][0] != "set2-0" {
		t.Fatalf("unexpected slot 2 keys %v", doc.Keys[1])
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	got := decodeBody[healthResponse](t, resp)
	if got.Status != "ok" {
		t.Fatalf("expected ok, got %+v", got)
	}
}
