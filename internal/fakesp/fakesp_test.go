package fakesp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const createBody = `{"data":{"attributes":{"request_type":"generate_dns_filter_list","details":{"zone":"example.com"}}}}`

type statusDoc struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Completed bool            `json:"completed"`
			Error     string          `json:"error"`
			Result    json.RawMessage `json:"result"`
		} `json:"attributes"`
	} `json:"data"`
}

func create(t *testing.T, h http.Handler, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, DefaultCollection, strings.NewReader(createBody))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func status(t *testing.T, h http.Handler, id string) statusDoc {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, DefaultCollection+id, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}
	var doc statusDoc
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	return doc
}

func TestServer_ScriptRepeatsLastStep(t *testing.T) {
	s := New(WithIDs("7"), WithSteps(Pending(), Done([]string{"a"})))

	rec := create(t, s, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create code = %d, want 201", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"id":"7"`) {
		t.Errorf("create body = %s, want id 7", rec.Body.String())
	}

	if doc := status(t, s, "7"); doc.Data.Attributes.Completed {
		t.Error("first poll should be pending")
	}
	for i := 0; i < 3; i++ {
		doc := status(t, s, "7")
		if !doc.Data.Attributes.Completed || string(doc.Data.Attributes.Result) != `["a"]` {
			t.Errorf("poll %d = %+v, want completed with [\"a\"]", i+2, doc.Data.Attributes)
		}
	}

	if got := s.Polls("7"); got != 4 {
		t.Errorf("Polls() = %d, want 4", got)
	}
	creates := s.Creates()
	if len(creates) != 1 || creates[0].Details["zone"] != "example.com" {
		t.Errorf("Creates() = %+v", creates)
	}
}

func TestServer_Token(t *testing.T) {
	s := New(WithToken(DefaultTokenHeader, "secret"))

	if rec := create(t, s, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("create without token code = %d, want 401", rec.Code)
	}

	header := http.Header{}
	header.Set(DefaultTokenHeader, "secret")
	if rec := create(t, s, header); rec.Code != http.StatusCreated {
		t.Errorf("create with token code = %d, want 201", rec.Code)
	}
}

func TestServer_NotFound(t *testing.T) {
	s := New()

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, DefaultCollection+"missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown job code = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/elsewhere/", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("outside collection code = %d, want 404", rec.Code)
	}
}

func TestServer_CreateResponse(t *testing.T) {
	s := New(WithCreateResponse(http.StatusOK, `{"data":{}}`))

	rec := create(t, s, nil)
	if rec.Code != http.StatusOK || rec.Body.String() != `{"data":{}}` {
		t.Errorf("create = %d %s, want scripted response", rec.Code, rec.Body.String())
	}
	if len(s.Creates()) != 1 {
		t.Errorf("len(Creates()) = %d, want 1", len(s.Creates()))
	}
}
