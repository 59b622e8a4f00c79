package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seenRequest struct {
	method, path, query, auth, contentType string
	body                                   []byte
}

func fakeAPI(t *testing.T, status int, reply string) (*httptest.Server, *seenRequest) {
	t.Helper()
	seen := &seenRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.method, seen.path, seen.query = r.Method, r.URL.Path, r.URL.RawQuery
		seen.auth, seen.contentType = r.Header.Get("Authorization"), r.Header.Get("Content-Type")
		seen.body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

func run(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--server", srv.URL, "--token", "tok"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestPrefsList(t *testing.T) {
	srv, seen := fakeAPI(t, http.StatusOK, `[{"id":7,"category":"food","preference_type":"dislike","value":"cilantro"}]`)

	out, err := run(t, srv, "prefs", "list", "--category", "food")
	require.NoError(t, err)
	assert.Equal(t, "7\tfood\tdislike\tcilantro\n", out)
	assert.Equal(t, http.MethodGet, seen.method)
	assert.Equal(t, "/preferences/", seen.path)
	assert.Equal(t, "category=food", seen.query)
	assert.Equal(t, "Bearer tok", seen.auth)
}

func TestPrefsAdd(t *testing.T) {
	srv, seen := fakeAPI(t, http.StatusOK, `{"id":3,"category":"food","preference_type":"allergy","value":"peanuts"}`)

	out, err := run(t, srv, "prefs", "add", "peanuts", "--type", "allergy")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved preference 3: allergy peanuts (food)")

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(seen.body, &body))
	assert.Equal(t, "peanuts", body["value"])
	assert.Equal(t, "allergy", body["preference_type"])
	assert.Equal(t, "food", body["category"])
}

func TestPrefsDelete_InvalidID(t *testing.T) {
	srv, _ := fakeAPI(t, http.StatusNoContent, "")
	_, err := run(t, srv, "prefs", "delete", "abc")
	assert.Error(t, err)

	out, err := run(t, srv, "prefs", "delete", "12")
	require.NoError(t, err)
	assert.Equal(t, "Deleted preference 12\n", out)
}

func TestRecommend(t *testing.T) {
	srv, seen := fakeAPI(t, http.StatusOK, `{"recommendations":[{"item":"ramen","score":0.8,"reason":"You like ramen."}]}`)

	out, err := run(t, srv, "recommend", "ramen", "satay", "--top-k", "1")
	require.NoError(t, err)
	assert.Equal(t, "1. ramen (0.80) You like ramen.\n", out)

	var body struct {
		Candidates []string `json:"candidates"`
		TopK       int      `json:"top_k"`
	}
	require.NoError(t, json.Unmarshal(seen.body, &body))
	assert.Equal(t, []string{"ramen", "satay"}, body.Candidates)
	assert.Equal(t, 1, body.TopK)
}

func TestVoiceAnalyze_UploadsMultipart(t *testing.T) {
	srv, seen := fakeAPI(t, http.StatusOK, `{"message":"Saved 1 preference."}`)
	path := filepath.Join(t.TempDir(), "note.webm")
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0o600))

	out, err := run(t, srv, "voice", "analyze", path, "--llm=false")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved 1 preference.")
	assert.Equal(t, "/voice/analyze", seen.path)
	assert.Contains(t, seen.contentType, "multipart/form-data")
	assert.Contains(t, string(seen.body), `name="use_gemini"`)
	assert.Contains(t, string(seen.body), `filename="note.webm"`)
}

func TestAPIErrorIsReturned(t *testing.T) {
	srv, _ := fakeAPI(t, http.StatusUnauthorized, `{"error":"invalid token"}`)
	_, err := run(t, srv, "prefs", "export")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestMissingToken(t *testing.T) {
	t.Setenv("FOODIETRACK_TOKEN", "")
	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetArgs([]string{"prefs", "list"})
	assert.ErrorContains(t, root.Execute(), "missing token")
}
