package chatform

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func postJSON(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestChatHandler_SingleShot(t *testing.T) {
	o, err := New(Config{Func: echoFunc})
	require.NoError(t, err)
	t.Cleanup(o.Close)

	rec := postJSON(t, NewChatHTTPHandler(o), `{"message":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatResponseBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, strptr("hi"), resp.Response)
	require.Equal(t, []Turn{{User: "hi", Bot: strptr("hi")}}, resp.History)
}

func TestChatHandler_StreamingReturnsFinalElement(t *testing.T) {
	o, err := New(Config{Stream: sliceStream("h", "hi")})
	require.NoError(t, err)
	t.Cleanup(o.Close)

	rec := postJSON(t, NewChatHTTPHandler(o), `{"message":"x","history":[{"user":"earlier","bot":"reply"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatResponseBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, strptr("hi"), resp.Response)
	require.Equal(t, []Turn{
		{User: "earlier", Bot: strptr("reply")},
		{User: "x", Bot: strptr("hi")},
	}, resp.History)
}

func TestChatHandler_Validation(t *testing.T) {
	o, err := New(Config{Func: echoFunc})
	require.NoError(t, err)
	t.Cleanup(o.Close)
	handler := NewChatHTTPHandler(o)

	rec := postJSON(t, handler, `{"message":""}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, handler, `not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	handler(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestEventHandler_AcceptsAndEchoesKey(t *testing.T) {
	o, err := New(Config{Func: echoFunc})
	require.NoError(t, err)
	t.Cleanup(o.Close)

	rec := postJSON(t, NewEventHTTPHandler(o), `{"session_id":"s1","trigger":"textbox.submit","text":"hi","idempotency_key":"k-1"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "s1", resp["session_id"])
	require.Equal(t, "k-1", resp["idempotency_key"])

	require.Eventually(t, func() bool {
		sess, ok := o.Sessions().Get("s1")
		return ok && len(sess.History()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestEventHandler_Validation(t *testing.T) {
	o, err := New(Config{Func: echoFunc})
	require.NoError(t, err)
	t.Cleanup(o.Close)
	handler := NewEventHTTPHandler(o)

	rec := postJSON(t, handler, `{"session_id":"s1"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, handler, `{"trigger":"textbox.submit"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, handler, `{"session_id":"s1","trigger":"unknown.click"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryHandler(t *testing.T) {
	o, err := New(Config{Func: echoFunc})
	require.NoError(t, err)
	t.Cleanup(o.Close)
	handler := NewHistoryHTTPHandler(o)

	sess := o.Sessions().GetOrCreate("s1")
	sess.setHistory([]Turn{{User: "hi", Bot: strptr("hi")}})

	req := httptest.NewRequest(http.MethodGet, "/?session_id=s1", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		SessionID string `json:"session_id"`
		History   []Turn `json:"history"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "s1", resp.SessionID)
	require.Equal(t, []Turn{{User: "hi", Bot: strptr("hi")}}, resp.History)

	req = httptest.NewRequest(http.MethodGet, "/?session_id=absent", nil)
	rec = httptest.NewRecorder()
	handler(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	handler(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExamplesHandler(t *testing.T) {
	o, err := New(Config{Func: echoFunc, Examples: []string{"hello"}})
	require.NoError(t, err)
	t.Cleanup(o.Close)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	NewExamplesHTTPHandler(o)(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Examples []ExampleRow `json:"examples"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, []ExampleRow{{Input: "hello"}}, resp.Examples)
}

func TestExamplesHandler_NotConfigured(t *testing.T) {
	o, err := New(Config{Func: echoFunc})
	require.NoError(t, err)
	t.Cleanup(o.Close)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	NewExamplesHTTPHandler(o)(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestComponentsHandler(t *testing.T) {
	o, err := New(Config{Func: echoFunc, Title: "Echo"})
	require.NoError(t, err)
	t.Cleanup(o.Close)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	NewComponentsHTTPHandler(o)(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Components []Component `json:"components"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Components)
	require.Equal(t, "title", resp.Components[0].ID)
}

func TestRouter_MountsAPIEndpoints(t *testing.T) {
	o, err := New(Config{Func: echoFunc, Examples: []string{"hello"}})
	require.NoError(t, err)
	t.Cleanup(o.Close)

	srv := httptest.NewServer(NewRouter(o))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/api/components")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/examples")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader(`{"message":"hi"}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
