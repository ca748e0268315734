package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bastiangx/pickserve/internal/session"
	"github.com/bastiangx/pickserve/pkg/autocomplete"
	"github.com/bastiangx/pickserve/pkg/catalog"
	"github.com/bastiangx/pickserve/pkg/config"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	cat := catalog.New()
	cat.Add("suppliers",
		autocomplete.Candidate{ID: "S1", Label: "Nile Pharma", Meta: map[string]string{"phone": "0100"}},
		autocomplete.Candidate{ID: "S2", Label: "Delta Medical"},
		autocomplete.Candidate{ID: "S3", Label: "Sinai Pharma"},
	)
	cat.SetFill("suppliers", catalog.FillRule{{Meta: "phone", Field: "supplierPhone"}})

	s := New(session.NewResolver(cat, true), config.DefaultConfig(), "test")
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestHealthAndLists(t *testing.T) {
	_, ts := newTestServer(t)

	var health map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/healthz", &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "test", health["version"])

	var lists struct {
		Lists []session.ListInfo `json:"lists"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/lists", &lists))
	assert.Equal(t, []session.ListInfo{{Name: "suppliers", Count: 3}}, lists.Lists)
}

func TestSuggest(t *testing.T) {
	_, ts := newTestServer(t)

	tests := []struct {
		name   string
		query  string
		status int
		want   []string
	}{
		{"Contains", "list=suppliers&q=pharma", http.StatusOK, []string{"Nile Pharma", "Sinai Pharma"}},
		{"Max", "list=suppliers&q=pharma&max=1", http.StatusOK, []string{"Nile Pharma"}},
		{"StartsWith", "list=suppliers&q=s&mode=startsWith", http.StatusOK, []string{"Sinai Pharma"}},
		{"Exact", "list=suppliers&q=DELTA%20MEDICAL&mode=exact", http.StatusOK, []string{"Delta Medical"}},
		{"BelowMin", "list=suppliers&q=ph&min=3", http.StatusOK, []string{}},
		{"EmptyQueryMinZero", "list=suppliers&min=0&max=2", http.StatusOK, []string{"Nile Pharma", "Delta Medical"}},
		{"NoMatch", "list=suppliers&q=zzz", http.StatusOK, []string{}},
		{"UnknownList", "list=departments&q=a", http.StatusNotFound, nil},
		{"MissingList", "q=a", http.StatusBadRequest, nil},
		{"BadMax", "list=suppliers&q=a&max=ten", http.StatusBadRequest, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var body SuggestResponse
			status := getJSON(t, ts.URL+"/api/suggest?"+tc.query, &body)
			require.Equal(t, tc.status, status)
			if tc.want != nil {
				assert.Equal(t, tc.want, autocomplete.Labels(body.Items))
				assert.Equal(t, len(tc.want), body.Count)
			}
		})
	}
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, typ string) []session.Frame {
	t.Helper()
	var seen []session.Frame
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var f session.Frame
		require.NoError(t, conn.ReadJSON(&f))
		seen = append(seen, f)
		if f.Type == typ {
			return seen
		}
	}
}

func TestWebsocketSession(t *testing.T) {
	s, ts := newTestServer(t)
	conn := dial(t, ts)

	send := func(req session.Request) {
		require.NoError(t, conn.WriteJSON(req))
	}

	send(session.Request{ID: "1", Op: session.OpBind, Field: "supplier", List: "suppliers"})
	readUntil(t, conn, session.FrameAck)

	send(session.Request{Op: session.OpInput, Field: "supplier", Value: "pharma"})
	frames := readUntil(t, conn, session.FrameShow)
	assert.Equal(t, []string{"Nile Pharma", "Sinai Pharma"}, autocomplete.Labels(frames[len(frames)-1].Items))

	send(session.Request{Op: session.OpKey, Field: "supplier", Key: autocomplete.KeyArrowDown})
	send(session.Request{Op: session.OpKey, Field: "supplier", Key: autocomplete.KeyEnter})
	readUntil(t, conn, session.FrameKey)
	frames = readUntil(t, conn, session.FrameKey)

	var values []string
	for _, f := range frames {
		if f.Type == session.FrameValue {
			values = append(values, f.Field+"="+f.Value)
		}
	}
	assert.Equal(t, []string{"supplier=Nile Pharma", "supplierPhone=0100"}, values)
	assert.True(t, frames[len(frames)-1].Prevented)

	s.mu.Lock()
	n := len(s.clients)
	s.mu.Unlock()
	assert.Equal(t, 1, n)

	conn.Close()
	assert.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.clients) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebsocketRejectsLongQuery(t *testing.T) {
	s, ts := newTestServer(t)
	s.cfg.Server.MaxQueryLen = 5
	conn := dial(t, ts)

	require.NoError(t, conn.WriteJSON(session.Request{ID: "1", Op: session.OpBind, Field: "supplier", List: "suppliers"}))
	readUntil(t, conn, session.FrameAck)

	require.NoError(t, conn.WriteJSON(session.Request{ID: "long", Op: session.OpInput, Field: "supplier", Value: "pharmacy"}))
	frames := readUntil(t, conn, session.FrameError)
	require.Len(t, frames, 1)
	assert.Equal(t, "long", frames[0].ID)
	assert.Contains(t, frames[0].Error, "maximum length of 5")

	require.NoError(t, conn.WriteJSON(session.Request{Op: session.OpInput, Field: "supplier", Value: "nile"}))
	frames = readUntil(t, conn, session.FrameShow)
	assert.Equal(t, []string{"Nile Pharma"}, autocomplete.Labels(frames[len(frames)-1].Items))
}
