package redisource

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bastiangx/pickserve/pkg/autocomplete"
	"github.com/bastiangx/pickserve/pkg/catalog"
	"github.com/cenkalti/backoff/v4"
	"github.com/garyburd/redigo/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type suggestion struct {
	term, payload string
}

// memRedis implements the handful of commands the client uses. Like
// RediSearch, the suggestion dictionary keeps one entry per string and
// FT.SUGGET does not answer in insertion order.
type memRedis struct {
	mu       sync.Mutex
	sugs     map[string][]suggestion
	hashes   map[string]map[string][]byte
	failures int
	calls    []string
}

func newClient(db *memRedis, prefix string) *Client {
	c := NewWithPool(db, prefix)
	c.backoff = func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 4)
	}
	return c
}

func newMemRedis() *memRedis {
	return &memRedis{sugs: map[string][]suggestion{}, hashes: map[string]map[string][]byte{}}
}

func (m *memRedis) Get() redis.Conn { return &memConn{db: m} }

func str(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

func (m *memRedis) exec(cmd string, args ...any) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, cmd)

	switch cmd {
	case "PING":
		return "PONG", nil
	case "DEL":
		for _, k := range args {
			delete(m.sugs, str(k))
			delete(m.hashes, str(k))
		}
		return int64(len(args)), nil
	case "HSET":
		key := str(args[0])
		if m.hashes[key] == nil {
			m.hashes[key] = map[string][]byte{}
		}
		m.hashes[key][str(args[1])] = args[2].([]byte)
		return int64(1), nil
	case "HMGET":
		h := m.hashes[str(args[0])]
		out := make([]any, 0, len(args)-1)
		for _, f := range args[1:] {
			if v, ok := h[str(f)]; ok {
				out = append(out, v)
			} else {
				out = append(out, nil)
			}
		}
		return out, nil
	case "HGETALL":
		var out []any
		for k, v := range m.hashes[str(args[0])] {
			out = append(out, []byte(k), v)
		}
		return out, nil
	case "FT.SUGADD":
		key := str(args[0])
		entry := suggestion{term: str(args[1]), payload: str(args[4])}
		for i, s := range m.sugs[key] {
			if s.term == entry.term {
				m.sugs[key][i] = entry
				return int64(len(m.sugs[key])), nil
			}
		}
		m.sugs[key] = append(m.sugs[key], entry)
		return int64(len(m.sugs[key])), nil
	case "FT.SUGLEN":
		return int64(len(m.sugs[str(args[0])])), nil
	case "FT.SUGGET":
		limit, _ := strconv.Atoi(str(args[3]))
		sugs := m.sugs[str(args[0])]
		var out []any
		for i := len(sugs) - 1; i >= 0; i-- {
			s := sugs[i]
			if len(out)/2 >= limit {
				break
			}
			if strings.HasPrefix(s.term, str(args[1])) {
				out = append(out, []byte(s.term), []byte(s.payload))
			}
		}
		if out == nil {
			return nil, nil
		}
		return out, nil
	}
	return nil, redis.Error("ERR unknown command " + cmd)
}

type memConn struct {
	db      *memRedis
	pending []func() (any, error)
	replies []func() (any, error)
}

func (c *memConn) Close() error { return nil }
func (c *memConn) Err() error   { return nil }

func (c *memConn) Do(cmd string, args ...any) (any, error) {
	return c.db.exec(cmd, args...)
}

func (c *memConn) Send(cmd string, args ...any) error {
	c.pending = append(c.pending, func() (any, error) { return c.db.exec(cmd, args...) })
	return nil
}

func (c *memConn) Flush() error {
	c.db.mu.Lock()
	fail := c.db.failures > 0
	if fail {
		c.db.failures--
	}
	c.db.mu.Unlock()
	if fail {
		c.pending = nil
		return errors.New("connection reset")
	}
	c.replies = append(c.replies, c.pending...)
	c.pending = nil
	return nil
}

func (c *memConn) Receive() (any, error) {
	if len(c.replies) == 0 {
		return nil, errors.New("no pending reply")
	}
	next := c.replies[0]
	c.replies = c.replies[1:]
	return next()
}

var pharmacy = []autocomplete.Candidate{
	{ID: "1", Label: "Gauze Roll", Meta: map[string]string{"unit": "roll"}},
	{ID: "2", Label: "Surgical Gloves"},
	{ID: "3", Label: "Gauze Pad"},
	{ID: "4", Label: "Syringe 5ml"},
}

func TestSyncAndLookup(t *testing.T) {
	db := newMemRedis()
	c := newClient(db, "test:")
	ctx := context.Background()
	require.NoError(t, c.Sync(ctx, "items", pharmacy))

	tests := []struct {
		query string
		want  []string
	}{
		{"gauze", []string{"Gauze Roll", "Gauze Pad"}},
		{"  PAD ", []string{"Gauze Pad"}},
		{"s", []string{"Surgical Gloves", "Syringe 5ml"}},
		{"e", []string{"Gauze Roll", "Surgical Gloves", "Gauze Pad", "Syringe 5ml"}},
		{"ml", []string{"Syringe 5ml"}},
		{"zzz", nil},
		{"", []string{"Gauze Roll", "Surgical Gloves", "Gauze Pad", "Syringe 5ml"}},
	}
	src := c.Source("items")
	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			got, err := src.Lookup(ctx, tc.query)
			require.NoError(t, err)
			if tc.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tc.want, autocomplete.Labels(got))
		})
	}

	got, err := src.Lookup(ctx, "roll")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, pharmacy[0], got[0])
}

func TestSharedSuffixesAndDuplicates(t *testing.T) {
	db := newMemRedis()
	c := newClient(db, "")
	ctx := context.Background()
	require.NoError(t, c.Sync(ctx, "suppliers", autocomplete.Texts("Alpha Pharma", "Beta Pharma", "Gamma Supplies")))
	require.NoError(t, c.Sync(ctx, "dupes", autocomplete.Texts("X", "Y", "X")))

	got, err := c.Source("suppliers").Lookup(ctx, "pharma")
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha Pharma", "Beta Pharma"}, autocomplete.Labels(got))

	got, err = c.Source("dupes").Lookup(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"X", "X"}, autocomplete.Labels(got))
}

func TestLookupReturnsEveryMatchInListOrder(t *testing.T) {
	db := newMemRedis()
	c := newClient(db, "")
	ctx := context.Background()

	labels := make([]string, 300)
	for i := range labels {
		labels[i] = fmt.Sprintf("Item %03d", i)
	}
	require.NoError(t, c.Sync(ctx, "items", autocomplete.Texts(labels...)))

	got, err := c.Source("items").Lookup(ctx, "i")
	require.NoError(t, err)
	assert.Equal(t, labels, autocomplete.Labels(got))
}

func TestSyncReplacesList(t *testing.T) {
	db := newMemRedis()
	c := newClient(db, "")
	ctx := context.Background()
	require.NoError(t, c.Sync(ctx, "items", pharmacy))
	require.NoError(t, c.Sync(ctx, "items", autocomplete.Texts("Bandage")))

	got, err := c.Source("items").Lookup(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Bandage"}, autocomplete.Labels(got))
}

func TestSyncRetriesConnectionErrors(t *testing.T) {
	db := newMemRedis()
	db.failures = 2
	c := newClient(db, "")
	require.NoError(t, c.Sync(context.Background(), "items", pharmacy[:1]))
	assert.Zero(t, db.failures)

	got, err := c.Source("items").Lookup(context.Background(), "gauze")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSyncGivesUpOnCancelledContext(t *testing.T) {
	db := newMemRedis()
	db.failures = 100
	c := newClient(db, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, c.Sync(ctx, "items", pharmacy))
}

func TestLookupHonoursContext(t *testing.T) {
	c := newClient(newMemRedis(), "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Source("items").Lookup(ctx, "g")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSyncCatalog(t *testing.T) {
	cat := catalog.New()
	cat.Add("suppliers", autocomplete.Texts("Alpha Pharma", "Beta Medical")...)
	cat.Add("staff", autocomplete.Texts("Dr. Mona")...)

	db := newMemRedis()
	c := newClient(db, "p:")
	require.NoError(t, c.SyncCatalog(context.Background(), cat))

	var keys []string
	for k := range db.hashes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	assert.Equal(t, []string{"p:staff:items", "p:suppliers:items"}, keys)
}

func TestThroughEngine(t *testing.T) {
	db := newMemRedis()
	c := newClient(db, "")
	require.NoError(t, c.Sync(context.Background(), "items", pharmacy))

	src := autocomplete.Async(c.Source("items"))
	cands, err := src.Candidates("gloves")
	require.NoError(t, err)
	assert.Equal(t, []string{"Surgical Gloves"}, autocomplete.Labels(cands))
}
