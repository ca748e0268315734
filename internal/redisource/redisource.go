// Package redisource serves candidate lists from a RediSearch suggestion
// dictionary.
//
// Every list uses two keys: <prefix><list>:sug holds each rune-aligned suffix
// of every lowercased label with the candidate position as payload, and
// <prefix><list>:items maps positions to msgpack-encoded candidates. A
// FT.SUGGET prefix query over suffixes is a substring query over labels.
//
// The dictionary keeps one entry per string, so each suffix is stored as
// suffix + "\x1f" + position. Labels sharing a suffix, and duplicate labels,
// keep an entry each.
package redisource

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bastiangx/pickserve/pkg/autocomplete"
	"github.com/bastiangx/pickserve/pkg/catalog"
	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/garyburd/redigo/redis"
	"github.com/hashicorp/go-multierror"
	"github.com/vmihailenco/msgpack/v5"
)

// sep ends the suffix part of a dictionary entry.
const sep = "\x1f"

// Pool hands out connections. *redis.Pool satisfies it.
type Pool interface {
	Get() redis.Conn
}

// Client talks to one redis server.
type Client struct {
	pool    Pool
	prefix  string
	backoff func() backoff.BackOff
}

// New connects lazily to addr.
func New(addr, prefix string, maxIdle int) *Client {
	pool := &redis.Pool{
		MaxIdle:     maxIdle,
		IdleTimeout: 4 * time.Minute,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", addr,
				redis.DialConnectTimeout(2*time.Second),
				redis.DialReadTimeout(2*time.Second),
				redis.DialWriteTimeout(2*time.Second))
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) > 3*time.Second {
				_, err := c.Do("PING")
				return err
			}
			return nil
		},
	}
	return NewWithPool(pool, prefix)
}

// NewWithPool uses an existing pool.
func NewWithPool(pool Pool, prefix string) *Client {
	return &Client{
		pool:   pool,
		prefix: prefix,
		backoff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4)
		},
	}
}

// Close releases pooled connections when the pool supports it.
func (c *Client) Close() error {
	if closer, ok := c.pool.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

func (c *Client) sugKey(list string) string   { return c.prefix + list + ":sug" }
func (c *Client) itemsKey(list string) string { return c.prefix + list + ":items" }

// Ping checks the connection.
func (c *Client) Ping() error {
	conn := c.pool.Get()
	defer conn.Close()
	_, err := conn.Do("PING")
	return err
}

// Sync replaces the stored list with cands, retrying with exponential backoff
// when the server is unreachable.
func (c *Client) Sync(ctx context.Context, list string, cands []autocomplete.Candidate) error {
	op := func() error {
		err := c.sync(list, cands)
		var rerr redis.Error
		if errors.As(err, &rerr) {
			// The server answered; retrying will not help.
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Warnf("Syncing list [%s] to redis failed, retrying in %v: %v", list, wait, err)
	}
	b := backoff.WithContext(c.backoff(), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return fmt.Errorf("sync %s: %w", list, err)
	}
	log.Debugf("Synced list [%s] to redis: %d candidates", list, len(cands))
	return nil
}

func (c *Client) sync(list string, cands []autocomplete.Candidate) error {
	conn := c.pool.Get()
	defer conn.Close()

	pending := 0
	send := func(cmd string, args ...any) error {
		pending++
		return conn.Send(cmd, args...)
	}

	if err := send("DEL", c.sugKey(list), c.itemsKey(list)); err != nil {
		return err
	}
	for pos, cand := range cands {
		blob, err := msgpack.Marshal(cand)
		if err != nil {
			return err
		}
		if err := send("HSET", c.itemsKey(list), pos, blob); err != nil {
			return err
		}
		lower := strings.ToLower(cand.Label)
		p := strconv.Itoa(pos)
		for i := range lower {
			if err := send("FT.SUGADD", c.sugKey(list), lower[i:]+sep+p, 1, "PAYLOAD", p); err != nil {
				return err
			}
		}
	}
	if err := conn.Flush(); err != nil {
		return err
	}

	var first error
	for ; pending > 0; pending-- {
		if _, err := conn.Receive(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// SyncCatalog pushes every list of cat. Failing lists do not stop the others.
func (c *Client) SyncCatalog(ctx context.Context, cat *catalog.Catalog) error {
	var result *multierror.Error
	for _, name := range cat.Names() {
		cands, _ := cat.List(name)
		if err := c.Sync(ctx, name, cands); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Source returns an asynchronous source over a synced list.
func (c *Client) Source(list string) autocomplete.AsyncSource {
	return &listSource{client: c, list: list}
}

type listSource struct {
	client *Client
	list   string
}

// Lookup returns every candidate whose label contains query, in list order.
// An empty query returns the whole list.
func (l *listSource) Lookup(ctx context.Context, query string) ([]autocomplete.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := autocomplete.NormalizeQuery(query)

	conn := l.client.pool.Get()
	defer conn.Close()

	if q == "" {
		return l.all(conn)
	}

	// Replies come in score order; ask for every entry so nothing is cut
	// before the positions are put back into list order.
	size, err := redis.Int(conn.Do("FT.SUGLEN", l.client.sugKey(l.list)))
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}
	vals, err := redis.Strings(conn.Do("FT.SUGGET", l.client.sugKey(l.list), q, "MAX", size, "WITHPAYLOADS"))
	if err != nil {
		if errors.Is(err, redis.ErrNil) {
			return nil, nil
		}
		return nil, err
	}

	seen := make(map[int]bool)
	var positions []int
	for i := 0; i+1 < len(vals); i += 2 {
		pos, err := strconv.Atoi(vals[i+1])
		if err != nil || seen[pos] {
			continue
		}
		seen[pos] = true
		positions = append(positions, pos)
	}
	if len(positions) == 0 {
		return nil, nil
	}
	sort.Ints(positions)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	args := redis.Args{}.Add(l.client.itemsKey(l.list)).AddFlat(positions)
	blobs, err := redis.ByteSlices(conn.Do("HMGET", args...))
	if err != nil {
		return nil, err
	}
	return decode(blobs), nil
}

func (l *listSource) all(conn redis.Conn) ([]autocomplete.Candidate, error) {
	m, err := redis.StringMap(conn.Do("HGETALL", l.client.itemsKey(l.list)))
	if err != nil {
		return nil, err
	}
	positions := make([]int, 0, len(m))
	for k := range m {
		if pos, err := strconv.Atoi(k); err == nil {
			positions = append(positions, pos)
		}
	}
	sort.Ints(positions)

	blobs := make([][]byte, len(positions))
	for i, pos := range positions {
		blobs[i] = []byte(m[strconv.Itoa(pos)])
	}
	return decode(blobs), nil
}

func decode(blobs [][]byte) []autocomplete.Candidate {
	out := make([]autocomplete.Candidate, 0, len(blobs))
	for _, b := range blobs {
		if b == nil {
			continue
		}
		var c autocomplete.Candidate
		if err := msgpack.Unmarshal(b, &c); err != nil {
			log.Warnf("Skipping undecodable candidate: %v", err)
			continue
		}
		out = append(out, c)
	}
	return out
}
