// Package queue implements ports.Queue on Redis with SQS-style visibility
// timeouts: a pending list, an in-flight sorted set scored by lease deadline
// and one hash per message.
package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"rendernode/internal/pkg/errors"
	"rendernode/internal/ports"
)

// URLScheme prefixes queue URLs handed out by CreateOrOpen.
const URLScheme = "redisq://"

const defaultPollInterval = 250 * time.Millisecond

// receiveScript requeues expired leases, then claims up to ARGV[3] messages.
// ARGV[5..] carries one pre-generated receipt token per slot.
var receiveScript = redis.NewScript(`
local pending = KEYS[1]
local inflight = KEYS[2]
local now = tonumber(ARGV[1])
local deadline = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local prefix = ARGV[4]

local expired = redis.call('ZRANGEBYSCORE', inflight, '-inf', now)
for _, id in ipairs(expired) do
  redis.call('ZREM', inflight, id)
  redis.call('HDEL', prefix .. id, 'receipt')
  redis.call('LPUSH', pending, id)
end

local out = {}
for i = 1, max do
  local id = redis.call('LPOP', pending)
  if not id then break end
  local key = prefix .. id
  if redis.call('EXISTS', key) == 1 then
    local token = ARGV[4 + i]
    redis.call('HSET', key, 'receipt', token)
    local count = redis.call('HINCRBY', key, 'receive_count', 1)
    redis.call('ZADD', inflight, deadline, id)
    table.insert(out, {id, token, redis.call('HGET', key, 'body'), count})
  end
end
return out
`)

var extendScript = redis.NewScript(`
if redis.call('HGET', KEYS[2], 'receipt') ~= ARGV[2] then return 0 end
if not redis.call('ZSCORE', KEYS[1], ARGV[1]) then return 0 end
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[1])
return 1
`)

var deleteScript = redis.NewScript(`
if redis.call('HGET', KEYS[2], 'receipt') ~= ARGV[2] then return 0 end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('DEL', KEYS[2])
return 1
`)

// Options tunes a RedisQueue. Zero values pick defaults.
type Options struct {
	KeyPrefix    string           // default "rq"
	PollInterval time.Duration    // long-poll retry period, default 250ms
	Now          func() time.Time // lease clock, default time.Now
}

// RedisQueue implements ports.Queue.
type RedisQueue struct {
	rdb          *redis.Client
	prefix       string
	pollInterval time.Duration
	now          func() time.Time
}

var _ ports.Queue = (*RedisQueue)(nil)

func NewRedisQueue(rdb *redis.Client, opts Options) *RedisQueue {
	q := &RedisQueue{
		rdb:          rdb,
		prefix:       opts.KeyPrefix,
		pollInterval: opts.PollInterval,
		now:          opts.Now,
	}
	if q.prefix == "" {
		q.prefix = "rq"
	}
	if q.pollInterval <= 0 {
		q.pollInterval = defaultPollInterval
	}
	if q.now == nil {
		q.now = time.Now
	}
	return q
}

// QueueURL returns the URL for a queue name.
func QueueURL(name string) string {
	return URLScheme + name
}

// ParseQueueURL extracts the queue name from a redisq:// URL.
func ParseQueueURL(url string) (string, error) {
	name, ok := strings.CutPrefix(url, URLScheme)
	if !ok || name == "" || strings.ContainsAny(name, "/{}") {
		return "", errors.ValidationField("OutputQueueUrl", fmt.Sprintf("invalid queue url: %q", url))
	}
	return name, nil
}

func (q *RedisQueue) pendingKey(name string) string  { return q.prefix + ":" + name + ":pending" }
func (q *RedisQueue) inflightKey(name string) string { return q.prefix + ":" + name + ":inflight" }
func (q *RedisQueue) msgPrefix(name string) string   { return q.prefix + ":" + name + ":msg:" }
func (q *RedisQueue) registryKey() string            { return q.prefix + ":queues" }

func (q *RedisQueue) CreateOrOpen(ctx context.Context, name string) (ports.QueueHandle, error) {
	if name == "" || strings.ContainsAny(name, "/{}") {
		return ports.QueueHandle{}, errors.Validation(fmt.Sprintf("invalid queue name: %q", name))
	}
	if err := q.rdb.SAdd(ctx, q.registryKey(), name).Err(); err != nil {
		return ports.QueueHandle{}, errors.WrapWithCode(err, errors.CodeQueue, "queue.create", "create queue failed")
	}
	return ports.QueueHandle{Name: name, URL: QueueURL(name)}, nil
}

// Receive long-polls until at least one message is claimed, wait elapses or
// ctx is done. A zero wait makes a single attempt.
func (q *RedisQueue) Receive(ctx context.Context, h ports.QueueHandle, max int, visibility, wait time.Duration) ([]ports.Message, error) {
	if max < 1 {
		return nil, nil
	}

	deadline := time.Now().Add(wait)
	for {
		msgs, err := q.claim(ctx, h, max, visibility)
		if err != nil {
			return nil, err
		}
		if len(msgs) > 0 || !time.Now().Before(deadline) {
			return msgs, nil
		}

		sleep := min(q.pollInterval, time.Until(deadline))
		t := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, errors.WrapWithCode(ctx.Err(), errors.CodeQueue, "queue.receive", "receive canceled")
		case <-t.C:
		}
	}
}

func (q *RedisQueue) claim(ctx context.Context, h ports.QueueHandle, max int, visibility time.Duration) ([]ports.Message, error) {
	now := q.now()
	args := make([]any, 0, 4+max)
	args = append(args,
		now.UnixMilli(),
		now.Add(visibility).UnixMilli(),
		max,
		q.msgPrefix(h.Name),
	)
	for i := 0; i < max; i++ {
		args = append(args, uuid.NewString())
	}

	res, err := receiveScript.Run(ctx, q.rdb, []string{q.pendingKey(h.Name), q.inflightKey(h.Name)}, args...).Slice()
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeQueue, "queue.receive", "receive failed")
	}

	msgs := make([]ports.Message, 0, len(res))
	for _, row := range res {
		fields, ok := row.([]any)
		if !ok || len(fields) != 4 {
			return nil, errors.Newf(errors.CodeQueue, "unexpected receive reply: %v", row)
		}
		id, _ := fields[0].(string)
		token, _ := fields[1].(string)
		body, _ := fields[2].(string)
		count, _ := fields[3].(int64)

		msgs = append(msgs, ports.Message{
			ID:            id,
			ReceiptHandle: id + "." + token,
			Body:          []byte(body),
			ReceiveCount:  int(count),
		})
	}
	return msgs, nil
}

func (q *RedisQueue) ExtendVisibility(ctx context.Context, h ports.QueueHandle, receipt string, timeout time.Duration) error {
	id, token, err := splitReceipt(receipt)
	if err != nil {
		return err
	}

	deadline := q.now().Add(timeout).UnixMilli()
	ok, err := extendScript.Run(ctx, q.rdb,
		[]string{q.inflightKey(h.Name), q.msgPrefix(h.Name) + id},
		id, token, deadline,
	).Int()
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeQueue, "queue.extend", "extend visibility failed")
	}
	if ok == 0 {
		return errors.New(errors.CodeLeaseLost, "receipt no longer holds the lease").WithField("message_id", id)
	}
	return nil
}

func (q *RedisQueue) Delete(ctx context.Context, h ports.QueueHandle, receipt string) error {
	id, token, err := splitReceipt(receipt)
	if err != nil {
		return err
	}

	ok, err := deleteScript.Run(ctx, q.rdb,
		[]string{q.inflightKey(h.Name), q.msgPrefix(h.Name) + id},
		id, token,
	).Int()
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeQueue, "queue.delete", "delete failed")
	}
	if ok == 0 {
		return errors.New(errors.CodeLeaseLost, "receipt no longer holds the lease").WithField("message_id", id)
	}
	return nil
}

func (q *RedisQueue) Send(ctx context.Context, queueURL string, body []byte) (string, error) {
	name, err := ParseQueueURL(queueURL)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, q.registryKey(), name)
		p.HSet(ctx, q.msgPrefix(name)+id, "body", body, "receive_count", 0)
		p.RPush(ctx, q.pendingKey(name), id)
		return nil
	})
	if err != nil {
		return "", errors.WrapWithCode(err, errors.CodeQueue, "queue.send", "send failed")
	}
	return id, nil
}

// Depth reports how many messages are waiting and how many are leased.
func (q *RedisQueue) Depth(ctx context.Context, h ports.QueueHandle) (pending, inflight int64, err error) {
	var lenCmd, cardCmd *redis.IntCmd
	_, err = q.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		lenCmd = p.LLen(ctx, q.pendingKey(h.Name))
		cardCmd = p.ZCard(ctx, q.inflightKey(h.Name))
		return nil
	})
	if err != nil {
		return 0, 0, errors.WrapWithCode(err, errors.CodeQueue, "queue.depth", "depth failed")
	}
	return lenCmd.Val(), cardCmd.Val(), nil
}

// Ping checks the Redis connection.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}

func splitReceipt(receipt string) (id, token string, err error) {
	id, token, ok := strings.Cut(receipt, ".")
	if !ok || id == "" || token == "" {
		return "", "", errors.Newf(errors.CodeQueue, "malformed receipt handle %q", receipt)
	}
	return id, token, nil
}
