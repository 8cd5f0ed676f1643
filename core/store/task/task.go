package taskstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/you-humble/ubattery/core/mining"

	"github.com/redis/go-redis/v9"
)

// finishScript applies a terminal write only while the record is running, so
// a late worker can neither resurrect a deleted task nor overwrite a final one.
var finishScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'status') ~= ARGV[1] then
  return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[2], 'comment', ARGV[3], 'result', ARGV[4], 'updated_at', ARGV[5])
return 1
`)

var summaryFields = []string{
	"id",
	"kind",
	"source_label",
	"description",
	"created_at",
	"status",
	"comment",
	"table",
	"range_from",
	"range_to",
}

type redisTaskStore struct {
	rdb redis.Cmdable
}

func NewRedisTaskStore(rdb redis.Cmdable) *redisTaskStore {
	return &redisTaskStore{rdb: rdb}
}

func (s *redisTaskStore) Create(ctx context.Context, t mining.Task) error {
	now := time.Now().UnixNano()

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, taskKey(t.ID), map[string]interface{}{
		"id":           t.ID,
		"kind":         string(t.Kind),
		"source_label": t.SourceLabel,
		"description":  t.Description,
		"created_at":   t.CreatedAt.UnixNano(),
		"status":       string(t.Status),
		"comment":      t.Comment,
		"result":       string(t.Result),
		"table":        string(t.Table),
		"range_from":   unixNano(t.Range.From),
		"range_to":     unixNano(t.Range.To),
		"updated_at":   now,
	})
	pipe.ZAdd(ctx, tasksByCreatedKey(), redis.Z{
		Score:  float64(t.CreatedAt.UnixMilli()),
		Member: t.ID,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: redis pipeline Create: %w", mining.ErrDataAccess, err)
	}
	return nil
}

func (s *redisTaskStore) Task(ctx context.Context, id string) (mining.Task, error) {
	res, err := s.rdb.HGetAll(ctx, taskKey(id)).Result()
	if err != nil {
		return mining.Task{}, fmt.Errorf("%w: redis HGetAll: %w", mining.ErrDataAccess, err)
	}
	if len(res) == 0 {
		return mining.Task{}, mining.ErrTaskNotFound
	}

	t := decodeTask(id, res)
	if v := res["result"]; v != "" {
		t.Result = []byte(v)
	}
	return t, nil
}

func (s *redisTaskStore) Finish(
	ctx context.Context,
	id string,
	status mining.Status,
	comment string,
	result []byte,
) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("finish task %s: status %q is not terminal", id, status)
	}

	n, err := finishScript.Run(ctx, s.rdb,
		[]string{taskKey(id)},
		string(mining.StatusRunning),
		string(status),
		comment,
		string(result),
		time.Now().UnixNano(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("%w: redis Finish: %w", mining.ErrDataAccess, err)
	}
	return n == 1, nil
}

func (s *redisTaskStore) Delete(ctx context.Context, id string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, taskKey(id))
	pipe.ZRem(ctx, tasksByCreatedKey(), id)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: redis pipeline Delete: %w", mining.ErrDataAccess, err)
	}
	return nil
}

func (s *redisTaskStore) List(ctx context.Context) ([]mining.Task, error) {
	ids, err := s.rdb.ZRevRange(ctx, tasksByCreatedKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: redis ZRevRange: %w", mining.ErrDataAccess, err)
	}
	if len(ids) == 0 {
		return []mining.Task{}, nil
	}

	cmds := make([]*redis.SliceCmd, len(ids))
	_, err = s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HMGet(ctx, taskKey(id), summaryFields...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: redis pipeline List: %w", mining.ErrDataAccess, err)
	}

	tasks := make([]mining.Task, 0, len(ids))
	for i, cmd := range cmds {
		values := fieldMap(summaryFields, cmd.Val())
		if values["status"] == "" {
			// deleted between ZRevRange and HMGet
			continue
		}
		tasks = append(tasks, decodeTask(ids[i], values))
	}
	return tasks, nil
}

func (s *redisTaskStore) Result(ctx context.Context, id string) ([]byte, bool, error) {
	vals, err := s.rdb.HMGet(ctx, taskKey(id), "status", "result").Result()
	if err != nil {
		return nil, false, fmt.Errorf("%w: redis HMGet: %w", mining.ErrDataAccess, err)
	}

	values := fieldMap([]string{"status", "result"}, vals)
	if mining.Status(values["status"]) != mining.StatusSucceeded || values["result"] == "" {
		return nil, false, nil
	}
	return []byte(values["result"]), true, nil
}

func (s *redisTaskStore) DeleteFinishedBefore(ctx context.Context, border time.Time) ([]string, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, tasksByCreatedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprint(border.UnixMilli()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: redis ZRangeByScore: %w", mining.ErrDataAccess, err)
	}

	var deleted []string
	for _, id := range ids {
		status, err := s.rdb.HGet(ctx, taskKey(id), "status").Result()
		if errors.Is(err, redis.Nil) {
			// index entry without a record
			if err := s.rdb.ZRem(ctx, tasksByCreatedKey(), id).Err(); err != nil {
				return deleted, fmt.Errorf("%w: redis ZRem: %w", mining.ErrDataAccess, err)
			}
			continue
		}
		if err != nil {
			return deleted, fmt.Errorf("%w: redis HGet: %w", mining.ErrDataAccess, err)
		}
		if !mining.Status(status).Terminal() {
			continue
		}

		if err := s.Delete(ctx, id); err != nil {
			return deleted, err
		}
		deleted = append(deleted, id)
	}

	return deleted, nil
}

func decodeTask(id string, res map[string]string) mining.Task {
	t := mining.Task{
		ID:          id,
		Kind:        mining.Kind(res["kind"]),
		SourceLabel: res["source_label"],
		Description: res["description"],
		Status:      mining.Status(res["status"]),
		Comment:     res["comment"],
		Table:       mining.Table(res["table"]),
	}

	t.CreatedAt = parseUnixNano(res["created_at"])
	t.Range.From = parseUnixNano(res["range_from"])
	t.Range.To = parseUnixNano(res["range_to"])

	return t
}

func fieldMap(fields []string, vals []interface{}) map[string]string {
	m := make(map[string]string, len(fields))
	for i, f := range fields {
		if i >= len(vals) || vals[i] == nil {
			continue
		}
		if s, ok := vals[i].(string); ok {
			m[f] = s
		}
	}
	return m
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func parseUnixNano(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func taskKey(id string) string {
	return "mining:task:" + id
}

func tasksByCreatedKey() string {
	return "mining:tasks:by_created"
}
