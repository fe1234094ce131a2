package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/maxviazov/storegate/internal/gateway"
	"github.com/maxviazov/storegate/internal/model"
	"github.com/maxviazov/storegate/internal/repository"
)

const (
	backendName   = "redis"
	DefaultPrefix = "storegate:"
	schemaVersion = "1"
)

// Results of writeScript that are not a hash.
const (
	writeMissing  = -1
	writeTerminal = -2
)

// Each resource is a hash at <prefix>resource:<id>. A sorted set at <prefix>resources
// indexes ids by creation time in milliseconds; equal scores fall back to id order.
var (
	createScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 3))
redis.call('ZADD', KEYS[2], ARGV[1], ARGV[2])
return 1
`)

	writeScript = goredis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then
  return -1
end
if status ~= 'active' then
  return -2
end
redis.call('HSET', KEYS[1], unpack(ARGV))
redis.call('HINCRBY', KEYS[1], 'version', 1)
return redis.call('HGETALL', KEYS[1])
`)
)

type resourceStore struct {
	gw     *gateway.Gateway[*goredis.Conn]
	prefix string
	now    func() time.Time
}

// NewResourceStore returns the redis adapter. An empty prefix means DefaultPrefix.
func NewResourceStore(gw *gateway.Gateway[*goredis.Conn], prefix string) repository.Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &resourceStore{
		gw:     gw,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *resourceStore) Backend() string { return backendName }

func (s *resourceStore) itemKey(id string) string { return s.prefix + "resource:" + id }
func (s *resourceStore) indexKey() string         { return s.prefix + "resources" }

func (s *resourceStore) Create(ctx context.Context, r model.Resource) (model.Resource, error) {
	fields, err := encodeFields(r)
	if err != nil {
		return model.Resource{}, repository.AccessFailure("redis.Create", err)
	}
	args := append([]any{r.CreatedAt.UnixMilli(), r.ID}, fields...)

	err = s.gw.Execute(ctx, func(ctx context.Context, conn *goredis.Conn) error {
		created, err := createScript.Run(ctx, conn, []string{s.itemKey(r.ID), s.indexKey()}, args...).Int()
		if err != nil {
			return repository.AccessFailure("redis.Create", err)
		}
		if created == 0 {
			return repository.E(repository.KindAlreadyExists, "redis.Create", r.ID, nil)
		}
		return nil
	})
	if err != nil {
		return model.Resource{}, err
	}
	return r, nil
}

func (s *resourceStore) Find(ctx context.Context, id string) (model.Resource, bool, error) {
	return gateway.Find(ctx, s.gw, func(ctx context.Context, conn *goredis.Conn) (model.Resource, bool, error) {
		hash, err := conn.HGetAll(ctx, s.itemKey(id)).Result()
		if err != nil {
			return model.Resource{}, false, repository.AccessFailure("redis.Find", err)
		}
		if len(hash) == 0 {
			return model.Resource{}, false, nil
		}
		r, err := decodeHash(hash)
		if err != nil {
			return model.Resource{}, false, repository.AccessFailure("redis.Find", err)
		}
		return r, true, nil
	})
}

func (s *resourceStore) Update(ctx context.Context, r model.Resource) (model.Resource, error) {
	if !r.Status.Valid() {
		return model.Resource{}, repository.E(repository.KindInvalid, "redis.Update", r.ID, nil)
	}
	attrs, err := encodeAttributes(r.Attributes)
	if err != nil {
		return model.Resource{}, repository.AccessFailure("redis.Update", err)
	}
	return s.write(ctx, "redis.Update", r.ID,
		"name", r.Name,
		"kind", r.Kind,
		"status", string(r.Status),
		"attributes", attrs,
		"updated_at", s.now().Format(time.RFC3339Nano),
	)
}

func (s *resourceStore) Delete(ctx context.Context, id string) error {
	_, err := s.write(ctx, "redis.Delete", id,
		"status", string(model.StatusDeleted),
		"updated_at", s.now().Format(time.RFC3339Nano),
	)
	return err
}

// write applies field/value pairs to an active resource atomically and returns the
// stored result.
func (s *resourceStore) write(ctx context.Context, op, id string, pairs ...any) (model.Resource, error) {
	var out model.Resource
	err := s.gw.Execute(ctx, func(ctx context.Context, conn *goredis.Conn) error {
		res, err := writeScript.Run(ctx, conn, []string{s.itemKey(id)}, pairs...).Result()
		if err != nil {
			return repository.AccessFailure(op, err)
		}
		switch v := res.(type) {
		case int64:
			switch v {
			case writeMissing:
				return repository.E(repository.KindNotFound, op, id, nil)
			case writeTerminal:
				return repository.E(repository.KindInvalid, op, id, nil)
			}
			return repository.AccessFailure(op, fmt.Errorf("unexpected script reply %d", v))
		case []any:
			hash, err := pairsToHash(v)
			if err != nil {
				return repository.AccessFailure(op, err)
			}
			if out, err = decodeHash(hash); err != nil {
				return repository.AccessFailure(op, err)
			}
			return nil
		default:
			return repository.AccessFailure(op, fmt.Errorf("unexpected script reply %T", res))
		}
	})
	if err != nil {
		return model.Resource{}, err
	}
	return out, nil
}

func (s *resourceStore) List(ctx context.Context, req repository.PageRequest) (repository.Envelope[model.Resource], error) {
	w := req.Window()
	var (
		total int64
		items []model.Resource
	)
	err := s.gw.Execute(ctx, func(ctx context.Context, conn *goredis.Conn) error {
		var err error
		if total, err = conn.ZCard(ctx, s.indexKey()).Result(); err != nil {
			return repository.AccessFailure("redis.List", err)
		}
		start := int64(w.Offset())
		if total == 0 || start >= total {
			return nil
		}
		ids, err := conn.ZRange(ctx, s.indexKey(), start, start+int64(w.MaxRows)-1).Result()
		if err != nil {
			return repository.AccessFailure("redis.List", err)
		}

		cmds, err := conn.Pipelined(ctx, func(p goredis.Pipeliner) error {
			for _, id := range ids {
				p.HGetAll(ctx, s.itemKey(id))
			}
			return nil
		})
		if err != nil {
			return repository.AccessFailure("redis.List", err)
		}
		items = make([]model.Resource, 0, len(cmds))
		for _, cmd := range cmds {
			hash, err := cmd.(*goredis.MapStringStringCmd).Result()
			if err != nil {
				return repository.AccessFailure("redis.List", err)
			}
			// an id can outlive its hash if someone deleted the key by hand
			if len(hash) == 0 {
				continue
			}
			r, err := decodeHash(hash)
			if err != nil {
				return repository.AccessFailure("redis.List", err)
			}
			items = append(items, r)
		}
		return nil
	})
	if err != nil {
		return repository.Envelope[model.Resource]{}, err
	}
	return repository.Paginate(req, int(total), items), nil
}

func (s *resourceStore) Ping(ctx context.Context) error {
	return s.gw.Execute(ctx, func(ctx context.Context, conn *goredis.Conn) error {
		return conn.Ping(ctx).Err()
	})
}

// EnsureSchema records the key layout version. Redis needs no other setup.
func (s *resourceStore) EnsureSchema(ctx context.Context) error {
	return s.gw.Execute(ctx, func(ctx context.Context, conn *goredis.Conn) error {
		return conn.Set(ctx, s.prefix+"schema:version", schemaVersion, 0).Err()
	})
}

func encodeFields(r model.Resource) ([]any, error) {
	attrs, err := encodeAttributes(r.Attributes)
	if err != nil {
		return nil, err
	}
	return []any{
		"id", r.ID,
		"name", r.Name,
		"kind", r.Kind,
		"status", string(r.Status),
		"attributes", attrs,
		"version", r.Version,
		"created_at", r.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at", r.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

func encodeAttributes(attrs map[string]string) (string, error) {
	if len(attrs) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeHash(h map[string]string) (model.Resource, error) {
	r := model.Resource{
		ID:     h["id"],
		Name:   h["name"],
		Kind:   h["kind"],
		Status: model.Status(h["status"]),
	}
	var err error
	if r.Version, err = strconv.ParseInt(h["version"], 10, 64); err != nil {
		return model.Resource{}, fmt.Errorf("decode version: %w", err)
	}
	if r.CreatedAt, err = time.Parse(time.RFC3339Nano, h["created_at"]); err != nil {
		return model.Resource{}, fmt.Errorf("decode created_at: %w", err)
	}
	if r.UpdatedAt, err = time.Parse(time.RFC3339Nano, h["updated_at"]); err != nil {
		return model.Resource{}, fmt.Errorf("decode updated_at: %w", err)
	}
	if raw := h["attributes"]; raw != "" && raw != "{}" {
		if err := json.Unmarshal([]byte(raw), &r.Attributes); err != nil {
			return model.Resource{}, fmt.Errorf("decode attributes: %w", err)
		}
	}
	return r, nil
}

// pairsToHash turns a flat HGETALL reply into a map.
func pairsToHash(reply []any) (map[string]string, error) {
	if len(reply)%2 != 0 {
		return nil, fmt.Errorf("odd HGETALL reply length %d", len(reply))
	}
	h := make(map[string]string, len(reply)/2)
	for i := 0; i < len(reply); i += 2 {
		k, ok1 := reply[i].(string)
		v, ok2 := reply[i+1].(string)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("non-string HGETALL entry at %d", i)
		}
		h[k] = v
	}
	return h, nil
}

var _ repository.Store = (*resourceStore)(nil)
