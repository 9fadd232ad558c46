package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	logx "cartellino/pkg/logx"
)

const (
	redisPrefix      = "cartellino:"
	redisSettingsKey = redisPrefix + "settings"
	redisChatsKey    = redisPrefix + "chats"
)

// redisStore keeps each chat's day in its own hash so old days expire on
// their own; PruneDaily has nothing to do.
type redisStore struct {
	rdb *redis.Client
	log logx.Logger
	ttl time.Duration
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	log.Debug("redis store opened", logx.String("addr", addr), logx.Int("db", cfg.Redis.DB))
	return newRedisStore(rdb, cfg.RetainDays, log), nil
}

func newRedisStore(rdb *redis.Client, retainDays int, log logx.Logger) *redisStore {
	if retainDays <= 0 {
		retainDays = 90
	}
	return &redisStore{rdb: rdb, log: log, ttl: time.Duration(retainDays) * 24 * time.Hour}
}

func dailyRedisKey(chatID int64, day string) string {
	return redisPrefix + "daily:" + strconv.FormatInt(chatID, 10) + ":" + day
}

func (s *redisStore) Close() error { return s.rdb.Close() }

func (s *redisStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	return s.hget(ctx, redisSettingsKey, key)
}

func (s *redisStore) StoreSetting(ctx context.Context, key, value string) error {
	return s.rdb.HSet(ctx, redisSettingsKey, key, value).Err()
}

func (s *redisStore) Settings(ctx context.Context) (map[string]string, error) {
	return s.rdb.HGetAll(ctx, redisSettingsKey).Result()
}

func (s *redisStore) StoreChat(ctx context.Context, chatID int64, name string) error {
	return s.rdb.HSet(ctx, redisChatsKey, strconv.FormatInt(chatID, 10), name).Err()
}

func (s *redisStore) Chats(ctx context.Context) ([]Chat, error) {
	m, err := s.rdb.HGetAll(ctx, redisChatsKey).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Chat, 0, len(m))
	for k, v := range m {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			s.log.Warn("skipping bad chat id in redis", logx.String("field", k))
			continue
		}
		out = append(out, Chat{ID: id, Name: v})
	}
	sortChats(out)
	return out, nil
}

func (s *redisStore) GetDaily(ctx context.Context, chatID int64, key string, day time.Time) (string, bool, error) {
	return s.hget(ctx, dailyRedisKey(chatID, DayKey(day)), key)
}

func (s *redisStore) StoreDaily(ctx context.Context, chatID int64, key, value string, day time.Time) error {
	k := dailyRedisKey(chatID, DayKey(day))
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, k, key, value)
		p.Expire(ctx, k, s.ttl)
		return nil
	})
	return err
}

func (s *redisStore) DailyHistory(ctx context.Context, chatID int64, from, to time.Time) ([]DailyValue, error) {
	days := daysBetween(from, to)
	if len(days) == 0 {
		return nil, nil
	}
	cmds := make([]*redis.MapStringStringCmd, len(days))
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, d := range days {
			cmds[i] = p.HGetAll(ctx, dailyRedisKey(chatID, d))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	var out []DailyValue
	for i, cmd := range cmds {
		for k, v := range cmd.Val() {
			out = append(out, DailyValue{ChatID: chatID, Key: k, Value: v, Day: days[i]})
		}
	}
	sortDaily(out)
	return out, nil
}

func (s *redisStore) PruneDaily(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (s *redisStore) hget(ctx context.Context, key, field string) (string, bool, error) {
	v, err := s.rdb.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// daysBetween lists the day keys of [from, to] in from's location.
func daysBetween(from, to time.Time) []string {
	to = to.In(from.Location())
	y, m, d := from.Date()
	cur := time.Date(y, m, d, 12, 0, 0, 0, from.Location())
	last := DayKey(to)
	var out []string
	for i := 0; i < 3660; i++ {
		k := DayKey(cur)
		if k > last {
			break
		}
		out = append(out, k)
		cur = cur.AddDate(0, 0, 1)
	}
	return out
}
