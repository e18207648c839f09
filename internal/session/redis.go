package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// RedisStore はRedisを使用するStore実装。
// 複数インスタンスでビジターセッションを共有する場合に使用する。
type RedisStore struct {
	c      *rdb.Client
	prefix string
}

// NewRedisStore はRedisStoreを生成する。
// urlは redis://host:6379/0 形式で指定する。
func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := rdb.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return &RedisStore{c: rdb.NewClient(opts), prefix: "socialhub:"}, nil
}

// Ping はRedisへの疎通を確認する。
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Close はRedisクライアントを閉じる。
func (r *RedisStore) Close() error {
	return r.c.Close()
}

// Set はキーに値を保存する。
func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.c.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Take はGETDELでキーの値を取り出して削除する。
func (r *RedisStore) Take(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.c.GetDel(ctx, r.prefix+key).Bytes()
	if errors.Is(err, rdb.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis getdel: %w", err)
	}
	return b, true, nil
}

// Append はRPUSHとEXPIREをMULTIで実行し、リスト末尾に値を追加する。
func (r *RedisStore) Append(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	k := r.prefix + key
	_, err := r.c.TxPipelined(ctx, func(pipe rdb.Pipeliner) error {
		pipe.RPush(ctx, k, value)
		pipe.Expire(ctx, k, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis rpush: %w", err)
	}
	return nil
}

// TakeAll はLRANGEとDELをMULTIで実行し、リストを取り出して削除する。
func (r *RedisStore) TakeAll(ctx context.Context, key string) ([][]byte, error) {
	k := r.prefix + key
	var values *rdb.StringSliceCmd
	_, err := r.c.TxPipelined(ctx, func(pipe rdb.Pipeliner) error {
		values = pipe.LRange(ctx, k, 0, -1)
		pipe.Del(ctx, k)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}

	items := values.Val()
	if len(items) == 0 {
		return nil, nil
	}
	list := make([][]byte, len(items))
	for i, item := range items {
		list[i] = []byte(item)
	}
	return list, nil
}

// compile-time interface check
var _ Store = (*RedisStore)(nil)
