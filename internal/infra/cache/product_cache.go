package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	productListPrefix = "products:v:"
	productVersionKey = "products:version"
)

// NewRedisClient はRedisに接続してクライアントを返す。
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return client, nil
}

// ProductCache は商品一覧のJSONをversion付きキーで持つ。
// 管理者が商品を書き換えたらversionを+1して一覧キャッシュをまとめて無効化する。
// client が nil ならすべてmiss扱い（キャッシュ無しでも動く）。
type ProductCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewProductCache(client *redis.Client, ttl time.Duration, log *zap.Logger) *ProductCache {
	return &ProductCache{client: client, ttl: ttl, log: log}
}

func (c *ProductCache) Enabled() bool {
	return c != nil && c.client != nil
}

// 一覧キャッシュを取得。missはfalse。
func (c *ProductCache) GetList(ctx context.Context, listKey string) ([]byte, bool) {
	if !c.Enabled() {
		return nil, false
	}

	version, err := c.version(ctx)
	if err != nil || version == 0 {
		return nil, false
	}

	data, err := c.client.Get(ctx, c.listCacheKey(version, listKey)).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

// 一覧キャッシュを保存。失敗しても呼び出し元には影響させない。
func (c *ProductCache) SetList(ctx context.Context, listKey string, data []byte) {
	if !c.Enabled() {
		return
	}

	version, err := c.version(ctx)
	if err != nil || version == 0 {
		return
	}

	if err := c.client.Set(ctx, c.listCacheKey(version, listKey), data, c.ttl).Err(); err != nil && c.log != nil {
		c.log.Warn("product cache set failed", zap.Error(err))
	}
}

// versionを+1して既存の一覧キャッシュを無効化する。
func (c *ProductCache) Invalidate(ctx context.Context) {
	if !c.Enabled() {
		return
	}

	if err := c.client.Incr(ctx, productVersionKey).Err(); err != nil && c.log != nil {
		c.log.Warn("product cache invalidate failed", zap.Error(err))
	}
}

func (c *ProductCache) version(ctx context.Context) (int64, error) {
	v, err := c.client.Get(ctx, productVersionKey).Int64()
	if err == redis.Nil {
		//初回はversionを立てる
		if err := c.client.Set(ctx, productVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return v, nil
}

func (c *ProductCache) listCacheKey(version int64, listKey string) string {
	return fmt.Sprintf("%s%d:%s", productListPrefix, version, listKey)
}
