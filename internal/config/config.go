package config

import (
	"fmt"
	"os"
	"strconv"
)

const (
	CartMergePolicySum     = "sum"
	CartMergePolicyReplace = "replace"
)

// Configはアプリ全体の設定
type Config struct {
	Port string // サーバーポート（8080）

	JWTSecret string // JWT署名シークレット
	GoEnv     string // dev/prod

	//金額計算（整数のみ、確定値）
	TaxRateBP       int64 // 税率（basis points、1000=10%）
	ShippingFee     int64 // 送料（固定）
	FreeShippingMin int64 // この額以上で送料無料（0なら無効）

	//ログイン時のカートマージ方針（sum / replace）
	CartMergePolicy string

	RedisURL     string // 空ならキャッシュ無効
	KafkaBrokers string // カンマ区切り。空ならイベント発行無効
	KafkaTopic   string
}

// Loadは環境変数から読み込む
func Load() (Config, error) {
	cfg := Config{
		Port:      os.Getenv("PORT"),
		JWTSecret: os.Getenv("JWT_SECRET"),
		GoEnv:     os.Getenv("GO_ENV"),

		CartMergePolicy: getenvDefault("CART_MERGE_POLICY", CartMergePolicySum),

		RedisURL:     os.Getenv("REDIS_URL"),
		KafkaBrokers: os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:   getenvDefault("KAFKA_TOPIC", "storefront.orders"),
	}

	//必須チェック
	if cfg.Port == "" {
		return Config{}, fmt.Errorf("PORT is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.GoEnv == "" {
		return Config{}, fmt.Errorf("GO_ENV is required")
	}

	if cfg.CartMergePolicy != CartMergePolicySum && cfg.CartMergePolicy != CartMergePolicyReplace {
		return Config{}, fmt.Errorf("CART_MERGE_POLICY must be %q or %q", CartMergePolicySum, CartMergePolicyReplace)
	}

	var err error
	if cfg.TaxRateBP, err = int64Default("TAX_RATE_BP", 1000); err != nil {
		return Config{}, err
	}
	if cfg.ShippingFee, err = int64Default("SHIPPING_FEE", 500); err != nil {
		return Config{}, err
	}
	if cfg.FreeShippingMin, err = int64Default("FREE_SHIPPING_MIN", 0); err != nil {
		return Config{}, err
	}

	if cfg.TaxRateBP < 0 || cfg.ShippingFee < 0 || cfg.FreeShippingMin < 0 {
		return Config{}, fmt.Errorf("pricing values must not be negative")
	}

	return cfg, nil
}

func getenvDefault(key string, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func int64Default(key string, def int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}
