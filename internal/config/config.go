package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type NatsConfig struct {
	URL          string
	MAX_MESSAGES int
}

type RedisConfig struct {
	TTL            int
	ClientPassword string
	URL            string
}

type FreeCacheConfig struct {
	SIZE_BYTES int
	TTL        int
}

type MinioConfig struct {
	URL         string
	JOBS_BUCKET string
	ACCESS_KEY  string
	SECRET_KEY  string
	USE_SSL     bool
}

type ExecutorConfig struct {
	PYTHON_ENV_PATH    string
	JOB_OUTPUT_DIR     string
	TIMEOUT_SECONDS    int
	POOL_SIZE          int
	TEMPLATE_VARS_PATH string
}

type Config struct {
	SERVICE_NAME string
	TRACE_URL    string
	CACHE_TYPE   string
	QUEUE_TYPE   string
	STORAGE_TYPE string
	HTTP_ADDR    string
}

const defaultHTTPAddr = ":8080"

func env(key string) string {
	v := os.Getenv(key)
	return v
}

func convertStringToInt(s string, key string) (int, error) {
	sInt, err := strconv.Atoi(s)
	if err != nil {
		return -1, fmt.Errorf("error initializing config with key: %s, err: %v", key, err)
	}
	return sInt, nil
}

func GetConfig() (*Config, error) {
	sn := env("SERVICE_NAME")
	if sn == "" {
		return nil, fmt.Errorf("KEY: SERVICE_NAME is empty")
	}
	turl := env("TRACE_URL")
	ct := env("CACHE_TYPE")
	if ct == "" {
		return nil, fmt.Errorf("KEY: CACHE_TYPE is empty")
	}
	qt := env("QUEUE_TYPE")
	if qt == "" {
		return nil, fmt.Errorf("KEY: QUEUE_TYPE is empty")
	}
	st := env("STORAGE_TYPE")
	if st == "" {
		return nil, fmt.Errorf("KEY: STORAGE_TYPE is empty")
	}
	addr := env("HTTP_ADDR")
	if addr == "" {
		addr = defaultHTTPAddr
	}
	return &Config{
		SERVICE_NAME: sn,
		TRACE_URL:    turl,
		CACHE_TYPE:   ct,
		QUEUE_TYPE:   qt,
		STORAGE_TYPE: st,
		HTTP_ADDR:    addr,
	}, nil
}

func GetExecutorConfig() (*ExecutorConfig, error) {
	pe := env("PYTHON_ENV_PATH")
	if pe == "" {
		return nil, fmt.Errorf("KEY: PYTHON_ENV_PATH is empty")
	}
	od := env("JOB_OUTPUT_DIR")
	if od == "" {
		return nil, fmt.Errorf("KEY: JOB_OUTPUT_DIR is empty")
	}
	ts, err := convertStringToInt(env("EXECUTION_TIMEOUT_SECONDS"), "EXECUTION_TIMEOUT_SECONDS")
	if err != nil {
		return nil, err
	}
	if ts <= 0 {
		return nil, fmt.Errorf("KEY: EXECUTION_TIMEOUT_SECONDS must be positive")
	}
	ps, err := convertStringToInt(env("POOL_SIZE"), "POOL_SIZE")
	if err != nil {
		return nil, err
	}
	if ps < 1 {
		return nil, fmt.Errorf("KEY: POOL_SIZE must be >= 1")
	}
	return &ExecutorConfig{
		PYTHON_ENV_PATH:    pe,
		JOB_OUTPUT_DIR:     od,
		TIMEOUT_SECONDS:    ts,
		POOL_SIZE:          ps,
		TEMPLATE_VARS_PATH: env("TEMPLATE_VARS_PATH"),
	}, nil
}

// LoadTemplateVariables reads a flat name: value YAML mapping. An empty path
// yields an empty mapping.
func LoadTemplateVariables(path string) (map[string]string, error) {
	vars := map[string]string{}
	if path == "" {
		return vars, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read template variables %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &vars); err != nil {
		return nil, fmt.Errorf("unable to parse template variables %s: %w", path, err)
	}
	return vars, nil
}

func GetNatsConfig() (*NatsConfig, error) {
	url := env("JETSTREAM_URL")
	if url == "" {
		return nil, fmt.Errorf("KEY: JETSTREAM_URL is empty")
	}
	mm, err := convertStringToInt(env("JETSTREAM_MAX_MESSAGES"), "JETSTREAM_MAX_MESSAGES")
	if err != nil {
		return nil, err
	}
	return &NatsConfig{
		URL:          url,
		MAX_MESSAGES: mm,
	}, nil
}

func GetRedisConfig() (*RedisConfig, error) {
	ttl, err := convertStringToInt(env("REDIS_TTL"), "REDIS_TTL")
	if err != nil {
		return nil, err
	}

	url := env("REDIS_ENDPOINT")
	if url == "" {
		return nil, fmt.Errorf("KEY: REDIS_ENDPOINT is empty")
	}

	return &RedisConfig{
		TTL:            ttl,
		ClientPassword: env("REDIS_CLIENT_PASSWORD"),
		URL:            url,
	}, nil
}

func GetFreeCacheConfig() (*FreeCacheConfig, error) {
	ttl, err := convertStringToInt(env("FREECACHE_TTL"), "FREECACHE_TTL")
	if err != nil {
		return nil, err
	}
	fs, err := convertStringToInt(env("FREECACHE_SIZE"), "FREECACHE_SIZE")
	if err != nil {
		return nil, err
	}
	return &FreeCacheConfig{
		TTL:        ttl,
		SIZE_BYTES: fs,
	}, nil
}

func GetMinioConfig() (*MinioConfig, error) {
	url := env("MINIO_ENDPOINT")
	if url == "" {
		return nil, fmt.Errorf("KEY: MINIO_ENDPOINT is empty")
	}

	jb := env("MINIO_JOBS_BUCKET")
	if jb == "" {
		return nil, fmt.Errorf("KEY: MINIO_JOBS_BUCKET is empty")
	}

	ssl := env("MINIO_USE_SSL")
	if ssl != "true" && ssl != "false" {
		return nil, fmt.Errorf("KEY: MINIO_USE_SSL is invalid")
	}

	ak := env("MINIO_ACCESS_KEY")
	if ak == "" {
		return nil, fmt.Errorf("KEY: MINIO_ACCESS_KEY is empty")
	}

	sk := env("MINIO_SECRET_KEY")
	if sk == "" {
		return nil, fmt.Errorf("KEY: MINIO_SECRET_KEY is empty")
	}

	return &MinioConfig{
		URL:         url,
		JOBS_BUCKET: jb,
		USE_SSL:     ssl == "true",
		ACCESS_KEY:  ak,
		SECRET_KEY:  sk,
	}, nil
}
