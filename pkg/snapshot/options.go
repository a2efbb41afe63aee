package snapshot

import (
	"github.com/lk2023060901/graphsnap-go/pkg/log"
	"github.com/lk2023060901/graphsnap-go/pkg/util/hardware"
	"github.com/lk2023060901/graphsnap-go/pkg/util/merr"
)

const (
	DefaultMaxDepth       = 50
	DefaultFieldTag       = "snapshot"
	DefaultFallbackMaxLen = 256
)

// Config 为快照引擎的配置，对应配置文件中的 snapshot 段。
type Config struct {
	// MaxDepth 为最大递归深度，超过后分支以深度标记结束。
	MaxDepth int `mapstructure:"max_depth" json:"max_depth"`
	// FieldTag 为字段改名/排除所用的 struct tag 键。
	FieldTag string `mapstructure:"field_tag" json:"field_tag"`
	// FallbackMaxLen 为文本回退描述的最大长度。
	FallbackMaxLen int `mapstructure:"fallback_max_len" json:"fallback_max_len"`
	// SortMapKeys 为 true 时 Mapping 按键排序输出。
	SortMapKeys bool `mapstructure:"sort_map_keys" json:"sort_map_keys"`
	// Workers 为 SerializeAll 使用的协程数，<= 0 时取 CPU 核数。
	Workers int `mapstructure:"workers" json:"workers"`
}

func DefaultConfig() Config {
	return Config{
		MaxDepth:       DefaultMaxDepth,
		FieldTag:       DefaultFieldTag,
		FallbackMaxLen: DefaultFallbackMaxLen,
		SortMapKeys:    true,
	}
}

// Validate 检查配置是否合法。
func (c Config) Validate() error {
	if c.MaxDepth < 0 {
		return merr.WrapErrParameterInvalidMsg("max_depth must be >= 0, got %d", c.MaxDepth)
	}
	if c.FallbackMaxLen < 0 {
		return merr.WrapErrParameterInvalidMsg("fallback_max_len must be >= 0, got %d", c.FallbackMaxLen)
	}
	return nil
}

func (c Config) normalize() Config {
	if c.MaxDepth < 0 {
		c.MaxDepth = DefaultMaxDepth
	}
	if c.FieldTag == "" {
		c.FieldTag = DefaultFieldTag
	}
	if c.FallbackMaxLen <= 0 {
		c.FallbackMaxLen = DefaultFallbackMaxLen
	}
	if c.Workers <= 0 {
		c.Workers = hardware.GetCPUNum()
	}
	return c
}

type options struct {
	cfg      Config
	logger   *log.MLogger
	registry *Registry
}

func defaultOptions() *options {
	return &options{
		cfg: DefaultConfig(),
	}
}

func buildOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	o.cfg = o.cfg.normalize()
	return o
}

// Option 用于配置 Serializer、Deserializer 与 Engine。
type Option func(o *options)

// WithConfig 整体替换配置，之后的选项仍可覆盖单项。
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.cfg = cfg
	}
}

func WithMaxDepth(depth int) Option {
	return func(o *options) {
		o.cfg.MaxDepth = depth
	}
}

func WithFieldTag(tag string) Option {
	return func(o *options) {
		o.cfg.FieldTag = tag
	}
}

func WithFallbackMaxLen(n int) Option {
	return func(o *options) {
		o.cfg.FallbackMaxLen = n
	}
}

func WithSortMapKeys(v bool) Option {
	return func(o *options) {
		o.cfg.SortMapKeys = v
	}
}

func WithWorkers(n int) Option {
	return func(o *options) {
		o.cfg.Workers = n
	}
}

func WithLogger(logger *log.MLogger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRegistry 让 Engine 使用外部提供的 Registry。
func WithRegistry(r *Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}
