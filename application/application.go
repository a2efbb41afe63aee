package application

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	zlog "github.com/lk2023060901/graphsnap-go/pkg/log"
	"github.com/lk2023060901/graphsnap-go/pkg/metrics"
	"github.com/lk2023060901/graphsnap-go/pkg/snapshot"
	"github.com/lk2023060901/graphsnap-go/pkg/util/hardware"
	zviper "github.com/lk2023060901/graphsnap-go/pkg/util/viper"
)

const (
	defaultConfigPath = "./config.yaml"
	envPrefix         = "GRAPHSNAP"
)

// SignalKind 区分收到的系统信号。
type SignalKind int

const (
	SignalShutdown SignalKind = iota + 1
	SignalReload
)

// Application 是 graphsnap 工具的运行时容器，持有配置、日志与快照引擎参数。
type Application struct {
	args []string

	cfg      *zviper.Config
	snapshot snapshot.Config
	loggers  map[string]*zlog.MLogger

	sigOnce  sync.Once
	sigMu    sync.Mutex
	handlers []func(SignalKind, os.Signal)
}

// New 创建 Application。args 为空时使用 os.Args[1:]。
func New(args ...string) *Application {
	if len(args) == 0 {
		args = os.Args[1:]
	}
	return &Application{
		args:     args,
		snapshot: snapshot.DefaultConfig(),
	}
}

// Run 加载配置并初始化公共依赖。
// 配置文件路径的优先级：
//  1. 默认：./config.yaml（不存在时使用内置默认值）
//  2. 环境变量：GRAPHSNAP_CONFIG_FILE_PATH
//  3. 命令行：--config <path> 或 --config=<path>
func (a *Application) Run() error {
	hardware.InitMaxProcs()

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := a.initLogging(); err != nil {
		return err
	}
	if err := a.initSnapshotConfig(); err != nil {
		return err
	}
	metrics.Register(prometheus.DefaultRegisterer)
	return nil
}

// Config 返回已加载的配置。
func (a *Application) Config() *zviper.Config {
	return a.cfg
}

// SnapshotConfig 返回 snapshot 段解析后的引擎配置。
func (a *Application) SnapshotConfig() snapshot.Config {
	return a.snapshot
}

// Engine 按配置创建快照引擎，opts 可覆盖单项配置。
func (a *Application) Engine(opts ...snapshot.Option) *snapshot.Engine {
	base := []snapshot.Option{
		snapshot.WithConfig(a.snapshot),
		snapshot.WithLogger(a.Logger("snapshot")),
	}
	return snapshot.NewEngine(append(base, opts...)...)
}

// Logger 返回配置中的具名 Logger，未配置时退回全局 Logger。
func (a *Application) Logger(name string) *zlog.MLogger {
	if lg, ok := a.loggers[name]; ok && lg != nil {
		return lg
	}
	return zlog.With(zlog.FieldModule(name))
}

// OnSignal 注册信号回调。首次调用时开始监听 SIGINT/SIGTERM/SIGHUP。
func (a *Application) OnSignal(fn func(kind SignalKind, sig os.Signal)) {
	a.sigMu.Lock()
	a.handlers = append(a.handlers, fn)
	a.sigMu.Unlock()

	a.sigOnce.Do(func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		go a.dispatchSignals(ch)
	})
}

func (a *Application) dispatchSignals(ch <-chan os.Signal) {
	for sig := range ch {
		kind := SignalShutdown
		if sig == syscall.SIGHUP {
			kind = SignalReload
		}
		zlog.Info("signal received", zlog.FieldComponent("application"), zap.Stringer("signal", sig))
		a.sigMu.Lock()
		handlers := append([]func(SignalKind, os.Signal){}, a.handlers...)
		a.sigMu.Unlock()
		for _, h := range handlers {
			h(kind, sig)
		}
	}
}

// loadConfig 解析配置文件路径并通过 viper 加载。
func (a *Application) loadConfig() (*zviper.Config, error) {
	configPath := defaultConfigPath
	explicit := false

	if envPath := os.Getenv(envPrefix + "_CONFIG_FILE_PATH"); envPath != "" {
		configPath = envPath
		explicit = true
	}

	for i := 0; i < len(a.args); i++ {
		arg := a.args[i]
		if arg == "--config" || arg == "-config" {
			if i+1 >= len(a.args) {
				return nil, fmt.Errorf("missing value after --config")
			}
			configPath = a.args[i+1]
			explicit = true
			i++
			continue
		}
		if val, ok := strings.CutPrefix(arg, "--config="); ok {
			if val != "" {
				configPath = val
				explicit = true
			}
			continue
		}
	}

	cfg := zviper.New()
	cfg.BindEnv(envPrefix)
	defaults := snapshot.DefaultConfig()
	cfg.SetDefault("snapshot.max_depth", defaults.MaxDepth)
	cfg.SetDefault("snapshot.field_tag", defaults.FieldTag)
	cfg.SetDefault("snapshot.fallback_max_len", defaults.FallbackMaxLen)
	cfg.SetDefault("snapshot.sort_map_keys", defaults.SortMapKeys)
	cfg.SetDefault("snapshot.workers", defaults.Workers)

	if err := cfg.LoadFile(configPath); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to load config file %q: %w", configPath, err)
	}
	return cfg, nil
}

func (a *Application) initSnapshotConfig() error {
	// 整体反序列化，环境变量覆盖才会对嵌套键生效。
	root := struct {
		Snapshot snapshot.Config `mapstructure:"snapshot"`
	}{Snapshot: snapshot.DefaultConfig()}
	if err := a.cfg.Unmarshal(&root); err != nil {
		return fmt.Errorf("unmarshal snapshot config: %w", err)
	}
	if err := root.Snapshot.Validate(); err != nil {
		return err
	}
	a.snapshot = root.Snapshot
	return nil
}

// initLogging 初始化全局 Logger 与模块 Logger。
func (a *Application) initLogging() error {
	if err := a.initGlobalLoggerFromEnv(); err != nil {
		return err
	}
	return a.initModuleLoggersFromConfig()
}

// initGlobalLoggerFromEnv 根据 GRAPHSNAP_LOG_* 环境变量配置进程级 Logger。
//
//   - GRAPHSNAP_LOG_ENABLE: "1"/"true" 时开启输出，否则丢弃。
//   - GRAPHSNAP_LOG_LEVEL: 日志级别，默认 info。
//   - GRAPHSNAP_LOG_STDOUT: 是否输出到标准输出，默认 false。
//   - GRAPHSNAP_LOG_FILE_DIR / GRAPHSNAP_LOG_FILE: 日志目录与文件名。
//   - GRAPHSNAP_LOG_FORMAT: text 或 json，默认 text。
func (a *Application) initGlobalLoggerFromEnv() error {
	enabled := getenvBool(envPrefix+"_LOG_ENABLE", false)

	cfg := &zlog.Config{
		Level:               getenvDefault(envPrefix+"_LOG_LEVEL", "info"),
		Format:              getenvDefault(envPrefix+"_LOG_FORMAT", "text"),
		Stdout:              getenvBool(envPrefix+"_LOG_STDOUT", false),
		DisableErrorVerbose: true,
		File: zlog.FileLogConfig{
			RootPath: getenvDefault(envPrefix+"_LOG_FILE_DIR", ""),
			Filename: getenvDefault(envPrefix+"_LOG_FILE", ""),
		},
	}
	if !enabled {
		cfg.Stdout = false
		cfg.File.Filename = ""
	}

	logger, props, err := zlog.InitLogger(cfg)
	if err != nil {
		return fmt.Errorf("init global logger from env: %w", err)
	}
	zlog.ReplaceGlobals(logger, props)
	return nil
}

// initModuleLoggersFromConfig 按 logging 段创建具名 Logger。
//
//	logging:
//	  snapshot:
//	    level: debug
//	    stdout: true
func (a *Application) initModuleLoggersFromConfig() error {
	if a.cfg == nil {
		return nil
	}
	raw := make(map[string]zlog.Config)
	if err := a.cfg.UnmarshalKey("logging", &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}

	a.loggers = make(map[string]*zlog.MLogger, len(raw))
	for name, lc := range raw {
		cfgCopy := lc
		logger, _, err := zlog.InitLogger(&cfgCopy)
		if err != nil {
			return fmt.Errorf("init module logger %q: %w", name, err)
		}
		a.loggers[name] = &zlog.MLogger{Logger: logger.With(zlog.FieldModule(name))}
	}
	return nil
}

func getenvDefault(key, def string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	return val
}

func getenvBool(key string, def bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
