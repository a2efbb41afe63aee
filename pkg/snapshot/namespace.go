package snapshot

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/graphsnap-go/pkg/metrics"
)

// Module 是命名空间下的一个可加载单元，Types 返回该模块定义的类型原型。
type Module struct {
	Path  string
	Types func() ([]any, error)
}

// Namespace 描述一组按导入路径组织的模块，可以嵌套。
// 只有定义在 Path 之下的结构体类型会被注册。
type Namespace struct {
	Path       string
	Modules    []Module
	Namespaces []Namespace
}

// ModuleFailure 记录一个加载失败的模块。
type ModuleFailure struct {
	Path string
	Err  error
}

// DiscoveryResult 是一次命名空间扫描的结果。
type DiscoveryResult struct {
	// Registered 为本次注册的类型数量。
	Registered int
	// Skipped 为因不属于命名空间或重名而跳过的原型数量。
	Skipped int
	// Failures 为加载失败的模块，按路径排序。
	Failures []ModuleFailure
}

// RegisterNamespace 扫描 ns 并注册其中的类型，返回注册数量。
// 加载失败的模块会被跳过并记录日志。
func (r *Registry) RegisterNamespace(ns Namespace) int {
	return r.Discover(ns).Registered
}

// Discover 与 RegisterNamespace 相同，但返回完整的扫描结果。
//
// 同一次扫描中同名类型以先出现者为准，扫描结果整体覆盖已有注册。
func (r *Registry) Discover(ns Namespace) DiscoveryResult {
	var result DiscoveryResult
	modules := flattenModules(ns)
	sort.SliceStable(modules, func(i, j int) bool {
		return modules[i].Path < modules[j].Path
	})

	found := make(map[string]reflect.Type)
	order := make([]string, 0)
	for _, m := range modules {
		prototypes, err := loadModule(m)
		if err != nil {
			r.Logger().Warn("skip module during namespace discovery",
				zap.String("namespace", ns.Path),
				zap.String("module", m.Path),
				zap.Error(err))
			metrics.SnapshotDiscoverySkipped.Inc()
			result.Failures = append(result.Failures, ModuleFailure{Path: m.Path, Err: err})
			continue
		}
		for _, p := range prototypes {
			t := indirectType(reflect.TypeOf(p))
			if t == nil || t.Kind() != reflect.Struct || t.Name() == "" || !definedUnder(t, ns.Path) {
				result.Skipped++
				continue
			}
			if _, ok := found[t.Name()]; ok {
				result.Skipped++
				continue
			}
			found[t.Name()] = t
			order = append(order, t.Name())
		}
	}

	for _, name := range order {
		t := found[name]
		desc := Descriptor{Name: name, Type: t}
		if old, err := r.Resolve(name); err == nil && old.Type == t {
			desc.Exclude = old.Exclude
		}
		if err := r.Register(name, desc); err != nil {
			result.Skipped++
			continue
		}
		result.Registered++
	}

	r.Logger().Debug("namespace discovery finished",
		zap.String("namespace", ns.Path),
		zap.Int("registered", result.Registered),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", len(result.Failures)))
	return result
}

func flattenModules(ns Namespace) []Module {
	modules := append([]Module(nil), ns.Modules...)
	for _, child := range ns.Namespaces {
		modules = append(modules, flattenModules(child)...)
	}
	return modules
}

func loadModule(m Module) (prototypes []any, err error) {
	if m.Types == nil {
		return nil, errors.Newf("module %s has no loader", m.Path)
	}
	defer func() {
		if x := recover(); x != nil {
			err = errors.Newf("module %s panicked: %v", m.Path, x)
		}
	}()
	prototypes, err = m.Types()
	if err != nil {
		return nil, errors.Wrapf(err, "load module %s", m.Path)
	}
	return prototypes, nil
}

func definedUnder(t reflect.Type, path string) bool {
	pkg := t.PkgPath()
	if path == "" {
		return true
	}
	return pkg == path || strings.HasPrefix(pkg, path+"/")
}

// String 便于在日志中输出失败模块。
func (f ModuleFailure) String() string {
	return fmt.Sprintf("%s: %v", f.Path, f.Err)
}
