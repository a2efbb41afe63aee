package hardware

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	"github.com/lk2023060901/graphsnap-go/pkg/log"
)

var initMaxProcsOnce sync.Once

// InitMaxProcs 依据容器 CPU 配额设置 GOMAXPROCS，多次调用只生效一次。
func InitMaxProcs() {
	initMaxProcsOnce.Do(func() {
		if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
			log.Info(fmt.Sprintf(format, args...))
		})); err != nil {
			log.Warn("failed to set maxprocs", zap.Error(err))
		}
	})
}

// GetCPUNum 返回当前进程可用的 CPU 数量。
func GetCPUNum() int {
	cur := runtime.GOMAXPROCS(0)
	if cur <= 0 {
		cur = runtime.NumCPU()
	}
	return cur
}

// GetMemoryCount 返回主机内存总量，单位字节，获取失败时返回 0。
func GetMemoryCount() uint64 {
	stats, err := mem.VirtualMemory()
	if err != nil {
		log.Warn("failed to get memory count", zap.Error(err))
		return 0
	}
	return stats.Total
}

// GetUsedMemoryCount 返回主机已使用内存，单位字节，获取失败时返回 0。
func GetUsedMemoryCount() uint64 {
	stats, err := mem.VirtualMemory()
	if err != nil {
		log.Warn("failed to get used memory count", zap.Error(err))
		return 0
	}
	return stats.Used
}
