package diag

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"notefix/internal/repair"
)

// Terminal: 终端信息提示（非日志），逐行输出修复进度与汇总。
// - 输出到提供的 io.Writer（默认 stderr，避免与 "-" 输出到 stdout 的文档混在一起）；
// - 并发安全；写失败后进入禁用态为 no-op。
// 实现 repair.Reporter。
type Terminal struct {
	w       io.Writer
	enabled bool
	mu      sync.Mutex
}

var _ repair.Reporter = (*Terminal)(nil)

// NewTerminal 构造终端提示器。enabled=false 时总是 no-op。
func NewTerminal(w io.Writer, enabled bool) *Terminal {
	if w == nil {
		w = os.Stderr
	}
	return &Terminal{w: w, enabled: enabled}
}

// Loading: 开始读取源文档。
func (t *Terminal) Loading(src string) {
	t.printf("读取备份文件: %s", safe(src))
}

// RepairStart: 开始修复阶段。
func (t *Terminal) RepairStart() {
	t.printf("\n修复记录中...")
}

// Fixed 实现 repair.Reporter。
func (t *Terminal) Fixed(f repair.Fix) {
	t.printf("  已修复记录 %s（分组 %s）- 补充 %s: %d", safe(f.Label), safe(f.Group), f.Field, f.Value)
}

// FlatMissing 实现 repair.Reporter。
func (t *Terminal) FlatMissing(index int, label, field string) {
	t.printf("  警告：扁平集合第 %d 条记录 %s 同样缺少 %s（无法自动修复）", index, safe(label), field)
}

// GroupSkipped 实现 repair.Reporter。
func (t *Terminal) GroupSkipped(key string, err error) {
	t.printf("  跳过分组 %q: %v", key, err)
}

// Repaired: 修复阶段汇总。
func (t *Terminal) Repaired(fixed, flatMissing int) {
	t.printf("\n共修复 %d 条记录", fixed)
	if flatMissing > 0 {
		t.printf("扁平集合中有 %d 条记录缺少标识（仅报告）", flatMissing)
	}
}

// Saving: 开始写出；dryRun 时仅提示不写出。
func (t *Terminal) Saving(dest string, dryRun bool) {
	if dryRun {
		t.printf("\n演练模式：不写出 %s", safe(dest))
		return
	}
	t.printf("\n保存修复后的备份: %s", safe(dest))
}

// RunFinish: 结束总览（成功时输出包含修复总数的汇总行）。
func (t *Terminal) RunFinish(ok bool, fixed int, dur time.Duration) {
	if !ok {
		t.printf("[fail] 用时 %s", formatDur(dur))
		return
	}
	t.printf("\n[ok] 成功修复 %d 条记录 | 用时 %s", fixed, formatDur(dur))
}

func (t *Terminal) printf(format string, a ...any) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	if _, err := fmt.Fprintf(t.w, format+"\n", a...); err != nil {
		// 写失败即禁用
		t.enabled = false
	}
}

func safe(s string) string {
	// 避免换行等控制字符污染终端
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return s
}

func formatDur(d time.Duration) string {
	if d < time.Second {
		ms := d.Milliseconds()
		if ms <= 0 {
			ms = 0
		}
		return fmt.Sprintf("%dms", ms)
	}
	// 秒，保留 1 位小数
	s := float64(d.Milliseconds()) / 1000.0
	return fmt.Sprintf("%.1fs", s)
}
