package pipeline

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/houzhh15/speech-corpus/pkg/metrics"
)

// Status 单个切片处理结果状态
type Status string

const (
	StatusOK      Status = "ok"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Outcome 单个切片在某阶段的处理结果：成功，或带原因代码的失败/跳过
type Outcome struct {
	ChunkID  string
	Status   Status
	Reason   Code
	Err      error
	Duration time.Duration
}

// OK 创建成功结果
func OK(chunkID string) Outcome {
	return Outcome{ChunkID: chunkID, Status: StatusOK}
}

// Failed 创建失败结果
func Failed(chunkID string, reason Code, err error) Outcome {
	return Outcome{ChunkID: chunkID, Status: StatusFailed, Reason: reason, Err: err}
}

// Skipped 创建跳过结果（无需处理或者预期内的空结果）
func Skipped(chunkID string, reason Code) Outcome {
	return Outcome{ChunkID: chunkID, Status: StatusSkipped, Reason: reason}
}

// Summary 汇总一个阶段内全部切片结果，可被多个 worker 并发写入
type Summary struct {
	Stage   string
	RunID   string
	Started time.Time

	mu       sync.Mutex
	total    int
	byStatus map[Status]int
	byReason map[Code]int
	failed   []Outcome
}

// NewSummary 创建阶段汇总
func NewSummary(stage, runID string) *Summary {
	return &Summary{
		Stage:    stage,
		RunID:    runID,
		Started:  time.Now(),
		byStatus: make(map[Status]int),
		byReason: make(map[Code]int),
	}
}

// Add 记录一个结果
func (s *Summary) Add(o Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.byStatus[o.Status]++
	if o.Reason != "" {
		s.byReason[o.Reason]++
	}
	if o.Status == StatusFailed {
		s.failed = append(s.failed, o)
	}
	metrics.RecordChunkOutcome(s.Stage, string(o.Status), string(o.Reason))
	if o.Duration > 0 {
		metrics.RecordChunkDuration(s.Stage, o.Duration.Seconds())
	}
}

// Total 返回已记录的结果数
func (s *Summary) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Count 返回指定状态的结果数
func (s *Summary) Count(st Status) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byStatus[st]
}

// Reasons 返回按原因代码统计的副本
func (s *Summary) Reasons() map[Code]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Code]int, len(s.byReason))
	for k, v := range s.byReason {
		out[k] = v
	}
	return out
}

// Failures 返回失败结果，按切片 ID 排序
func (s *Summary) Failures() []Outcome {
	s.mu.Lock()
	out := append([]Outcome(nil), s.failed...)
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkID < out[j].ChunkID })
	return out
}

// Log 在阶段结束时输出一行汇总日志
func (s *Summary) Log(ctx context.Context, logger *slog.Logger) {
	reasons := s.Reasons()
	keys := make([]string, 0, len(reasons))
	for k := range reasons {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	reasonAttrs := make([]any, 0, len(keys))
	for _, k := range keys {
		reasonAttrs = append(reasonAttrs, slog.Int(k, reasons[Code(k)]))
	}

	elapsed := time.Since(s.Started)
	metrics.RecordStageDuration(s.Stage, elapsed.Seconds())

	level := slog.LevelInfo
	if s.Count(StatusFailed) > 0 {
		level = slog.LevelWarn
	}
	logger.LogAttrs(ctx, level, "stage finished",
		slog.String("stage", s.Stage),
		slog.String("run_id", s.RunID),
		slog.Int("total", s.Total()),
		slog.Int("ok", s.Count(StatusOK)),
		slog.Int("skipped", s.Count(StatusSkipped)),
		slog.Int("failed", s.Count(StatusFailed)),
		slog.Group("reasons", reasonAttrs...),
		slog.Duration("elapsed", elapsed),
	)
}
