package models

import "time"

// StatusEvent 导出状态事件
// 每次重要状态变化后广播给展示层; 发送方不等待消费者, 绝不阻塞爬取推进
type StatusEvent struct {
	Status    string    `json:"status"`               // 人类可读状态描述
	Done      bool      `json:"done"`                 // 是否为终态报告(成功或不可恢复)
	DebugInfo string    `json:"debug_info,omitempty"` // 可选的诊断信息
	At        time.Time `json:"at"`                   // 事件时间
}

// StatusSink 状态事件接收端
// 实现方必须保证Emit非阻塞(内部丢弃或缓冲均可)
type StatusSink interface {
	Emit(event StatusEvent)
}

// ChannelSink 基于buffered channel的状态接收端
// channel满时直接丢弃事件, 保证发送方永不阻塞
type ChannelSink struct {
	C chan StatusEvent
}

// NewChannelSink 创建状态channel接收端
func NewChannelSink(buffer int) *ChannelSink {
	if buffer < 1 {
		buffer = 64
	}
	return &ChannelSink{C: make(chan StatusEvent, buffer)}
}

// Emit 非阻塞发送状态事件
func (cs *ChannelSink) Emit(event StatusEvent) {
	if event.At.IsZero() {
		event.At = time.Now()
	}
	select {
	case cs.C <- event:
	default:
		// channel已满, 丢弃事件, 状态通道不允许反压爬取
	}
}

// Close 关闭事件channel
func (cs *ChannelSink) Close() {
	close(cs.C)
}
