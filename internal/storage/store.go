// Package storage 提供跨导航存活的持久化存储
// 这是唯一跨"进程"(相邻两次文档加载)共享的资源: 每次读写都直达磁盘,
// 不保留跨调用的内存缓存, 保证宿主上下文被销毁重建后状态仍可完整恢复
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// 固定存储键, 与导出队列状态(CrawlQueueState)逐字段对应
const (
	KeyDownloadCache = "grokExportedChats" // 已导出会话ID集合(独立于单次爬取)

	KeyQueue      = "grokExportQueue"
	KeyIndex      = "grokExportIndex"
	KeyFormat     = "grokExportFormat"
	KeyAutoScroll = "grokExportAutoScroll"
	KeyTotal      = "grokExportTotal"
	KeyRetry      = "grokExportRetry"
	KeyFailed     = "grokExportFailed"
	KeyRetryMode  = "grokExportRetryMode"
	KeyRunID      = "grokExportRunID"
)

// crawlKeys 一次爬取的全部状态键(Done时整体清除)
var crawlKeys = []string{
	KeyQueue, KeyIndex, KeyFormat, KeyAutoScroll,
	KeyTotal, KeyRetry, KeyFailed, KeyRetryMode, KeyRunID,
}

// Store 基于单个JSON文件的键值存储
// 所有操作都是读-改-写: 先整体加载文档, 修改后整体回写
// 单写者约束由调用方的串行导航保证, 因此不加文件锁
type Store struct {
	path string
}

// NewStore 创建存储实例, 文件不存在时首次写入自动创建
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("存储路径为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("创建存储目录失败: %w", err)
	}
	return &Store{path: path}, nil
}

// load 读取整个存储文档
func (s *Store) load() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, fmt.Errorf("读取存储文件失败: %w", err)
	}

	doc := map[string]json.RawMessage{}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("解析存储文件失败: %w", err)
	}
	return doc, nil
}

// save 整体回写存储文档
// 先写临时文件再原子改名: 写入必须在触发导航前完整落盘, 否则状态会丢失
func (s *Store) save(doc map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化存储文档失败: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("写入存储文件失败: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("替换存储文件失败: %w", err)
	}
	return nil
}

// Get 读取单个键到out, 键不存在时返回false
func (s *Store) Get(key string, out interface{}) (bool, error) {
	doc, err := s.load()
	if err != nil {
		return false, err
	}
	raw, ok := doc[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("解析存储键失败 [%s]: %w", key, err)
	}
	return true, nil
}

// Set 写入一批键值
func (s *Store) Set(values map[string]interface{}) error {
	doc, err := s.load()
	if err != nil {
		return err
	}
	for key, value := range values {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("序列化存储键失败 [%s]: %w", key, err)
		}
		doc[key] = raw
	}
	return s.save(doc)
}

// Remove 删除一批键
func (s *Store) Remove(keys ...string) error {
	doc, err := s.load()
	if err != nil {
		return err
	}
	for _, key := range keys {
		delete(doc, key)
	}
	return s.save(doc)
}

// Has 检查键是否存在
func (s *Store) Has(key string) (bool, error) {
	doc, err := s.load()
	if err != nil {
		return false, err
	}
	_, ok := doc[key]
	return ok, nil
}
