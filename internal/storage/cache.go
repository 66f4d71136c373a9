package storage

// DownloadCache 已导出会话的持久化缓存
// 独立于单次爬取存活, 令重复运行导出器对已导出会话成为no-op
// 除显式Clear外只追加; 每次检查都重读存储(存储是唯一跨导航的状态)
type DownloadCache struct {
	store *Store
}

// NewDownloadCache 创建下载缓存
func NewDownloadCache(store *Store) *DownloadCache {
	return &DownloadCache{store: store}
}

// List 返回全部已导出会话ID
func (c *DownloadCache) List() ([]string, error) {
	var ids []string
	if _, err := c.store.Get(KeyDownloadCache, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// Has 检查会话是否已导出
func (c *DownloadCache) Has(conversationID string) (bool, error) {
	ids, err := c.List()
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == conversationID {
			return true, nil
		}
	}
	return false, nil
}

// Add 记录会话已导出(幂等)
func (c *DownloadCache) Add(conversationID string) error {
	ids, err := c.List()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == conversationID {
			return nil
		}
	}
	ids = append(ids, conversationID)
	return c.store.Set(map[string]interface{}{KeyDownloadCache: ids})
}

// Clear 清空缓存
func (c *DownloadCache) Clear() error {
	return c.store.Remove(KeyDownloadCache)
}
