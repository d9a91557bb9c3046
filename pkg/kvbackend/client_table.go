package kvbackend

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// clientTable 记录每个客户端最后执行的请求号，重放日志时同一请求只执行一次
type clientTable struct {
	cache *lru.Cache[string, uint64]
}

func newClientTable(size int) (*clientTable, error) {
	if size <= 0 {
		size = 1
	}
	cache, err := lru.New[string, uint64](size)
	if err != nil {
		return nil, err
	}
	return &clientTable{cache: cache}, nil
}

func (c *clientTable) get(clientID string) (uint64, bool) {
	return c.cache.Get(clientID)
}

func (c *clientTable) set(clientID string, requestNum uint64) {
	c.cache.Add(clientID, requestNum)
}

// duplicate 请求号不大于已执行的请求号
func duplicate(last uint64, ok bool, requestNum uint64) bool {
	return ok && requestNum <= last
}
