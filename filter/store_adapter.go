package filter

import (
	"context"
	"encoding/json"

	"github.com/artfolio/reco/core"
)

// StoreAdapter 将 core.Store 适配为排除集合的读取接口，
// 供服务层在执行流水线前预取拉黑/下架集合。
type StoreAdapter struct {
	store core.Store
}

// NewStoreAdapter 创建一个 core.Store 适配器。
func NewStoreAdapter(s core.Store) *StoreAdapter {
	return &StoreAdapter{store: s}
}

// GetBlockedCreators 从 Store 读取用户拉黑的创作者列表。
// key 格式：{keyPrefix}:{userID}，值为 JSON 字符串数组。
func (a *StoreAdapter) GetBlockedCreators(ctx context.Context, userID string, keyPrefix string) ([]string, error) {
	return a.getIDList(ctx, keyPrefix+":"+userID)
}

// GetFlaggedItems 从 Store 读取平台下架/举报标记的物品列表。
// key 为全局 key，值为 JSON 字符串数组。
func (a *StoreAdapter) GetFlaggedItems(ctx context.Context, key string) ([]string, error) {
	return a.getIDList(ctx, key)
}

func (a *StoreAdapter) getIDList(ctx context.Context, key string) ([]string, error) {
	data, err := a.store.Get(ctx, key)
	if err != nil {
		if core.IsStoreNotFound(err) {
			// 没有记录视为空集合
			return nil, nil
		}
		return nil, err
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, core.NewDomainError(core.ModuleStore, core.ErrorCodeCorruption,
			"malformed exclusion list at key "+key)
	}

	return ids, nil
}
