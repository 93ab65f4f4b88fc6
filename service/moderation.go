package service

import (
	"context"

	"github.com/artfolio/reco/core"
	"github.com/artfolio/reco/filter"
)

const (
	blockedCreatorsKeyPrefix = "moderation:blocked"
	flaggedItemsKey          = "moderation:flagged"
)

// StoreModeration 是 KV 存储后端的审核数据提供方，
// 适合单体部署或没有在线特征库的环境。
type StoreModeration struct {
	adapter *filter.StoreAdapter
}

// NewStoreModeration 创建 KV 后端的审核数据提供方。
func NewStoreModeration(s core.Store) *StoreModeration {
	return &StoreModeration{adapter: filter.NewStoreAdapter(s)}
}

func (m *StoreModeration) BlockedCreators(ctx context.Context, userID string) ([]string, error) {
	return m.adapter.GetBlockedCreators(ctx, userID, blockedCreatorsKeyPrefix)
}

func (m *StoreModeration) FlaggedItems(ctx context.Context) ([]string, error) {
	return m.adapter.GetFlaggedItems(ctx, flaggedItemsKey)
}

var _ core.ModerationProvider = (*StoreModeration)(nil)
