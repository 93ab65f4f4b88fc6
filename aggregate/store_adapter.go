package aggregate

import (
	"context"
	"encoding/json"

	"github.com/artfolio/reco/core"
)

const profileKeyPrefix = "profile:"

// ProfileStore 是画像存储的领域接口。
type ProfileStore interface {
	// GetProfile 返回用户画像，不存在返回 NOT_FOUND
	GetProfile(ctx context.Context, userID string) (*core.AffinityProfile, error)

	// SaveProfile 持久化画像
	SaveProfile(ctx context.Context, p *core.AffinityProfile) error

	// DeleteProfile 删除画像（仅用户删除路径使用）
	DeleteProfile(ctx context.Context, userID string) error
}

// StoreAdapter 将 core.Store 适配为 ProfileStore（JSON 序列化）。
type StoreAdapter struct {
	store core.Store
}

// NewStoreAdapter 创建一个 core.Store 适配器。
func NewStoreAdapter(s core.Store) *StoreAdapter {
	return &StoreAdapter{store: s}
}

func (a *StoreAdapter) GetProfile(ctx context.Context, userID string) (*core.AffinityProfile, error) {
	data, err := a.store.Get(ctx, profileKeyPrefix+userID)
	if err != nil {
		if core.IsStoreNotFound(err) {
			return nil, core.NewDomainError(core.ModuleProfile, core.ErrorCodeNotFound, "profile not found: "+userID)
		}
		return nil, err
	}
	var p core.AffinityProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, core.NewDomainError(core.ModuleProfile, core.ErrorCodeCorruption, "corrupt profile for user "+userID)
	}
	return &p, nil
}

func (a *StoreAdapter) SaveProfile(ctx context.Context, p *core.AffinityProfile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return a.store.Set(ctx, profileKeyPrefix+p.UserID, data)
}

func (a *StoreAdapter) DeleteProfile(ctx context.Context, userID string) error {
	return a.store.Delete(ctx, profileKeyPrefix+userID)
}

var _ ProfileStore = (*StoreAdapter)(nil)
