package feast

import (
	"context"
	"strings"

	"github.com/artfolio/reco/core"
)

// 审核特征约定：
//   - moderation:blocked_creators 按 user_id 实体存储，逗号分隔的创作者 ID
//   - moderation:flagged_items    按 scope 实体（固定 "global"）存储，逗号分隔的物品 ID
const (
	FeatureBlockedCreators = "moderation:blocked_creators"
	FeatureFlaggedItems    = "moderation:flagged_items"
)

// ModerationProvider 把 Feast 在线特征库适配为审核协作方接口。
//
// 审核系统把拉黑/下架数据物化进 Feast 的在线存储，推荐服务按实体读取。
type ModerationProvider struct {
	client Client
}

// NewModerationProvider 创建 Feast 后端的审核数据提供方。
func NewModerationProvider(client Client) *ModerationProvider {
	return &ModerationProvider{client: client}
}

// BlockedCreators 返回用户拉黑的创作者 ID 列表。
func (p *ModerationProvider) BlockedCreators(ctx context.Context, userID string) ([]string, error) {
	resp, err := p.client.GetOnlineFeatures(ctx, &GetOnlineFeaturesRequest{
		Features:   []string{FeatureBlockedCreators},
		EntityRows: []map[string]interface{}{{"user_id": userID}},
	})
	if err != nil {
		return nil, err
	}
	return extractIDList(resp, FeatureBlockedCreators), nil
}

// FlaggedItems 返回平台下架/举报标记的物品 ID 列表。
func (p *ModerationProvider) FlaggedItems(ctx context.Context) ([]string, error) {
	resp, err := p.client.GetOnlineFeatures(ctx, &GetOnlineFeaturesRequest{
		Features:   []string{FeatureFlaggedItems},
		EntityRows: []map[string]interface{}{{"scope": "global"}},
	})
	if err != nil {
		return nil, err
	}
	return extractIDList(resp, FeatureFlaggedItems), nil
}

// extractIDList 从响应的首行提取逗号分隔的 ID 列表。
func extractIDList(resp *GetOnlineFeaturesResponse, feature string) []string {
	if resp == nil || len(resp.FeatureVectors) == 0 {
		return nil
	}
	raw, ok := resp.FeatureVectors[0].Values[feature]
	if !ok {
		return nil
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return nil
	}

	parts := strings.Split(s, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

// 确保 ModerationProvider 实现了领域接口
var _ core.ModerationProvider = (*ModerationProvider)(nil)
