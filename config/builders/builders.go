// Package builders 在 init 中注册可由配置构建的 Node。
//
// 依赖存储实例的 Node（recall.affinity、recall.hot、recall.fanout）无法从纯配置
// 构建，由 service.Engine 以编程方式组装。
package builders

import (
	"fmt"

	"github.com/artfolio/reco/config"
	"github.com/artfolio/reco/filter"
	"github.com/artfolio/reco/model"
	"github.com/artfolio/reco/pipeline"
	"github.com/artfolio/reco/pkg/conv"
	"github.com/artfolio/reco/rank"
	"github.com/artfolio/reco/rerank"
)

func init() {
	config.Register("rank.score", BuildScoreNode)
	config.Register("rerank.diversity", BuildDiversityNode)
	config.Register("rerank.topn", BuildTopNNode)
	config.Register("filter", BuildFilterNode)
	config.Register("recall.affinity", buildStoreBackedNode)
	config.Register("recall.hot", buildStoreBackedNode)
}

func BuildScoreNode(cfg map[string]interface{}) (pipeline.Node, error) {
	weights := map[string]float64{
		"similarity": conv.ConfigGetFloat(cfg, "weight_similarity", 0.6),
		"recency":    conv.ConfigGetFloat(cfg, "weight_recency", 0.2),
		"popularity": conv.ConfigGetFloat(cfg, "weight_popularity", 0.2),
	}
	return &rank.ScoreNode{
		Model: &model.LinearModel{
			Bias:    conv.ConfigGetFloat(cfg, "bias", 0),
			Weights: weights,
		},
		HalfLifeHours: conv.ConfigGetFloat(cfg, "recency_half_life_hours", 72),
	}, nil
}

func BuildDiversityNode(cfg map[string]interface{}) (pipeline.Node, error) {
	return &rerank.Diversity{
		MaxPerCreator:  conv.ConfigGetInt(cfg, "max_per_creator", 3),
		MaxPerCategory: conv.ConfigGetInt(cfg, "max_per_category", 3),
		N:              conv.ConfigGetInt(cfg, "n", 0),
	}, nil
}

func BuildTopNNode(cfg map[string]interface{}) (pipeline.Node, error) {
	return &rerank.TopNNode{N: conv.ConfigGetInt(cfg, "n", 0)}, nil
}

func BuildFilterNode(cfg map[string]interface{}) (pipeline.Node, error) {
	filtersConfig, ok := cfg["filters"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("filters not found or invalid")
	}

	filters := make([]filter.Filter, 0, len(filtersConfig))
	for _, fc := range filtersConfig {
		filterMap, ok := fc.(map[string]interface{})
		if !ok {
			continue
		}
		filterType := conv.ConfigGet[string](filterMap, "type", "")
		switch filterType {
		case "seen":
			filters = append(filters, &filter.SeenFilter{})
		case "creator_block":
			filters = append(filters, &filter.CreatorBlockFilter{})
		case "flagged":
			filters = append(filters, &filter.FlaggedFilter{})
		case "rule":
			expr := conv.ConfigGet[string](filterMap, "expr", "")
			if expr == "" {
				return nil, fmt.Errorf("rule filter requires expr")
			}
			filters = append(filters, &filter.RuleFilter{Expr: expr})
		default:
			return nil, fmt.Errorf("unknown filter type: %s", filterType)
		}
	}

	return &filter.FilterNode{Filters: filters}, nil
}

func buildStoreBackedNode(cfg map[string]interface{}) (pipeline.Node, error) {
	return nil, fmt.Errorf("recall nodes require store instances, wire them programmatically (supported from config: %v)", config.SupportedTypes())
}
