package embedding

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/artfolio/reco/core"
)

// Ingestor 消费向量生成结果并写入向量库。
//
// 处理策略：
//   - 生成成功：Put 写入向量，物品状态推进为 Ready
//   - 生成失败：记日志，物品保持 Pending/Stale，等待重试
//   - 维度不符：Put 返回 CORRUPTION，告警日志，绝不静默截断或补零
type Ingestor struct {
	store  core.EmbeddingStore
	logger zerolog.Logger
}

// NewIngestor 创建向量结果接入器。
func NewIngestor(store core.EmbeddingStore, logger zerolog.Logger) *Ingestor {
	return &Ingestor{
		store:  store,
		logger: logger.With().Str("component", "embedding.ingestor").Logger(),
	}
}

// Run 持续消费 results 通道，直到通道关闭或 ctx 取消。
// 通常在独立 goroutine 中运行。
func (in *Ingestor) Run(ctx context.Context, results <-chan Result) {
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-results:
			if !ok {
				return
			}
			in.handle(ctx, res)
		}
	}
}

// Ingest 处理单条生成结果，便于同步调用方（测试/脚本）使用。
func (in *Ingestor) Ingest(ctx context.Context, res Result) error {
	return in.handle(ctx, res)
}

func (in *Ingestor) handle(ctx context.Context, res Result) error {
	if res.Err != nil {
		in.logger.Warn().
			Str("item_id", res.ItemID).
			Err(res.Err).
			Msg("embedding generation failed, item stays non-ready")
		return res.Err
	}

	if err := in.store.Put(ctx, res.ItemID, res.Vector); err != nil {
		if core.IsCorruption(err) {
			in.logger.Error().
				Str("item_id", res.ItemID).
				Int("got_dimension", len(res.Vector)).
				Int("want_dimension", in.store.Dimension()).
				Msg("embedding dimension mismatch, write rejected")
		} else {
			in.logger.Error().
				Str("item_id", res.ItemID).
				Err(err).
				Msg("embedding write failed")
		}
		return err
	}

	in.logger.Debug().Str("item_id", res.ItemID).Msg("embedding ready")
	return nil
}

// MarkEdited 在物品内容被编辑后调用，把已 Ready 的向量标记为 Stale
// 并重新排队生成。
func (in *Ingestor) MarkEdited(ctx context.Context, gen Generator, itemID string) error {
	if err := in.store.MarkStale(ctx, itemID); err != nil {
		return err
	}
	if gen == nil {
		return nil
	}
	return gen.Submit(itemID)
}
