package core

import "time"

// AffinityProfile 是用户的衰减兴趣向量：由交互事件增量折叠而来。
//
// 它是派生状态而非事实源——事实源是交互日志，画像随时可以从日志重放重建。
// 同一用户的更新必须按事件时间串行；不同用户之间相互独立、可并发。
type AffinityProfile struct {
	UserID     string    `json:"user_id"`
	Vector     []float64 `json:"vector"`
	UpdatedAt  time.Time `json:"updated_at"`
	EventCount int64     `json:"event_count"`
}

// NewAffinityProfile 创建指定维度的零值画像。
func NewAffinityProfile(userID string, dimension int) *AffinityProfile {
	return &AffinityProfile{
		UserID: userID,
		Vector: make([]float64, dimension),
	}
}

// IsZero 判断画像是否仍是冷启动状态（无向量或全零向量）。
func (p *AffinityProfile) IsZero() bool {
	if p == nil || len(p.Vector) == 0 {
		return true
	}
	for _, v := range p.Vector {
		if v != 0 {
			return false
		}
	}
	return true
}

// Clone 返回画像的深拷贝，读路径使用拷贝以避免与写路径共享底层数组。
func (p *AffinityProfile) Clone() *AffinityProfile {
	if p == nil {
		return nil
	}
	cp := &AffinityProfile{
		UserID:     p.UserID,
		UpdatedAt:  p.UpdatedAt,
		EventCount: p.EventCount,
		Vector:     make([]float64, len(p.Vector)),
	}
	copy(cp.Vector, p.Vector)
	return cp
}
