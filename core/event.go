package core

import "time"

// Source 是交互事件来源的封闭枚举。
// 在入口处校验，拒绝枚举之外的字符串，避免日志中混入脏数据。
type Source string

const (
	SourceGallery        Source = "gallery"        // 画廊信息流
	SourceSearch         Source = "search"         // 搜索结果页
	SourceRecommendation Source = "recommendation" // 推荐位
	SourceProfile        Source = "profile"        // 创作者主页
)

// ParseSource 校验并转换来源字符串。未知来源返回 VALIDATION 错误。
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceGallery, SourceSearch, SourceRecommendation, SourceProfile:
		return Source(s), nil
	default:
		return "", NewDomainError(ModuleLog, ErrorCodeValidation, "unknown interaction source: "+s)
	}
}

// InteractionEvent 是一次合格浏览的不可变记录。
// 一旦写入交互日志就不再修改；画像可由事件序列完整重放恢复。
type InteractionEvent struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	ItemID          string    `json:"item_id"`
	DurationSeconds float64   `json:"duration_seconds"`
	Source          Source    `json:"source"`
	Timestamp       time.Time `json:"timestamp"`
}

// Validate 校验必填字段与最小浏览时长阈值。
// 低于阈值的事件在边界处拒绝，不进入日志。
func (e *InteractionEvent) Validate(minViewSeconds float64) error {
	if e == nil {
		return NewDomainError(ModuleLog, ErrorCodeValidation, "event is nil")
	}
	if e.UserID == "" {
		return NewDomainError(ModuleLog, ErrorCodeValidation, "user_id is required")
	}
	if e.ItemID == "" {
		return NewDomainError(ModuleLog, ErrorCodeValidation, "item_id is required")
	}
	if _, err := ParseSource(string(e.Source)); err != nil {
		return err
	}
	if e.DurationSeconds < minViewSeconds {
		return NewDomainError(ModuleLog, ErrorCodeValidation, "view duration below qualifying threshold")
	}
	return nil
}
