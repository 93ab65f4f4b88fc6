package core

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - 提供错误代码（Code）和消息（Message）
//   - 支持错误检查函数（IsXXX）
//
// 错误分层与处理策略：
//   - VALIDATION：入口拒绝，不进入日志
//   - NOT_FOUND：向调用方表现为空结果，不是故障
//   - UNAVAILABLE：内部降级到热度兜底，只有兜底也失败才向外暴露
//   - CONSISTENCY：重复/乱序事件，记日志后抑制
//   - CORRUPTION：存储损坏（如维度不符的向量），拒绝写入并告警，绝不静默修复
type DomainError struct {
	Code    string // 错误代码（如 "NOT_FOUND", "VALIDATION"）
	Message string // 错误消息
	Module  string // 模块名称（如 "store", "embedding", "log"）
}

func (e *DomainError) Error() string {
	return e.Message
}

// GetDomainError 获取 DomainError，如果不是则返回 nil
func GetDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	if domainErr, ok := err.(*DomainError); ok {
		return domainErr
	}
	return nil
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// 错误代码常量
const (
	ErrorCodeNotFound     = "NOT_FOUND"     // 资源不存在
	ErrorCodeNotSupported = "NOT_SUPPORTED" // 操作不支持
	ErrorCodeUnavailable  = "UNAVAILABLE"   // 依赖不可用/超时
	ErrorCodeValidation   = "VALIDATION"    // 输入无效或低于阈值
	ErrorCodeConsistency  = "CONSISTENCY"   // 重复/乱序事件
	ErrorCodeCorruption   = "CORRUPTION"    // 存储损坏（维度不符等）
)

// 模块名称常量
const (
	ModuleStore     = "store"     // KV 存储模块
	ModuleEmbedding = "embedding" // 向量存储模块
	ModuleLog       = "log"       // 交互日志模块
	ModuleProfile   = "profile"   // 画像聚合模块
	ModuleService   = "service"   // 推荐服务模块
)

func hasCode(err error, code string) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == code
	}
	return false
}

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool { return hasCode(err, ErrorCodeNotFound) }

// IsNotSupported 检查错误是否为 NOT_SUPPORTED
func IsNotSupported(err error) bool { return hasCode(err, ErrorCodeNotSupported) }

// IsUnavailable 检查错误是否为 UNAVAILABLE
func IsUnavailable(err error) bool { return hasCode(err, ErrorCodeUnavailable) }

// IsValidation 检查错误是否为 VALIDATION
func IsValidation(err error) bool { return hasCode(err, ErrorCodeValidation) }

// IsConsistency 检查错误是否为 CONSISTENCY
func IsConsistency(err error) bool { return hasCode(err, ErrorCodeConsistency) }

// IsCorruption 检查错误是否为 CORRUPTION
func IsCorruption(err error) bool { return hasCode(err, ErrorCodeCorruption) }
