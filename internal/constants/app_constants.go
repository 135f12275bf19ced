package constants

const (
	// DefaultSubject 未配置 subject 时使用的记忆分区名
	DefaultSubject = "default"

	// SearchAPIFreeTierLimit SearchAPI 免费额度（每月请求数）
	SearchAPIFreeTierLimit = 100

	// MemoryHintPrefix 相似历史回答在提示词中的前缀
	MemoryHintPrefix = "Note: Similar question was asked before. Use this as reference but ensure accuracy: "
)
