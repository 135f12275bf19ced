package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// MemoryModulePrefix 问答记忆模块
	MemoryModulePrefix = "memory"
	// WebModulePrefix 联网补充模块
	WebModulePrefix = "web"

	// EntityEntries 记忆条目列表实体
	EntityEntries = "entries"
	// EntityQuota 配额计数实体
	EntityQuota = "quota"

	// KeyMemoryEntries 问答记忆的 JSON 数组 (STRING)
	// 格式: app:memory:entries:{subject}
	KeyMemoryEntries = AppPrefix + ":" + MemoryModulePrefix + ":" + EntityEntries + ":%s"

	// KeySearchAPIQuota SearchAPI 当月已用请求数 (STRING, INCR)
	// 格式: app:web:quota:{yyyymm}
	KeySearchAPIQuota = AppPrefix + ":" + WebModulePrefix + ":" + EntityQuota + ":%s"
)
