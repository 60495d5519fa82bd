package apiclient

// Error 是客户端唯一的错误类型，三类失败靠字段有无区分：
//   - HTTP 错误：StatusCode > 0，Response 携带原始响应体；
//   - 网络错误：StatusCode == 0，Message 来自传输层错误；
//   - 超时：StatusCode == 0，Message 固定为 "request timed out"。
type Error struct {
	Message    string
	StatusCode int
	Response   []byte
}

func (e *Error) Error() string { return e.Message }

// IsTimeout 判断是否为超时失败。
func (e *Error) IsTimeout() bool {
	return e.StatusCode == 0 && e.Message == timeoutMessage
}
