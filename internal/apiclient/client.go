// Package apiclient 提供访问 backview 后端 API 的轻量 HTTP 客户端：
// 每次调用发出且仅发出一次请求，统一超时、头部合成与错误归一。
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	defaultPrefix  = "/api"
	defaultTimeout = 30 * time.Second
	timeoutMessage = "request timed out"

	maxBodyBytes = 8 << 20
)

// Config 构造 Client 所需的全部参数。
type Config struct {
	BaseURL string
	// Prefix 拼在所有 path 之前，默认 /api。
	Prefix string
	// Timeout 为单次请求的默认预算，默认 30s。
	Timeout time.Duration
}

// Client 无状态：每次调用独立持有自己的超时与取消信号。
type Client struct {
	baseURL    *url.URL
	prefix     string
	timeout    time.Duration
	httpClient *http.Client
}

// Options 单次请求级别的可选项；Headers 在键冲突时覆盖默认头。
type Options struct {
	Headers map[string]string
	Timeout time.Duration
}

func New(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, fmt.Errorf("apiclient: base_url 不能为空")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("apiclient: 解析 base_url 失败: %w", err)
	}
	prefix := strings.TrimSpace(cfg.Prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: parsed,
		prefix:  prefix,
		timeout: timeout,
		// http.Client 不设全局 Timeout，预算全部交给每次调用的 ctx。
		httpClient: &http.Client{},
	}, nil
}

// SetHTTPClient sets the HTTP client for testing.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Do 发出一次请求并把结果归一成 (payload, *Error)。
//   - 2xx：原样返回响应体（JSON），不做进一步校验；
//   - 非 2xx：读取 body 中的 message/error 字段作为错误消息，缺省回落
//     到 "<status> <statusText>"，StatusCode 置为响应码；
//   - 传输失败：StatusCode 为 0，消息取自底层错误；
//   - 超时：底层调用被取消后重映射为固定的 timeout 消息。
func (c *Client) Do(ctx context.Context, method, path string, body any, opt *Options) (json.RawMessage, error) {
	if c == nil || c.httpClient == nil {
		return nil, fmt.Errorf("apiclient 未初始化")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint, err := c.resolveEndpoint(path)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("序列化请求体失败: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	timeout := c.timeout
	if opt != nil && opt.Timeout > 0 {
		timeout = opt.Timeout
	}
	// 超时即取消：ctx 到期会真正中断在途传输；提前完成时 defer cancel
	// 负责清掉计时器，晚到的超时不会再打断已结束的调用。
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("构造请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if opt != nil {
		for k, v := range opt.Headers {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &Error{Message: timeoutMessage}
		}
		return nil, &Error{Message: transportMessage(err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &Error{Message: timeoutMessage}
		}
		return nil, &Error{Message: transportMessage(err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{
			Message:    errorMessage(data, resp.Status),
			StatusCode: resp.StatusCode,
			Response:   data,
		}
	}
	if len(data) == 0 {
		return nil, nil
	}
	return json.RawMessage(data), nil
}

// Get 发 GET 请求。
func (c *Client) Get(ctx context.Context, path string, opt *Options) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodGet, path, nil, opt)
}

// Post 发 POST 请求，body 以 JSON 序列化。
func (c *Client) Post(ctx context.Context, path string, body any, opt *Options) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodPost, path, body, opt)
}

// Put 发 PUT 请求，body 以 JSON 序列化。
func (c *Client) Put(ctx context.Context, path string, body any, opt *Options) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodPut, path, body, opt)
}

// Delete 发 DELETE 请求。
func (c *Client) Delete(ctx context.Context, path string, opt *Options) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodDelete, path, nil, opt)
}

// errorMessage 尽量从响应体里取结构化错误消息；取不到时回落状态行。
func errorMessage(data []byte, status string) string {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 {
		if gjson.ValidBytes(trimmed) {
			parsed := gjson.ParseBytes(trimmed)
			if msg := strings.TrimSpace(parsed.Get("message").String()); msg != "" {
				return msg
			}
			if msg := strings.TrimSpace(parsed.Get("error").String()); msg != "" {
				return msg
			}
		} else {
			return string(trimmed)
		}
	}
	return status
}

// transportMessage 去掉 url.Error 外壳里冗余的 method/URL 前缀。
func transportMessage(err error) string {
	var ue *url.Error
	if errors.As(err, &ue) && ue.Err != nil {
		return ue.Err.Error()
	}
	return err.Error()
}

func (c *Client) resolveEndpoint(path string) (*url.URL, error) {
	if c.baseURL == nil {
		return nil, fmt.Errorf("apiclient: base_url 未设置")
	}
	trimmed := strings.TrimSpace(path)
	query := ""
	if idx := strings.Index(trimmed, "?"); idx >= 0 {
		query = trimmed[idx+1:]
		trimmed = trimmed[:idx]
	}
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	resolved := *c.baseURL
	resolved.Path = strings.TrimSuffix(resolved.Path, "/") + c.prefix + trimmed
	resolved.RawPath = ""
	resolved.RawQuery = query
	resolved.Fragment = ""
	return &resolved, nil
}
