package utils

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/network/standard"
)

// NewHTTPClient 创建支持 HTTPS 的 hertz 客户端。
// netpoll 不支持 TLS，因此使用标准库拨号器。
func NewHTTPClient(timeout time.Duration) (*client.Client, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c, err := client.NewClient(
		client.WithDialer(standard.NewDialer()),
		client.WithTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12}),
		client.WithDialTimeout(10*time.Second),
		client.WithClientReadTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 客户端失败: %w", err)
	}
	return c, nil
}
