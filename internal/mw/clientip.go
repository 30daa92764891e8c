package mw

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP 解析请求来源地址：优先取 X-Forwarded-For 的第一项，否则取直连地址。
// 注册限流依赖这一结果，代理后部署时必须保持该顺序。
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	return hostOnly(r.RemoteAddr)
}

func hostOnly(remote string) string {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return remote
	}
	return host
}
