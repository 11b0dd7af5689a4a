package http

import (
	"net"
	"net/http"
	"time"
)

// NewHTTPClient は外部API(Twelve Data)呼び出し用のHTTPクライアントを作成します。
//
// 呼び出しはレート制限で毎分数件に抑えられるため、接続プールは小さく、
// キープアライブは1分間のウィンドウをまたいで再利用できる長さにしています。
// http.DefaultClientにはタイムアウトがないため使用しません。
func NewHTTPClient(timeout time.Duration) *http.Client {
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
	return &http.Client{Timeout: timeout, Transport: t}
}
