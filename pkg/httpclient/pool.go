package httpclient

import (
	"fmt"
	"net/http"
	"sync"
)

// MaxRedirects は転送時に追従するリダイレクトの上限。
const MaxRedirects = 5

// Pool は転送先ごとのHTTPクライアントを保持する。
// 最初の利用時に遅延生成し、同じ転送先には常に同じクライアントを返す。
type Pool struct {
	mu sync.Mutex
	// clients は転送先ベースURLをキーとするクライアント。
	clients map[string]*http.Client
	// newTransport はクライアントごとのトランスポートを生成する。
	newTransport func() http.RoundTripper
}

// NewPool は新しいクライアントプールを生成する。
func NewPool() *Pool {
	return &Pool{
		clients: make(map[string]*http.Client),
		newTransport: func() http.RoundTripper {
			return http.DefaultTransport.(*http.Transport).Clone()
		},
	}
}

// Get は転送先に対応するクライアントを返す。存在しない場合は生成して登録する。
// 複数のリクエストから同時に初回呼び出しされても生成は1回だけ。
//
// タイムアウトはクライアントではなくリクエストのコンテキストで指定すること。
// 同じ転送先を複数のルートで共有しても、ルートごとのタイムアウトを適用できる。
func (p *Pool) Get(target string) *http.Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[target]; ok {
		return c
	}
	c := &http.Client{
		Transport:     p.newTransport(),
		CheckRedirect: limitRedirects,
	}
	p.clients[target] = c
	return c
}

// Len は生成済みクライアントの数を返す。
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// CloseIdleConnections はすべてのクライアントのアイドル接続を閉じる。
func (p *Pool) CloseIdleConnections() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.clients {
		c.CloseIdleConnections()
	}
}

// limitRedirects はリダイレクトを MaxRedirects 回までに制限する。
func limitRedirects(_ *http.Request, via []*http.Request) error {
	if len(via) > MaxRedirects {
		return fmt.Errorf("リダイレクトが上限(%d回)を超えました", MaxRedirects)
	}
	return nil
}
