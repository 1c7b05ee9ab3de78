// Package exchange содержит адаптеры бирж и общий HTTP транспорт для них.
package exchange

import (
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"time"
)

// HTTPClient - HTTP транспорт биржевых адаптеров с пулом соединений
type HTTPClient struct {
	client *http.Client
	config HTTPClientConfig
}

// HTTPClientConfig задает таймауты и параметры пула соединений.
// Значения по умолчанию подобраны под бюджет одного цикла опроса позиций
type HTTPClientConfig struct {
	ConnectTimeout time.Duration // установка TCP соединения
	ReadTimeout    time.Duration // ожидание заголовков ответа
	TotalTimeout   time.Duration // запрос целиком, fallback поверх контекста

	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration

	TLSHandshakeTimeout time.Duration

	DisableKeepAlives bool
	KeepAliveInterval time.Duration
}

// DefaultHTTPClientConfig возвращает настройки по умолчанию
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		ConnectTimeout:      5 * time.Second,
		ReadTimeout:         10 * time.Second,
		TotalTimeout:        15 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
		DisableKeepAlives:   false,
		KeepAliveInterval:   30 * time.Second,
	}
}

// NewHTTPClient собирает клиента с собственным транспортом
func NewHTTPClient(config HTTPClientConfig) *HTTPClient {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   config.ConnectTimeout,
			KeepAlive: config.KeepAliveInterval,
		}).DialContext,

		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		MaxConnsPerHost:     config.MaxConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,

		TLSHandshakeTimeout: config.TLSHandshakeTimeout,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},

		// Ответы бирж мелкие, распаковка только добавила бы задержку
		DisableCompression: true,

		DisableKeepAlives:     config.DisableKeepAlives,
		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: config.ReadTimeout,
	}

	return &HTTPClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   config.TotalTimeout,
		},
		config: config,
	}
}

// Do выполняет запрос. Таймаут конкретного вызова задается через context
func (hc *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	return hc.client.Do(req)
}

// GetClient возвращает низкоуровневый http.Client
func (hc *HTTPClient) GetClient() *http.Client {
	return hc.client
}

// GetConfig возвращает действующую конфигурацию
func (hc *HTTPClient) GetConfig() HTTPClientConfig {
	return hc.config
}

// Close сбрасывает накопленные idle соединения
func (hc *HTTPClient) Close() {
	if transport, ok := hc.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

// Все адаптеры делят один экземпляр и, как следствие, один пул соединений
var (
	sharedClient *HTTPClient
	sharedOnce   sync.Once
)

// GetGlobalHTTPClient отдает общий HTTP клиент с настройками по умолчанию
func GetGlobalHTTPClient() *HTTPClient {
	sharedOnce.Do(func() {
		sharedClient = NewHTTPClient(DefaultHTTPClientConfig())
	})
	return sharedClient
}

// CloseGlobalClient закрывает соединения общего клиента.
// Вызывается при остановке приложения
func CloseGlobalClient() {
	if sharedClient != nil {
		sharedClient.Close()
	}
}
