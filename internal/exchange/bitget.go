package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"riskguard/pkg/ratelimit"
	"riskguard/pkg/utils"
)

const (
	bitgetBaseURL     = "https://api.bitget.com"
	bitgetProductType = "USDT-FUTURES"
)

// Bitget реализует интерфейс Exchange для биржи Bitget (USDT futures, one-way mode)
type Bitget struct {
	apiKey     string
	secretKey  string
	passphrase string

	httpClient *http.Client
	limiter    *ratelimit.MultiLimiter

	connected bool
}

// NewBitget создает новый экземпляр Bitget.
// Использует глобальный HTTP клиент с connection pooling.
func NewBitget() *Bitget {
	return &Bitget{
		httpClient: GetGlobalHTTPClient().GetClient(),
		limiter:    ratelimit.NewExchangeLimiter(10, 20, 5, 5),
	}
}

// sign создает подпись для запроса к Bitget API v2.
// Подписывается конкатенация timestamp + method + path + body, результат в base64.
func (b *Bitget) sign(timestamp, method, path, body string) string {
	h := hmac.New(sha256.New, []byte(b.secretKey))
	h.Write([]byte(timestamp + method + path + body))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// signRequest проставляет заголовки аутентификации Bitget API v2.
// path обязан включать строку запроса, Bitget подписывает путь целиком.
func (b *Bitget) signRequest(req *http.Request, method, path, body string) {
	timestamp := strconv.FormatInt(utils.UnixMillis(), 10)
	req.Header.Set("ACCESS-KEY", b.apiKey)
	req.Header.Set("ACCESS-SIGN", b.sign(timestamp, method, path, body))
	req.Header.Set("ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("ACCESS-PASSPHRASE", b.passphrase)
	req.Header.Set("locale", "en-US")
}

// doGet выполняет GET запрос к Bitget API
func (b *Bitget) doGet(ctx context.Context, endpoint string, params map[string]string, signed bool) ([]byte, error) {
	if err := b.limiter.Wait(ctx, ratelimit.CategoryRead); err != nil {
		return nil, err
	}

	path := endpoint
	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, bitgetBaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	if signed {
		b.signRequest(req, http.MethodGet, path, "")
	}

	return b.execute(req)
}

// doPost выполняет подписанный POST запрос к Bitget API
func (b *Bitget) doPost(ctx context.Context, endpoint string, reqBody interface{}) ([]byte, error) {
	if err := b.limiter.Wait(ctx, ratelimit.CategoryTrade); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, bitgetBaseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	b.signRequest(req, http.MethodPost, endpoint, string(payload))

	return b.execute(req)
}

// execute отправляет запрос и проверяет базовый ответ Bitget.
// Bitget присылает код строкой, "00000" означает успех.
func (b *Bitget) execute(req *http.Request) ([]byte, error) {
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var baseResp struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &baseResp); err != nil {
		return nil, err
	}

	if baseResp.Code != "00000" {
		return nil, &ExchangeError{
			Exchange: "bitget",
			Code:     baseResp.Code,
			Message:  baseResp.Msg,
		}
	}

	return body, nil
}

func (b *Bitget) Connect(apiKey, secret, passphrase string) error {
	b.apiKey = apiKey
	b.secretKey = secret
	b.passphrase = passphrase

	// Проверяем ключи через получение баланса
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := b.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to Bitget: %w", err)
	}

	b.connected = true
	return nil
}

func (b *Bitget) GetName() string {
	return "bitget"
}

func (b *Bitget) GetBalance(ctx context.Context) (float64, error) {
	params := map[string]string{
		"productType": bitgetProductType,
	}

	body, err := b.doGet(ctx, "/api/v2/mix/account/accounts", params, true)
	if err != nil {
		return 0, err
	}

	var resp struct {
		Data []struct {
			MarginCoin    string `json:"marginCoin"`
			AccountEquity string `json:"accountEquity"`
		} `json:"data"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, err
	}

	for _, account := range resp.Data {
		if account.MarginCoin == "USDT" {
			return parseFloat(account.AccountEquity), nil
		}
	}

	return 0, nil
}

func (b *Bitget) GetOpenPositions(ctx context.Context) ([]*Position, error) {
	params := map[string]string{
		"productType": bitgetProductType,
		"marginCoin":  "USDT",
	}

	body, err := b.doGet(ctx, "/api/v2/mix/position/all-position", params, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data []struct {
			Symbol       string `json:"symbol"`
			HoldSide     string `json:"holdSide"`
			Total        string `json:"total"`
			OpenPriceAvg string `json:"openPriceAvg"`
			MarkPrice    string `json:"markPrice"`
			Leverage     string `json:"leverage"`
			UnrealizedPL string `json:"unrealizedPL"`
			UTime        string `json:"uTime"`
		} `json:"data"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	positions := make([]*Position, 0)
	for _, p := range resp.Data {
		size := parseFloat(p.Total)
		if size == 0 {
			continue
		}

		side := SideLong
		if p.HoldSide == "short" {
			side = SideShort
		}

		leverage, _ := strconv.Atoi(p.Leverage)
		uTime, _ := strconv.ParseInt(p.UTime, 10, 64)

		positions = append(positions, &Position{
			Symbol:        p.Symbol,
			Side:          side,
			Size:          size,
			EntryPrice:    parseFloat(p.OpenPriceAvg),
			MarkPrice:     parseFloat(p.MarkPrice),
			Leverage:      leverage,
			UnrealizedPnl: parseFloat(p.UnrealizedPL),
			UpdatedAt:     utils.FromUnixMillis(uTime),
		})
	}

	return positions, nil
}

// bitgetOrderRequest описывает тело запроса создания ордера Bitget v2.
// Объем передается строкой, reduceOnly принимает YES или NO.
type bitgetOrderRequest struct {
	Symbol      string `json:"symbol"`
	ProductType string `json:"productType"`
	MarginMode  string `json:"marginMode"`
	MarginCoin  string `json:"marginCoin"`
	Size        string `json:"size"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	ReduceOnly  string `json:"reduceOnly"`
}

func (b *Bitget) ClosePosition(ctx context.Context, symbol, side string, qty float64) (*CloseResult, error) {
	// Закрытие long продажей, short покупкой
	orderSide := SideBuy
	if side == SideLong || side == SideBuy {
		orderSide = SideSell
	}

	reqBody := bitgetOrderRequest{
		Symbol:      symbol,
		ProductType: bitgetProductType,
		MarginMode:  "crossed",
		MarginCoin:  "USDT",
		Size:        strconv.FormatFloat(qty, 'f', -1, 64),
		Side:        orderSide,
		OrderType:   "market",
		ReduceOnly:  "YES",
	}

	body, err := b.doPost(ctx, "/api/v2/mix/order/place-order", reqBody)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			OrderID string `json:"orderId"`
		} `json:"data"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	result := &CloseResult{
		OrderID:  resp.Data.OrderID,
		Symbol:   symbol,
		Side:     orderSide,
		Quantity: qty,
		ClosedAt: time.Now().UTC(),
	}

	// Отсутствие параметров исполнения не отменяет состоявшееся закрытие
	if fill, err := b.getOrderFill(ctx, symbol, resp.Data.OrderID); err == nil {
		if fill.qty > 0 {
			result.Quantity = fill.qty
		}
		result.AvgFillPrice = fill.price
	}

	return result, nil
}

// getOrderFill получает параметры исполнения ордера
func (b *Bitget) getOrderFill(ctx context.Context, symbol, orderID string) (*orderFill, error) {
	params := map[string]string{
		"symbol":      symbol,
		"productType": bitgetProductType,
		"orderId":     orderID,
	}

	body, err := b.doGet(ctx, "/api/v2/mix/order/detail", params, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			BaseVolume string `json:"baseVolume"`
			PriceAvg   string `json:"priceAvg"`
		} `json:"data"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	return &orderFill{
		qty:   parseFloat(resp.Data.BaseVolume),
		price: parseFloat(resp.Data.PriceAvg),
	}, nil
}

func (b *Bitget) Close() error {
	b.connected = false
	return nil
}
