package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
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
	bybitBaseURL    = "https://api.bybit.com"
	bybitRecvWindow = "5000"
)

// Bybit реализует интерфейс Exchange для биржи Bybit (USDT perpetual, one-way mode)
type Bybit struct {
	apiKey    string
	secretKey string

	httpClient *http.Client
	limiter    *ratelimit.MultiLimiter

	connected bool
}

// NewBybit создает новый экземпляр Bybit.
// Использует глобальный HTTP клиент с connection pooling.
func NewBybit() *Bybit {
	return &Bybit{
		httpClient: GetGlobalHTTPClient().GetClient(),
		limiter:    ratelimit.NewExchangeLimiter(10, 20, 5, 5),
	}
}

// sign создает подпись для запроса к Bybit API v5
func (b *Bybit) sign(timestamp, payload string) string {
	message := timestamp + b.apiKey + bybitRecvWindow + payload
	h := hmac.New(sha256.New, []byte(b.secretKey))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

// signRequest проставляет заголовки аутентификации Bybit API v5.
// Для GET подписывается строка запроса, для POST тело в JSON.
func (b *Bybit) signRequest(req *http.Request, payload string) {
	timestamp := strconv.FormatInt(utils.UnixMillis(), 10)
	req.Header.Set("X-BAPI-API-KEY", b.apiKey)
	req.Header.Set("X-BAPI-SIGN", b.sign(timestamp, payload))
	req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
	req.Header.Set("X-BAPI-RECV-WINDOW", bybitRecvWindow)
}

// doGet выполняет GET запрос к Bybit API
func (b *Bybit) doGet(ctx context.Context, endpoint string, params map[string]string, signed bool) ([]byte, error) {
	if err := b.limiter.Wait(ctx, ratelimit.CategoryRead); err != nil {
		return nil, err
	}

	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}
	encoded := query.Encode()

	reqURL := bybitBaseURL + endpoint
	if encoded != "" {
		reqURL += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	if signed {
		b.signRequest(req, encoded)
	}

	return b.execute(req)
}

// doPost выполняет подписанный POST запрос к Bybit API
func (b *Bybit) doPost(ctx context.Context, endpoint string, reqBody interface{}) ([]byte, error) {
	if err := b.limiter.Wait(ctx, ratelimit.CategoryTrade); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, bybitBaseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	b.signRequest(req, string(payload))

	return b.execute(req)
}

// execute отправляет запрос и проверяет базовый ответ Bybit
func (b *Bybit) execute(req *http.Request) ([]byte, error) {
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
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
	}
	if err := json.Unmarshal(body, &baseResp); err != nil {
		return nil, err
	}

	if baseResp.RetCode != 0 {
		return nil, &ExchangeError{
			Exchange: "bybit",
			Code:     strconv.Itoa(baseResp.RetCode),
			Message:  baseResp.RetMsg,
		}
	}

	return body, nil
}

func (b *Bybit) Connect(apiKey, secret, passphrase string) error {
	b.apiKey = apiKey
	b.secretKey = secret

	// Проверяем ключи через получение баланса
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := b.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to Bybit: %w", err)
	}

	b.connected = true
	return nil
}

func (b *Bybit) GetName() string {
	return "bybit"
}

func (b *Bybit) GetBalance(ctx context.Context) (float64, error) {
	params := map[string]string{
		"accountType": "UNIFIED",
		"coin":        "USDT",
	}

	body, err := b.doGet(ctx, "/v5/account/wallet-balance", params, true)
	if err != nil {
		return 0, err
	}

	var resp struct {
		Result struct {
			List []struct {
				Coin []struct {
					Coin   string `json:"coin"`
					Equity string `json:"equity"`
				} `json:"coin"`
			} `json:"list"`
		} `json:"result"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, err
	}

	if len(resp.Result.List) > 0 {
		for _, coin := range resp.Result.List[0].Coin {
			if coin.Coin == "USDT" {
				return parseFloat(coin.Equity), nil
			}
		}
	}

	return 0, nil
}

func (b *Bybit) GetOpenPositions(ctx context.Context) ([]*Position, error) {
	params := map[string]string{
		"category":   "linear",
		"settleCoin": "USDT",
	}

	body, err := b.doGet(ctx, "/v5/position/list", params, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result struct {
			List []struct {
				Symbol         string `json:"symbol"`
				Side           string `json:"side"`
				Size           string `json:"size"`
				AvgPrice       string `json:"avgPrice"`
				MarkPrice      string `json:"markPrice"`
				Leverage       string `json:"leverage"`
				UnrealisedPnl  string `json:"unrealisedPnl"`
				UpdatedTime    string `json:"updatedTime"`
				PositionStatus string `json:"positionStatus"`
			} `json:"list"`
		} `json:"result"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	positions := make([]*Position, 0)
	for _, p := range resp.Result.List {
		size := parseFloat(p.Size)
		if size == 0 {
			continue
		}

		leverage, _ := strconv.Atoi(p.Leverage)
		updatedTime, _ := strconv.ParseInt(p.UpdatedTime, 10, 64)

		side := SideLong
		if p.Side == "Sell" {
			side = SideShort
		}

		positions = append(positions, &Position{
			Symbol:        p.Symbol,
			Side:          side,
			Size:          size,
			EntryPrice:    parseFloat(p.AvgPrice),
			MarkPrice:     parseFloat(p.MarkPrice),
			Leverage:      leverage,
			UnrealizedPnl: parseFloat(p.UnrealisedPnl),
			Liquidation:   p.PositionStatus == "Liq",
			UpdatedAt:     utils.FromUnixMillis(updatedTime),
		})
	}

	return positions, nil
}

// bybitOrderRequest описывает тело запроса создания ордера Bybit v5.
// Объем передается строкой, reduceOnly обязан быть JSON boolean.
type bybitOrderRequest struct {
	Category    string `json:"category"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	Qty         string `json:"qty"`
	TimeInForce string `json:"timeInForce"`
	ReduceOnly  bool   `json:"reduceOnly"`
}

func (b *Bybit) ClosePosition(ctx context.Context, symbol, side string, qty float64) (*CloseResult, error) {
	// Закрытие long продажей, short покупкой
	orderSide := "Buy"
	closeSide := SideBuy
	if side == SideLong || side == SideBuy {
		orderSide = "Sell"
		closeSide = SideSell
	}

	reqBody := bybitOrderRequest{
		Category:    "linear",
		Symbol:      symbol,
		Side:        orderSide,
		OrderType:   "Market",
		Qty:         strconv.FormatFloat(qty, 'f', -1, 64),
		TimeInForce: "IOC",
		ReduceOnly:  true,
	}

	body, err := b.doPost(ctx, "/v5/order/create", reqBody)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result struct {
			OrderId string `json:"orderId"`
		} `json:"result"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	result := &CloseResult{
		OrderID:  resp.Result.OrderId,
		Symbol:   symbol,
		Side:     closeSide,
		Quantity: qty,
		ClosedAt: time.Now().UTC(),
	}

	// Отсутствие параметров исполнения не отменяет состоявшееся закрытие
	if fill, err := b.getOrderFill(ctx, symbol, resp.Result.OrderId); err == nil {
		if fill.qty > 0 {
			result.Quantity = fill.qty
		}
		result.AvgFillPrice = fill.price
	}

	return result, nil
}

// getOrderFill получает параметры исполнения ордера
func (b *Bybit) getOrderFill(ctx context.Context, symbol, orderID string) (*orderFill, error) {
	params := map[string]string{
		"category": "linear",
		"symbol":   symbol,
		"orderId":  orderID,
	}

	body, err := b.doGet(ctx, "/v5/order/realtime", params, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result struct {
			List []struct {
				CumExecQty string `json:"cumExecQty"`
				AvgPrice   string `json:"avgPrice"`
			} `json:"list"`
		} `json:"result"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	if len(resp.Result.List) == 0 {
		return nil, fmt.Errorf("order not found")
	}

	return &orderFill{
		qty:   parseFloat(resp.Result.List[0].CumExecQty),
		price: parseFloat(resp.Result.List[0].AvgPrice),
	}, nil
}

func (b *Bybit) Close() error {
	b.connected = false
	return nil
}
