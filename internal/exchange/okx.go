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
	"strings"
	"sync"
	"time"

	"riskguard/pkg/ratelimit"
	"riskguard/pkg/utils"
)

const (
	okxBaseURL         = "https://www.okx.com"
	okxTimestampLayout = "2006-01-02T15:04:05.000Z"
)

// OKX реализует интерфейс Exchange для биржи OKX (USDT perpetual swap).
// OKX считает объемы в контрактах, адаптер переводит их в монеты по
// номиналу инструмента.
type OKX struct {
	apiKey     string
	secretKey  string
	passphrase string

	httpClient *http.Client
	limiter    *ratelimit.MultiLimiter

	// Кэш номиналов контрактов: instId -> ctVal
	ctMu   sync.RWMutex
	ctVals map[string]float64

	connected bool
}

// NewOKX создает новый экземпляр OKX.
// Использует глобальный HTTP клиент с connection pooling.
func NewOKX() *OKX {
	return &OKX{
		httpClient: GetGlobalHTTPClient().GetClient(),
		limiter:    ratelimit.NewExchangeLimiter(20, 40, 10, 10),
		ctVals:     make(map[string]float64),
	}
}

// sign создает подпись для запроса к OKX API v5.
// Подписывается конкатенация timestamp + method + path + body, результат в base64.
func (o *OKX) sign(timestamp, method, path, body string) string {
	h := hmac.New(sha256.New, []byte(o.secretKey))
	h.Write([]byte(timestamp + method + path + body))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// signRequest проставляет заголовки аутентификации OKX API v5.
// path обязан включать строку запроса, OKX подписывает путь целиком.
func (o *OKX) signRequest(req *http.Request, method, path, body string) {
	timestamp := time.Now().UTC().Format(okxTimestampLayout)
	req.Header.Set("OK-ACCESS-KEY", o.apiKey)
	req.Header.Set("OK-ACCESS-SIGN", o.sign(timestamp, method, path, body))
	req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("OK-ACCESS-PASSPHRASE", o.passphrase)
}

// doGet выполняет GET запрос к OKX API
func (o *OKX) doGet(ctx context.Context, endpoint string, params map[string]string, signed bool) ([]byte, error) {
	if err := o.limiter.Wait(ctx, ratelimit.CategoryRead); err != nil {
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

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, okxBaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	if signed {
		o.signRequest(req, http.MethodGet, path, "")
	}

	return o.execute(req)
}

// doPost выполняет подписанный POST запрос к OKX API
func (o *OKX) doPost(ctx context.Context, endpoint string, reqBody interface{}) ([]byte, error) {
	if err := o.limiter.Wait(ctx, ratelimit.CategoryTrade); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, okxBaseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	o.signRequest(req, http.MethodPost, endpoint, string(payload))

	return o.execute(req)
}

// execute отправляет запрос и проверяет базовый ответ OKX.
// OKX присылает код строкой, "0" означает успех.
func (o *OKX) execute(req *http.Request) ([]byte, error) {
	resp, err := o.httpClient.Do(req)
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

	if baseResp.Code != "0" {
		return nil, &ExchangeError{
			Exchange: "okx",
			Code:     baseResp.Code,
			Message:  baseResp.Msg,
		}
	}

	return body, nil
}

// toInstID переводит символ BTCUSDT в идентификатор инструмента OKX BTC-USDT-SWAP
func (o *OKX) toInstID(symbol string) string {
	return strings.TrimSuffix(symbol, "USDT") + "-USDT-SWAP"
}

// toSymbol переводит идентификатор инструмента OKX обратно в символ
func (o *OKX) toSymbol(instID string) string {
	return strings.ReplaceAll(strings.TrimSuffix(instID, "-SWAP"), "-", "")
}

// contractValue возвращает номинал одного контракта в монетах базового актива.
// Номинал неизменен для инструмента и кэшируется на время жизни адаптера.
func (o *OKX) contractValue(ctx context.Context, instID string) (float64, error) {
	o.ctMu.RLock()
	if v, ok := o.ctVals[instID]; ok {
		o.ctMu.RUnlock()
		return v, nil
	}
	o.ctMu.RUnlock()

	params := map[string]string{
		"instType": "SWAP",
		"instId":   instID,
	}

	body, err := o.doGet(ctx, "/api/v5/public/instruments", params, false)
	if err != nil {
		return 0, err
	}

	var resp struct {
		Data []struct {
			InstID string `json:"instId"`
			CtVal  string `json:"ctVal"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, err
	}

	if len(resp.Data) == 0 {
		return 0, fmt.Errorf("instrument not found: %s", instID)
	}

	ctVal := parseFloat(resp.Data[0].CtVal)
	if ctVal <= 0 {
		return 0, fmt.Errorf("invalid contract value for %s: %q", instID, resp.Data[0].CtVal)
	}

	o.ctMu.Lock()
	o.ctVals[instID] = ctVal
	o.ctMu.Unlock()

	return ctVal, nil
}

func (o *OKX) Connect(apiKey, secret, passphrase string) error {
	o.apiKey = apiKey
	o.secretKey = secret
	o.passphrase = passphrase

	// Проверяем ключи через получение баланса
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := o.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to OKX: %w", err)
	}

	o.connected = true
	return nil
}

func (o *OKX) GetName() string {
	return "okx"
}

func (o *OKX) GetBalance(ctx context.Context) (float64, error) {
	params := map[string]string{
		"ccy": "USDT",
	}

	body, err := o.doGet(ctx, "/api/v5/account/balance", params, true)
	if err != nil {
		return 0, err
	}

	var resp struct {
		Data []struct {
			Details []struct {
				Ccy string `json:"ccy"`
				Eq  string `json:"eq"`
			} `json:"details"`
		} `json:"data"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, err
	}

	if len(resp.Data) > 0 {
		for _, detail := range resp.Data[0].Details {
			if detail.Ccy == "USDT" {
				return parseFloat(detail.Eq), nil
			}
		}
	}

	return 0, nil
}

func (o *OKX) GetOpenPositions(ctx context.Context) ([]*Position, error) {
	params := map[string]string{
		"instType": "SWAP",
	}

	body, err := o.doGet(ctx, "/api/v5/account/positions", params, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data []struct {
			InstID  string `json:"instId"`
			PosSide string `json:"posSide"`
			Pos     string `json:"pos"`
			AvgPx   string `json:"avgPx"`
			MarkPx  string `json:"markPx"`
			Lever   string `json:"lever"`
			Upl     string `json:"upl"`
			UTime   string `json:"uTime"`
		} `json:"data"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	positions := make([]*Position, 0)
	for _, p := range resp.Data {
		contracts := parseFloat(p.Pos)
		if contracts == 0 {
			continue
		}

		ctVal, err := o.contractValue(ctx, p.InstID)
		if err != nil {
			return nil, err
		}

		// В net mode сторона определяется знаком объема
		side := SideLong
		if p.PosSide == "short" || (p.PosSide == "net" && contracts < 0) {
			side = SideShort
		}

		leverage, _ := strconv.Atoi(p.Lever)
		uTime, _ := strconv.ParseInt(p.UTime, 10, 64)

		positions = append(positions, &Position{
			Symbol:        o.toSymbol(p.InstID),
			Side:          side,
			Size:          utils.Abs(contracts) * ctVal,
			EntryPrice:    parseFloat(p.AvgPx),
			MarkPrice:     parseFloat(p.MarkPx),
			Leverage:      leverage,
			UnrealizedPnl: parseFloat(p.Upl),
			UpdatedAt:     utils.FromUnixMillis(uTime),
		})
	}

	return positions, nil
}

// okxOrderRequest описывает тело запроса создания ордера OKX v5.
// Объем задается в контрактах строкой.
type okxOrderRequest struct {
	InstID     string `json:"instId"`
	TdMode     string `json:"tdMode"`
	Side       string `json:"side"`
	OrdType    string `json:"ordType"`
	Sz         string `json:"sz"`
	ReduceOnly bool   `json:"reduceOnly"`
}

func (o *OKX) ClosePosition(ctx context.Context, symbol, side string, qty float64) (*CloseResult, error) {
	instID := o.toInstID(symbol)

	ctVal, err := o.contractValue(ctx, instID)
	if err != nil {
		return nil, err
	}

	// Закрытие long продажей, short покупкой
	orderSide := SideBuy
	if side == SideLong || side == SideBuy {
		orderSide = SideSell
	}

	reqBody := okxOrderRequest{
		InstID:     instID,
		TdMode:     "cross",
		Side:       orderSide,
		OrdType:    "market",
		Sz:         strconv.FormatFloat(qty/ctVal, 'f', -1, 64),
		ReduceOnly: true,
	}

	body, err := o.doPost(ctx, "/api/v5/trade/order", reqBody)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data []struct {
			OrdID string `json:"ordId"`
			SCode string `json:"sCode"`
			SMsg  string `json:"sMsg"`
		} `json:"data"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, &ExchangeError{
			Exchange: "okx",
			Code:     "empty",
			Message:  "order response contains no data",
		}
	}

	// Код верхнего уровня бывает нулевым при отклоненном ордере, статус в sCode
	if resp.Data[0].SCode != "0" {
		return nil, &ExchangeError{
			Exchange: "okx",
			Code:     resp.Data[0].SCode,
			Message:  resp.Data[0].SMsg,
		}
	}

	result := &CloseResult{
		OrderID:  resp.Data[0].OrdID,
		Symbol:   symbol,
		Side:     orderSide,
		Quantity: qty,
		ClosedAt: time.Now().UTC(),
	}

	// Отсутствие параметров исполнения не отменяет состоявшееся закрытие
	if fill, err := o.getOrderFill(ctx, instID, resp.Data[0].OrdID); err == nil {
		if fill.qty > 0 {
			result.Quantity = fill.qty * ctVal
		}
		result.AvgFillPrice = fill.price
	}

	return result, nil
}

// getOrderFill получает параметры исполнения ордера.
// Объем исполнения возвращается в контрактах.
func (o *OKX) getOrderFill(ctx context.Context, instID, orderID string) (*orderFill, error) {
	params := map[string]string{
		"instId": instID,
		"ordId":  orderID,
	}

	body, err := o.doGet(ctx, "/api/v5/trade/order", params, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data []struct {
			AccFillSz string `json:"accFillSz"`
			AvgPx     string `json:"avgPx"`
		} `json:"data"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("order not found")
	}

	return &orderFill{
		qty:   parseFloat(resp.Data[0].AccFillSz),
		price: parseFloat(resp.Data[0].AvgPx),
	}, nil
}

func (o *OKX) Close() error {
	o.connected = false
	return nil
}
