package handlers

// MaxRequestBodySize - предел размера тела запроса
const MaxRequestBodySize = 1 << 20 // 1 MB

// ErrorResponse - единый формат ошибки для всех endpoint'ов
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse - единый формат успешного ответа
type SuccessResponse struct {
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}
