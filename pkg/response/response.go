package response

import "net/http"

// Response represents a standard API response format. ErrCode mirrors the HTTP status; 200 is success.
type Response struct {
	ErrCode int         `json:"errCode"`
	Data    interface{} `json:"data"`
	Msg     string      `json:"msg"`
}

// Page wraps one page of a list result
type Page struct {
	Items    interface{} `json:"items"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"pageSize"`
}

// Success returns a standard success response wrapping the data
func Success(data interface{}) Response {
	return Response{
		ErrCode: http.StatusOK,
		Data:    data,
		Msg:     "success",
	}
}

// Paged returns a success response wrapping one page of items
func Paged(items interface{}, total int64, page, pageSize int) Response {
	return Success(Page{Items: items, Total: total, Page: page, PageSize: pageSize})
}

// Error returns a standard error response wrapping the error message
func Error(errCode int, msg string) Response {
	return Response{
		ErrCode: errCode,
		Data:    nil,
		Msg:     msg,
	}
}
