// Package errors 装载规划服务的错误分类
//
// 约束违规是方案数据，不是错误；这里只覆盖请求无效、引用缺失、
// 方案状态冲突与持久化失败等需要中止请求的情况。
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code 错误码
type Code string

const (
	// 通用
	CodeUnknown      Code = "UNKNOWN"
	CodeInternal     Code = "INTERNAL_ERROR"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeTimeout      Code = "TIMEOUT"
	CodeRateLimited  Code = "RATE_LIMITED"

	// 请求与引用
	CodeInvalidInput   Code = "INVALID_INPUT"
	CodeValidationFail Code = "VALIDATION_FAILED"
	CodeNotFound       Code = "NOT_FOUND"

	// 方案生命周期与状态
	CodePlanConflict       Code = "PLAN_CONFLICT"
	CodePersistenceFailure Code = "PERSISTENCE_FAILURE"
)

var httpStatus = map[Code]int{
	CodeInvalidInput:       http.StatusBadRequest,
	CodeValidationFail:     http.StatusBadRequest,
	CodeUnauthorized:       http.StatusUnauthorized,
	CodeForbidden:          http.StatusForbidden,
	CodeNotFound:           http.StatusNotFound,
	CodePlanConflict:       http.StatusConflict,
	CodeRateLimited:        http.StatusTooManyRequests,
	CodeTimeout:            http.StatusGatewayTimeout,
	CodePersistenceFailure: http.StatusServiceUnavailable,
}

// AppError 应用错误
type AppError struct {
	Code       Code                   `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	HTTPStatus int                    `json:"-"`
	Cause      error                  `json:"-"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithField 附加结构化字段，如缺失的货物ID
func (e *AppError) WithField(key string, value interface{}) *AppError {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	e.Fields[key] = value
	return e
}

// New 创建新错误
func New(code Code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: statusOf(code),
	}
}

// Wrap 包装底层错误
func Wrap(err error, code Code, message string) *AppError {
	e := New(code, message)
	e.Cause = err
	return e
}

func statusOf(code Code) int {
	if s, ok := httpStatus[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Is 检查错误链中是否有指定错误码
func Is(err error, code Code) bool {
	return GetCode(err) == code
}

// GetCode 获取错误码，非应用错误返回 UNKNOWN
func GetCode(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetHTTPStatus 获取HTTP状态码
func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// InvalidInput 请求格式或取值无效
func InvalidInput(field, reason string) *AppError {
	return New(CodeInvalidInput, fmt.Sprintf("字段 '%s' 无效: %s", field, reason)).
		WithField("field", field)
}

// NotFound 引用的货物或挂车不存在
func NotFound(resource, id string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s '%s' 不存在", resource, id)).
		WithField(resource+"_id", id)
}

// PlanConflict 方案已处于另一个终态
func PlanConflict(planID, state string) *AppError {
	return New(CodePlanConflict, fmt.Sprintf("方案 '%s' 已%s", planID, state)).
		WithField("plan_id", planID)
}

// PersistenceFailure 快照写入失败，内存状态未变更
func PersistenceFailure(err error) *AppError {
	return Wrap(err, CodePersistenceFailure, "状态持久化失败，变更已回滚")
}

// ValidationErrors 逐字段收集的验证错误
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// ValidationError 单个验证错误
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error 实现 error 接口
func (ve *ValidationErrors) Error() string {
	switch len(ve.Errors) {
	case 0:
		return "验证失败"
	case 1:
		return fmt.Sprintf("验证失败: %s - %s", ve.Errors[0].Field, ve.Errors[0].Message)
	default:
		return fmt.Sprintf("验证失败: %s - %s 等 %d 项", ve.Errors[0].Field, ve.Errors[0].Message, len(ve.Errors))
	}
}

// Add 添加验证错误
func (ve *ValidationErrors) Add(field, message string) {
	ve.Errors = append(ve.Errors, ValidationError{Field: field, Message: message})
}

// HasErrors 是否有错误
func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

// ToAppError 转换为 AppError，同一字段的多条消息按添加顺序保留
func (ve *ValidationErrors) ToAppError() *AppError {
	byField := make(map[string][]string)
	for _, e := range ve.Errors {
		byField[e.Field] = append(byField[e.Field], e.Message)
	}

	err := New(CodeValidationFail, ve.Error())
	for f, msgs := range byField {
		err.WithField(f, msgs)
	}
	return err
}
