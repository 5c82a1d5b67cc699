// Package apperror はエラーの種別（検証・競合・不正な状態遷移・未検出・インフラ障害）を定義する。
// 各ドメインのセンチネルエラーはいずれか1つの種別を持ち、errors.Is で分類できる。
package apperror

import "errors"

// エラー種別
var (
	ErrValidation     = errors.New("validation error")
	ErrConflict       = errors.New("conflict")
	ErrInvalidState   = errors.New("invalid state")
	ErrNotFound       = errors.New("not found")
	ErrInfrastructure = errors.New("infrastructure error")
)

// Error は種別付きのエラー
type Error struct {
	kind  error
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

// Unwrap は種別と原因の両方を返す
func (e *Error) Unwrap() []error {
	if e.cause != nil {
		return []error{e.kind, e.cause}
	}
	return []error{e.kind}
}

// Kind はエラー種別を返す
func (e *Error) Kind() error {
	return e.kind
}

// New は種別付きのセンチネルエラーを作成する
func New(kind error, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Validation は検証エラーを作成する
func Validation(msg string) *Error { return New(ErrValidation, msg) }

// Conflict は競合エラーを作成する
func Conflict(msg string) *Error { return New(ErrConflict, msg) }

// InvalidState は状態遷移エラーを作成する
func InvalidState(msg string) *Error { return New(ErrInvalidState, msg) }

// NotFound は未検出エラーを作成する
func NotFound(msg string) *Error { return New(ErrNotFound, msg) }

// Infrastructure はストアやキャッシュなど外部資源の障害をラップする
func Infrastructure(msg string, cause error) *Error {
	return &Error{kind: ErrInfrastructure, msg: msg, cause: cause}
}

// KindOf はエラーの種別を返す（分類できなければ nil）
func KindOf(err error) error {
	for _, kind := range []error{ErrValidation, ErrConflict, ErrInvalidState, ErrNotFound, ErrInfrastructure} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// IsRetryable は読み取り系で再試行してよいエラーかを返す
func IsRetryable(err error) bool {
	return errors.Is(err, ErrInfrastructure)
}
