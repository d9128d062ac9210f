package domain

import (
	"errors"
	"fmt"
	"strings"
)

// 附件错误
var (
	ErrTooManyFiles    = errors.New("too many files")
	ErrFileTooLarge    = errors.New("file too large")
	ErrInvalidFileType = errors.New("invalid file type")
)

// ValidationError 表单字段校验失败，可由用户修正（HTTP 400）
type ValidationError struct {
	Result ValidationResult
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Result.Messages(), "; ")
}

// AttachmentError 附件被拒绝，Err 为 ErrTooManyFiles / ErrFileTooLarge / ErrInvalidFileType 之一
type AttachmentError struct {
	Err      error
	Filename string
}

func (e *AttachmentError) Error() string {
	if e.Filename == "" {
		return fmt.Sprintf("attachment rejected: %v", e.Err)
	}
	return fmt.Sprintf("attachment %q rejected: %v", e.Filename, e.Err)
}

func (e *AttachmentError) Unwrap() error { return e.Err }

// DispatchError 邮件发送失败，用户无法修正（HTTP 500）
type DispatchError struct {
	Err error
}

func (e *DispatchError) Error() string { return "dispatch failed: " + e.Err.Error() }

func (e *DispatchError) Unwrap() error { return e.Err }

// StorageError 上传目录读写失败。只记录日志，不向用户透出细节。
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return "storage " + e.Op + ": " + e.Err.Error() }

func (e *StorageError) Unwrap() error { return e.Err }
