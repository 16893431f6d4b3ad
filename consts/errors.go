package consts

import "errors"

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")

	ErrStoreLoadFailed = errors.New("account store load failed")
	ErrStoreSaveFailed = errors.New("account store save failed")

	ErrArchiveUploadFailed = errors.New("archive upload failed")
)
