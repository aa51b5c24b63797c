package blobstore

import "errors"

var (
	ErrNotFound = errors.New("blobstore: blob not found")
	ErrExpired  = errors.New("blobstore: blob expired")
)
