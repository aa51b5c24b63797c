package signing

import "errors"

var (
	ErrSignatureVerification = errors.New("signature verification failed")
	ErrMissingSecret         = errors.New("signing secret is empty")
	ErrMalformedSignature    = errors.New("malformed signature header")
)
