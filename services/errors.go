package services

import "errors"

var (
	ErrEmptyScan       = errors.New("scan needs an image, a barcode or a query")
	ErrScanAbandoned   = errors.New("scan abandoned")
	ErrScanNotFound    = errors.New("scan not found")
	ErrProfileNotFound = errors.New("health profile not found")
)
