package services

import "errors"

var (
	ErrNavigationTimeout  = errors.New("navigation timeout")
	ErrSelectorTimeout    = errors.New("selector timeout")
	ErrChainQuery         = errors.New("chain query failed")
	ErrSheetRead          = errors.New("sheet read failed")
	ErrSheetWrite         = errors.New("sheet write failed")
	ErrInvalidMetricInput = errors.New("invalid metric input")
	ErrRunInProgress      = errors.New("collection already in progress")
	ErrUnknownNetwork     = errors.New("unknown network")
)
