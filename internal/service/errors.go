package service

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrEmptyPortfolio = errors.New("portfolio is empty")
)
