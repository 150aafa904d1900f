package domain

import "errors"

var (
	ErrNotFound  = errors.New("plan_not_found")
	ErrNameTaken = errors.New("plan_name_taken")
)
