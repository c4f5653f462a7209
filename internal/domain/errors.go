package domain

import "errors"

// ErrInvalidRequest indicates that a run request contains invalid data.
var ErrInvalidRequest = errors.New("invalid run request")

// ErrInvalidItem indicates that an input item failed validation.
var ErrInvalidItem = errors.New("invalid item")

// ErrDuplicateItem indicates that two input items share a question_id.
var ErrDuplicateItem = errors.New("duplicate question_id")
