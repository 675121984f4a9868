package entities

import "errors"

var ErrStoreEntityNotFound = errors.New("store resource not found")
var ErrUnknownTickType = errors.New("unknown tick type")
var ErrSequenceConflict = errors.New("sequence already advanced")
