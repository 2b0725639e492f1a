package message

import "errors"

var errSize = errors.New("unexpected decoded length")
