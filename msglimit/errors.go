/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package msglimit

import "errors"

// ErrInvalidConfiguration is returned (wrapped) when MaxMessages or CountDuration is out of range.
var ErrInvalidConfiguration = errors.New("invalid message rate limit configuration")
