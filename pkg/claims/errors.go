package claims

import "errors"

var errMalformed = errors.New("claims: malformed token")
