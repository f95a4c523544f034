package forgeclient

import (
	"errors"

	"github.com/ratewatch/ci-rate-monitor/internal/rmerrors"
)

func asHTTPError(err error) (*rmerrors.HTTPError, bool) {
	var httpErr *rmerrors.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}
