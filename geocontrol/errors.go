package geocontrol

import "github.com/pkg/errors"

var (
	// ErrNotConfigured is returned when computing before Configure succeeded.
	ErrNotConfigured = errors.New("geocontrol: controller not configured")
	// ErrAlreadyConfigured is returned by a second call to Configure.
	ErrAlreadyConfigured = errors.New("geocontrol: controller already configured")
	// ErrInvalidParameters reports unusable vehicle parameters, gains or settings.
	ErrInvalidParameters = errors.New("geocontrol: invalid parameters")
	// ErrIllConditioned reports an allocation matrix that is not full row rank.
	ErrIllConditioned = errors.New("geocontrol: allocation matrix is ill-conditioned")
	// ErrDegenerateForce reports a desired force too small to define a body axis.
	ErrDegenerateForce = errors.New("geocontrol: desired force has no direction")
	// ErrDegenerateHeading reports a heading parallel to the desired body axis.
	ErrDegenerateHeading = errors.New("geocontrol: heading parallel to desired thrust axis")
	// ErrBadTimestep reports a non-positive differentiation interval.
	ErrBadTimestep = errors.New("geocontrol: timestep must be positive")
	// ErrNonFinite reports NaN or Inf in the inputs or in the computed command.
	ErrNonFinite = errors.New("geocontrol: non-finite value")
)
