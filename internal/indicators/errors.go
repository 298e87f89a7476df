package indicators

import "errors"

var (
	// ErrInvalidParameter is returned when a variant's parameters fail
	// schema validation against its base type.
	ErrInvalidParameter = errors.New("indicators: invalid parameter")
	// ErrUnknownIndicator is returned for an unregistered base type.
	ErrUnknownIndicator = errors.New("indicators: unknown base type")
	// ErrUnknownVariant is returned when a variant id has no registration.
	ErrUnknownVariant = errors.New("indicators: unknown variant")
	// ErrSymbolNotBound is returned when a symbol has no indicators
	// registered under a session (add_indicator_to_session was never called).
	ErrSymbolNotBound = errors.New("indicators: symbol not bound to session")
)
