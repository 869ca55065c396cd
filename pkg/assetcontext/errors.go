package assetcontext

import "github.com/opsforge/execcore/pkg/shared/apperr"

func errMissingField(field string) error {
	return apperr.Newf(apperr.KindValidation, "asset record missing required field %q", field).WithDetails("field", field)
}

func errCircuitOpen() error {
	return apperr.New(apperr.KindCircuitOpen, "asset inventory circuit breaker open")
}
