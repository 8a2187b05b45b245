package core

import (
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"krushak/internal/types"
)

// ValidationError describes a single failed rule.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult separates blocking errors from advisory warnings.
type ValidationResult struct {
	Errors   []ValidationError `json:"errors,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
}

// IsValid reports whether there are no blocking errors.
func (r ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Validator wraps go-playground/validator to register domain-specific rules.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a new Validator and registers custom validation tags:
//
//	finite   - float is neither NaN nor ±Inf
//	soiltype - value is one of types.SoilTypes
//	croptype - value is one of types.CropTypes
//	language - value is one of types.Languages
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report wire names (e.g. "Soil_Type") rather than Go field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	must := func(tag string, fn validator.Func) {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("core: register validation %q: %v", tag, err))
		}
	}
	must("finite", validateFinite)
	must("soiltype", func(fl validator.FieldLevel) bool {
		return types.SoilType(fl.Field().String()).Valid()
	})
	must("croptype", func(fl validator.FieldLevel) bool {
		return types.CropType(fl.Field().String()).Valid()
	})
	must("language", func(fl validator.FieldLevel) bool {
		for _, l := range types.Languages {
			if string(l) == fl.Field().String() {
				return true
			}
		}
		return false
	})

	return &Validator{validate: v, logger: logger}
}

func validateFinite(fl validator.FieldLevel) bool {
	switch fl.Field().Kind() {
	case reflect.Float32, reflect.Float64:
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	default:
		return true
	}
}

// ValidateStruct validates s and returns a *types.AppError whose code is
// derived from the first failing rule. All failures are listed under the
// "validation_errors" detail.
func (v *Validator) ValidateStruct(s any) error {
	errs := v.collect(s)
	if len(errs) == 0 {
		return nil
	}
	first := errs[0]
	details := map[string]any{
		"field":             first.Field,
		"validation_errors": errs,
	}
	return types.NewAppErrorWithDetails(types.ErrorCode(first.Code), first.Message, nil, details)
}

// ValidateStructWithWarnings validates s and additionally collects advisory
// warnings for parameter sets whose values are outside their agronomic
// range. Warnings never block a submission.
func (v *Validator) ValidateStructWithWarnings(s any) ValidationResult {
	result := ValidationResult{Errors: v.collect(s)}
	switch ps := s.(type) {
	case types.ParameterSet:
		result.Warnings = parameterWarnings(ps)
	case *types.ParameterSet:
		if ps != nil {
			result.Warnings = parameterWarnings(*ps)
		}
	}
	return result
}

// ValidateParameters checks a complete parameter set before it is sent to
// the prediction service. Warnings are logged at debug level.
func (v *Validator) ValidateParameters(ps types.ParameterSet) error {
	result := v.ValidateStructWithWarnings(ps)
	for _, w := range result.Warnings {
		v.logger.Debug("unusual parameter value", "warning", w)
	}
	if result.IsValid() {
		return nil
	}
	first := result.Errors[0]
	return types.NewAppErrorWithDetails(types.ErrorCode(first.Code), first.Message, nil, map[string]any{
		"field":             first.Field,
		"validation_errors": result.Errors,
	})
}

func (v *Validator) collect(s any) []ValidationError {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !asValidationErrors(err, &fieldErrs) {
		v.logger.Error("validator returned unexpected error", "error", err)
		return []ValidationError{{
			Code:    string(types.ErrCodeInternalUnexpected),
			Message: err.Error(),
		}}
	}

	out := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Field:   fe.Field(),
			Code:    tagToErrorCode(fe.Tag()),
			Message: messageFor(fe),
		})
	}
	return out
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	ve, ok := err.(validator.ValidationErrors)
	if ok {
		*target = ve
	}
	return ok
}

// tagToErrorCode maps a validator tag to an application error code.
func tagToErrorCode(tag string) string {
	switch tag {
	case "required":
		return string(types.ErrCodeValidationMissingField)
	case "finite", "numeric", "number":
		return string(types.ErrCodeValidationNotNumeric)
	case "soiltype", "croptype", "language", "oneof":
		return string(types.ErrCodeValidationOutOfSet)
	case "latitude", "longitude":
		return string(types.ErrCodeValidationCoordinates)
	default:
		return string(types.ErrCodeValidationInvalidJSON)
	}
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "finite":
		return fmt.Sprintf("%s must be a finite number", fe.Field())
	case "soiltype":
		return fmt.Sprintf("%s %q is not a supported soil type", fe.Field(), fe.Value())
	case "croptype":
		return fmt.Sprintf("%s %q is not a supported crop type", fe.Field(), fe.Value())
	case "language":
		return fmt.Sprintf("%s %q is not a supported language", fe.Field(), fe.Value())
	case "latitude", "longitude":
		return fmt.Sprintf("%s must be a valid %s", fe.Field(), fe.Tag())
	default:
		return fmt.Sprintf("%s failed %q validation", fe.Field(), fe.Tag())
	}
}

func parameterWarnings(ps types.ParameterSet) []string {
	var warnings []string
	pct := func(name string, v float64) {
		if v < 0 || v > 100 {
			warnings = append(warnings, fmt.Sprintf("%s %.1f is outside 0-100%%", name, v))
		}
	}
	pct(string(types.FieldHumidity), ps.Humidity)
	pct(string(types.FieldMoisture), ps.Moisture)
	if ps.Temperature < -20 || ps.Temperature > 60 {
		warnings = append(warnings, fmt.Sprintf("%s %.1f°C is outside the expected field range", types.FieldTemperature, ps.Temperature))
	}
	for _, n := range []struct {
		f types.Field
		v float64
	}{
		{types.FieldNitrogen, ps.Nitrogen},
		{types.FieldPotassium, ps.Potassium},
		{types.FieldPhosphorus, ps.Phosphorus},
	} {
		if n.v < 0 {
			warnings = append(warnings, fmt.Sprintf("%s %.1f is negative", n.f, n.v))
		}
	}
	return warnings
}
