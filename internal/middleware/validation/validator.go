package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// Error carries per-field failures keyed by the JSON name of the field.
type Error struct {
	Fields map[string]string `json:"fields"`
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, field+": "+msg)
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	// notblank rejects strings that are empty once trimmed.
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})

	return &Validator{validate: v}
}

// Struct validates a decoded request and returns *Error on failure.
func (v *Validator) Struct(req any) error {
	err := v.validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate request: %w", err)
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = describe(fe)
	}
	return &Error{Fields: fields}
}

// Bind decodes the JSON body into req, strips NUL bytes from its string
// fields and validates it.
func (v *Validator) Bind(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		return &Error{Fields: map[string]string{"body": "must be valid JSON"}}
	}
	sanitize(reflect.ValueOf(req))
	return v.Struct(req)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return fmt.Sprintf("failed on '%s'", fe.Tag())
	}
}

func sanitize(v reflect.Value) {
	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return
	}
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		if f.Kind() == reflect.String && f.CanSet() {
			f.SetString(strings.ReplaceAll(f.String(), "\x00", ""))
		}
	}
}

// ContentTypes rejects write requests whose body is not one of allowed.
func ContentTypes(allowed ...string) fiber.Handler {
	if len(allowed) == 0 {
		allowed = []string{fiber.MIMEApplicationJSON, fiber.MIMEMultipartForm}
	}

	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodPost, fiber.MethodPut, fiber.MethodPatch:
		default:
			return c.Next()
		}

		contentType := c.Get(fiber.HeaderContentType)
		if contentType == "" || len(c.Body()) == 0 {
			return c.Next()
		}
		for _, a := range allowed {
			if strings.HasPrefix(strings.ToLower(contentType), a) {
				return c.Next()
			}
		}
		return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
			"error":      "Unsupported content type",
			"error_kind": "invalid_request",
		})
	}
}
