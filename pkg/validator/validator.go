package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// Validator checks a single request field.
type Validator interface {
	Validate(value interface{}) error
}

type StringFunc func(s string) error

type String struct {
	Optional   bool
	UnsetZero  bool
	MinLen     int
	MaxLen     int
	Regex      *regexp.Regexp
	Validators []StringFunc
}

func (v *String) Validate(value interface{}) error {
	s, ok := value.(*string)
	if !ok {
		return errors.New("expect a string")
	}

	if s == nil {
		if v.Optional {
			return nil
		}
		return errors.New("is required")
	}

	if v.UnsetZero && *s == "" {
		if v.Optional {
			return nil
		}
		return errors.New("cannot be empty")
	}

	if v.MinLen > 0 && len(*s) < v.MinLen {
		return fmt.Errorf("must be at least %d characters", v.MinLen)
	}

	if v.MaxLen > 0 && len(*s) > v.MaxLen {
		return fmt.Errorf("must be at most %d characters", v.MaxLen)
	}

	if v.Regex != nil && !v.Regex.MatchString(*s) {
		return errors.New("has invalid characters")
	}

	for _, fn := range v.Validators {
		if err := fn(*s); err != nil {
			return err
		}
	}

	return nil
}

type UInt64 struct {
	Optional bool
	Min      *uint64
	Max      *uint64
}

func (v *UInt64) Validate(value interface{}) error {
	i, ok := value.(*uint64)
	if !ok {
		return errors.New("expect a uint64")
	}

	if i == nil {
		if v.Optional {
			return nil
		}
		return errors.New("is required")
	}

	if v.Min != nil && *i < *v.Min {
		return fmt.Errorf("must be >= %d", *v.Min)
	}

	if v.Max != nil && *i > *v.Max {
		return fmt.Errorf("must be <= %d", *v.Max)
	}

	return nil
}

type Slice struct {
	Optional  bool
	MinLen    int
	MaxLen    int
	Validator Validator
}

func (v *Slice) Validate(value interface{}) error {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice {
		return errors.New("expect a slice")
	}

	if rv.Len() == 0 && v.Optional {
		return nil
	}

	if v.MinLen > 0 && rv.Len() < v.MinLen {
		return fmt.Errorf("must have at least %d elements", v.MinLen)
	}

	if v.MaxLen > 0 && rv.Len() > v.MaxLen {
		return fmt.Errorf("must have at most %d elements", v.MaxLen)
	}

	if v.Validator != nil {
		for i := 0; i < rv.Len(); i++ {
			if err := v.Validator.Validate(rv.Index(i).Interface()); err != nil {
				return fmt.Errorf("element %d %v", i, err)
			}
		}
	}

	return nil
}

// Form validates a json-tagged request struct field by field.
type Form struct {
	validators map[string]Validator
}

// MustForm panics on nil field validators. Use at package init only.
func MustForm(validators map[string]Validator) *Form {
	for field, v := range validators {
		if v == nil {
			panic(fmt.Sprintf("nil validator for field %s", field))
		}
	}
	return &Form{validators: validators}
}

func (f *Form) Validate(value interface{}) error {
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return errors.New("expect a struct")
		}
		rv = rv.Elem()
	}

	if rv.Kind() != reflect.Struct {
		return errors.New("expect a struct")
	}

	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		var (
			field = rt.Field(i)
			name  = fieldName(field)
		)

		v, ok := f.validators[name]
		if !ok {
			continue
		}

		fv := rv.Field(i)
		if fv.Kind() == reflect.Struct {
			// embedded request context, validate by address
			fv = fv.Addr()
		}

		if err := v.Validate(fv.Interface()); err != nil {
			return fmt.Errorf("%s %v", name, err)
		}
	}

	return nil
}

func fieldName(field reflect.StructField) string {
	for _, tagKey := range []string{"json", "schema"} {
		tag := field.Tag.Get(tagKey)
		if tag == "" {
			continue
		}
		if name := strings.Split(tag, ",")[0]; name != "" && name != "-" {
			return name
		}
	}
	return field.Name
}
