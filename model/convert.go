package model

import (
	"strconv"

	"github.com/pkg/errors"
)

// ValueConverter translates property values between the wire (always a
// string, nil meaning unset) and their semantic form.
type ValueConverter interface {
	FromWire(f *Feature, raw *string) (any, error)
	ToWire(f *Feature, v any) (*string, error)
}

// BuiltinConverter handles the builtin String, Integer and Boolean types.
type BuiltinConverter struct{}

func (BuiltinConverter) FromWire(f *Feature, raw *string) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch f.DataType {
	case String:
		return *raw, nil
	case Integer:
		i, err := strconv.ParseInt(*raw, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidValue, "%q is not an integer", *raw)
		}
		return i, nil
	case Boolean:
		switch *raw {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, errors.Wrapf(ErrInvalidValue, "%q is not a boolean", *raw)
	}
	return nil, errors.Wrapf(ErrInvalidValue, "no datatype for %s", f.Name)
}

func (BuiltinConverter) ToWire(f *Feature, v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	nv, err := normalizeValue(f, v)
	if err != nil {
		return nil, err
	}
	var s string
	switch t := nv.(type) {
	case string:
		s = t
	case int64:
		s = strconv.FormatInt(t, 10)
	case bool:
		s = strconv.FormatBool(t)
	}
	return &s, nil
}
