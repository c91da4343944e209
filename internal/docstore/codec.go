package docstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Encode marshals a document.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}

// Decode unmarshals a stored document into v and fails closed: unknown
// fields and values violating v's `validate` tags yield ErrCorrupt. The
// document is decoded into a zero value of v's type, so fields already set in
// v never fill gaps in the document. v is only written on success.
func Decode(data []byte, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("decode into %T: target must be a non-nil pointer", v)
	}
	fresh := reflect.New(rv.Elem().Type())

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(fresh.Interface()); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := validate.Struct(fresh.Interface()); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return fmt.Errorf("decode into %T: %w", v, err)
		}
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	rv.Elem().Set(fresh.Elem())
	return nil
}

// GetJSON reads and decodes one document.
func GetJSON(tx Tx, collection, id string, v any) error {
	data, err := tx.Get(collection, id)
	if err != nil {
		return err
	}
	if err := Decode(data, v); err != nil {
		return fmt.Errorf("%s/%s: %w", collection, id, err)
	}
	return nil
}

// PutJSON encodes and writes one document.
func PutJSON(tx Tx, collection, id string, v any) error {
	data, err := Encode(v)
	if err != nil {
		return err
	}
	return tx.Put(collection, id, data)
}

// ListJSON decodes every document of a collection, in id order.
func ListJSON[T any](tx Tx, collection string) ([]*T, error) {
	docs, err := tx.List(collection)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(docs))
	for _, d := range docs {
		v := new(T)
		if err := Decode(d.Data, v); err != nil {
			return nil, fmt.Errorf("%s/%s: %w", collection, d.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}
