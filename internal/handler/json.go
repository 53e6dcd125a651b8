package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1 << 20

// badRequestError marks a malformed request body or query.
type badRequestError struct {
	err error
}

func (e *badRequestError) Error() string { return e.err.Error() }

func (e *badRequestError) Unwrap() error { return e.err }

func badRequest(format string, args ...any) error {
	return &badRequestError{err: fmt.Errorf(format, args...)}
}

// decodeObject reads a JSON object body, calling fn for every field.
func decodeObject(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	d := jx.Decode(http.MaxBytesReader(w, r.Body, maxBodyBytes), 4096)
	if err := d.Obj(fn); err != nil {
		var bad *badRequestError
		if errors.As(err, &bad) {
			return bad
		}
		return &badRequestError{err: errors.Wrap(err, "decode body")}
	}
	return nil
}

// decodeMoney accepts a decimal as a JSON string or number.
func decodeMoney(d *jx.Decoder, field string) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		raw = s
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		raw = n.String()
	default:
		return decimal.Zero, badRequest("%s: expected decimal", field)
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, badRequest("%s: invalid decimal %q", field, raw)
	}
	return v, nil
}

// decodeOptMoney decodes a nullable decimal.
func decodeOptMoney(d *jx.Decoder, field string) (*decimal.Decimal, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := decodeMoney(d, field)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// decodeOptTime decodes a nullable RFC 3339 timestamp.
func decodeOptTime(d *jx.Decoder, field string) (*time.Time, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, badRequest("%s: invalid timestamp %q", field, s)
	}
	return &t, nil
}

// decodePtr decodes a present patch field; absent fields stay nil.
func decodePtr[T any](d *jx.Decoder, fn func(*jx.Decoder) (T, error)) (*T, error) {
	v, err := fn(d)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// decodeNullableStr decodes a patch string where null means empty.
func decodeNullableStr(d *jx.Decoder) (*string, error) {
	if d.Next() == jx.Null {
		empty := ""
		return &empty, d.Null()
	}
	return decodePtr(d, (*jx.Decoder).Str)
}

func decodeStrings(d *jx.Decoder) ([]string, error) {
	var out []string
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

// writeJSON writes the object produced by fn with the given status.
func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := &jx.Encoder{}
	fn(e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeList writes {"items": [...], "count": n}.
func writeList[T any](w http.ResponseWriter, items []T, fn func(e *jx.Encoder, v T)) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("items", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, v := range items {
						fn(e, v)
					}
				})
			})
			e.Field("count", func(e *jx.Encoder) { e.Int(len(items)) })
		})
	})
}

func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
		})
	})
}

func money(e *jx.Encoder, name string, d decimal.Decimal) {
	e.Field(name, func(e *jx.Encoder) { e.Str(d.StringFixed(2)) })
}

func optMoney(e *jx.Encoder, name string, d *decimal.Decimal) {
	if d == nil {
		e.Field(name, func(e *jx.Encoder) { e.Null() })
		return
	}
	money(e, name, *d)
}

func str(e *jx.Encoder, name, v string) {
	e.Field(name, func(e *jx.Encoder) { e.Str(v) })
}

func integer(e *jx.Encoder, name string, v int) {
	e.Field(name, func(e *jx.Encoder) { e.Int(v) })
}

func boolean(e *jx.Encoder, name string, v bool) {
	e.Field(name, func(e *jx.Encoder) { e.Bool(v) })
}

func timestamp(e *jx.Encoder, name string, t time.Time) {
	e.Field(name, func(e *jx.Encoder) { e.Str(t.UTC().Format(time.RFC3339)) })
}

func optTimestamp(e *jx.Encoder, name string, t *time.Time) {
	if t == nil {
		e.Field(name, func(e *jx.Encoder) { e.Null() })
		return
	}
	timestamp(e, name, *t)
}

// Query helpers. Empty values leave the target untouched.

func queryInt(r *http.Request, name string, dst *int) error {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return badRequest("%s: invalid integer %q", name, v)
	}
	*dst = n
	return nil
}

func queryBool(r *http.Request, name string, dst *bool) error {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return badRequest("%s: invalid boolean %q", name, v)
	}
	*dst = b
	return nil
}

func queryMoney(r *http.Request, name string, dst **decimal.Decimal) error {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return badRequest("%s: invalid decimal %q", name, v)
	}
	*dst = &d
	return nil
}
