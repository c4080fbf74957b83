// Package movie defines the movie record and the validation applied to it
// before it reaches the store.
package movie

import (
	"encoding/json"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

var (
	// ErrMalformedKey is returned when a movie id does not parse as an unsigned integer.
	ErrMalformedKey = errors.New("malformed movie id")
	// ErrInvalidPayload is returned when a request body is not a valid movie document.
	ErrInvalidPayload = errors.New("invalid movie payload")
	// ErrMissingField is returned when a movie document omits a required field.
	ErrMissingField = errors.New("missing movie field")
)

// Movie is the stored record. ID carries the key as text, exactly as the
// client sent it.
type Movie struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Year    uint16 `json:"year"`
	WasGood bool   `json:"wasGood"`
}

// Key parses the movie's ID into its store key.
func (m Movie) Key() (uint64, error) {
	return ParseKey(m.ID)
}

// ParseKey converts an id into the numeric store key.
func ParseKey(id string) (uint64, error) {
	key, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrMalformedKey, "id %q", id)
	}
	return key, nil
}

// payload mirrors Movie with pointer fields so absent fields can be told
// apart from zero values.
type payload struct {
	ID      *string `json:"id"`
	Name    *string `json:"name"`
	Year    *uint16 `json:"year"`
	WasGood *bool   `json:"wasGood"`
}

// Decode reads a single movie document from r. All four fields are required.
func Decode(r io.Reader) (Movie, error) {
	var p payload
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return Movie{}, errors.Wrap(ErrInvalidPayload, err.Error())
	}

	switch {
	case p.ID == nil:
		return Movie{}, errors.Wrap(ErrMissingField, "id")
	case p.Name == nil:
		return Movie{}, errors.Wrap(ErrMissingField, "name")
	case p.Year == nil:
		return Movie{}, errors.Wrap(ErrMissingField, "year")
	case p.WasGood == nil:
		return Movie{}, errors.Wrap(ErrMissingField, "wasGood")
	}

	return Movie{
		ID:      *p.ID,
		Name:    *p.Name,
		Year:    *p.Year,
		WasGood: *p.WasGood,
	}, nil
}
