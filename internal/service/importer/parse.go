package importer

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/ignite/person-registry/internal/domain"
	"github.com/ignite/person-registry/internal/pkg/validate"
)

// ErrNoRecords is returned for a well-formed document with an empty list.
var ErrNoRecords = fmt.Errorf("%w: file contains no records", domain.ErrValidation)

// ParseError reports a document that could not be decoded or validated.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "parse import file: " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

// Is makes every ParseError match domain.ErrValidation.
func (e *ParseError) Is(target error) bool { return target == domain.ErrValidation }

type personDocument struct {
	Persons []domain.PersonInput `yaml:"persons"`
}

type locationDocument struct {
	Locations []domain.LocationInput `yaml:"locations"`
}

// ParsePersons decodes a `persons:` document and validates every record.
func ParsePersons(data []byte) ([]domain.PersonInput, error) {
	var doc personDocument
	if err := decode(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Persons) == 0 {
		return nil, &ParseError{Err: ErrNoRecords}
	}
	for i, rec := range doc.Persons {
		if err := validate.Struct(rec); err != nil {
			return nil, &ParseError{Err: fmt.Errorf("record %d: %w", i+1, err)}
		}
	}
	return doc.Persons, nil
}

// ParseLocations decodes a `locations:` document and validates every record.
func ParseLocations(data []byte) ([]domain.LocationInput, error) {
	var doc locationDocument
	if err := decode(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Locations) == 0 {
		return nil, &ParseError{Err: ErrNoRecords}
	}
	for i, rec := range doc.Locations {
		if err := validate.Struct(rec); err != nil {
			return nil, &ParseError{Err: fmt.Errorf("record %d: %w", i+1, err)}
		}
	}
	return doc.Locations, nil
}

func decode(data []byte, dst interface{}) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &ParseError{Err: ErrNoRecords}
		}
		return &ParseError{Err: err}
	}
	return nil
}
