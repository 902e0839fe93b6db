package domain

import (
	"strings"
	"time"
)

// Color enumerates eye and hair colors.
type Color string

const (
	ColorGreen  Color = "GREEN"
	ColorOrange Color = "ORANGE"
	ColorWhite  Color = "WHITE"
	ColorBrown  Color = "BROWN"
)

// Valid reports whether c is a known color.
func (c Color) Valid() bool {
	switch c {
	case ColorGreen, ColorOrange, ColorWhite, ColorBrown:
		return true
	}
	return false
}

// Country enumerates nationalities.
type Country string

const (
	CountryUnitedKingdom Country = "UNITED_KINGDOM"
	CountryIndia         Country = "INDIA"
	CountryItaly         Country = "ITALY"
	CountryNorthKorea    Country = "NORTH_KOREA"
)

// Valid reports whether c is a known country.
func (c Country) Valid() bool {
	switch c {
	case CountryUnitedKingdom, CountryIndia, CountryItaly, CountryNorthKorea:
		return true
	}
	return false
}

// Name length bounds for Person.Name.
const (
	PersonNameMin = 2
	PersonNameMax = 128
)

// CoordinatesMinX is the smallest accepted Coordinates.X (x must be greater than -917).
const CoordinatesMinX = -916

// Coordinates is a point referenced by a person.
type Coordinates struct {
	ID int64   `json:"id" db:"id"`
	X  int     `json:"x" db:"x"`
	Y  float32 `json:"y" db:"y"`
}

// Location is a named point in 3D space. Name is either nil or non-blank.
type Location struct {
	ID   int64   `json:"id" db:"id"`
	X    int     `json:"x" db:"x"`
	Y    float64 `json:"y" db:"y"`
	Z    int64   `json:"z" db:"z"`
	Name *string `json:"name,omitempty" db:"name"`
}

// Person is the main registry entity. Name is unique case-insensitively.
type Person struct {
	ID           int64       `json:"id" db:"id"`
	Name         string      `json:"name" db:"name"`
	Coordinates  Coordinates `json:"coordinates"`
	CreationDate time.Time   `json:"creationDate" db:"creation_date"`
	EyeColor     Color       `json:"eyeColor" db:"eye_color"`
	HairColor    *Color      `json:"hairColor,omitempty" db:"hair_color"`
	Height       float64     `json:"height" db:"height"`
	Nationality  *Country    `json:"nationality,omitempty" db:"nationality"`
	Location     Location    `json:"location"`
	AuthorID     int64       `json:"authorId" db:"author_id"`
}

// CoordinatesInput describes new coordinates.
type CoordinatesInput struct {
	X int     `json:"x" yaml:"x" validate:"gte=-916"`
	Y float32 `json:"y" yaml:"y"`
}

// LocationInput describes a new location.
type LocationInput struct {
	X    int     `json:"x" yaml:"x"`
	Y    float64 `json:"y" yaml:"y"`
	Z    int64   `json:"z" yaml:"z"`
	Name *string `json:"name,omitempty" yaml:"name" validate:"omitempty,notblank"`
}

// CoordinatesRef either points at existing coordinates (ID) or carries new values.
type CoordinatesRef struct {
	ID *int64  `json:"id,omitempty" yaml:"id"`
	X  int     `json:"x" yaml:"x" validate:"gte=-916"`
	Y  float32 `json:"y" yaml:"y"`
}

// Input returns the values used when no ID is given.
func (r CoordinatesRef) Input() CoordinatesInput {
	return CoordinatesInput{X: r.X, Y: r.Y}
}

// LocationRef either points at an existing location (ID) or carries new values.
type LocationRef struct {
	ID   *int64  `json:"id,omitempty" yaml:"id"`
	X    int     `json:"x" yaml:"x"`
	Y    float64 `json:"y" yaml:"y"`
	Z    int64   `json:"z" yaml:"z"`
	Name *string `json:"name,omitempty" yaml:"name" validate:"omitempty,notblank"`
}

// Input returns the values used when no ID is given.
func (r LocationRef) Input() LocationInput {
	return LocationInput{X: r.X, Y: r.Y, Z: r.Z, Name: r.Name}
}

// PersonInput is the create/update payload for a person.
type PersonInput struct {
	Name        string         `json:"name" yaml:"name" validate:"required,notblank,min=2,max=128"`
	Coordinates CoordinatesRef `json:"coordinates" yaml:"coordinates"`
	EyeColor    Color          `json:"eyeColor" yaml:"eyeColor" validate:"required,color"`
	HairColor   *Color         `json:"hairColor,omitempty" yaml:"hairColor" validate:"omitempty,color"`
	Height      float64        `json:"height" yaml:"height" validate:"gt=0"`
	Nationality *Country       `json:"nationality,omitempty" yaml:"nationality" validate:"omitempty,country"`
	Location    LocationRef    `json:"location" yaml:"location"`
}

// NormalizeName returns the key used for case-insensitive name comparison.
// It folds with Unicode simple case mapping, which agrees with PostgreSQL
// lower() under a UTF-8 database for the names the registry accepts. The
// unique index on lower(name) still rejects any pair the two disagree on.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// PersonFilter narrows person listings.
type PersonFilter struct {
	Name     string
	EyeColor Color
	Limit    int
	Offset   int
}
