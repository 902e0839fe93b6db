// Package location implements CRUD for locations and coordinates, the
// entities persons reference. Deleting a row still referenced by a person
// fails with domain.ErrLinkedEntityExists.
package location
