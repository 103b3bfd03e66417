// Package people imports people from a delimited file into a database,
// upper-casing their names on the way.
package people

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chararch/minibatch"
)

const (
	JobName  = "importUserJob"
	StepName = "step1"
)

// Person is one line of the input file and one row of the people table
type Person struct {
	FirstName string `bson:"first_name"`
	LastName  string `bson:"last_name"`
}

func (p Person) String() string {
	return fmt.Sprintf("firstName: %s, lastName: %s", p.FirstName, p.LastName)
}

var errEmptyName = errors.New("empty name")

// MapLine maps the fields "first name, last name" of one line
func MapLine(fields []string) (Person, error) {
	p := Person{FirstName: strings.TrimSpace(fields[0]), LastName: strings.TrimSpace(fields[1])}
	if p.FirstName == "" && p.LastName == "" {
		return Person{}, errEmptyName
	}
	return p, nil
}

// UpperCaseProcessor upper-cases both names
type UpperCaseProcessor struct{}

func (UpperCaseProcessor) Process(p Person) (Person, error) {
	transformed := Person{
		FirstName: strings.ToUpper(p.FirstName),
		LastName:  strings.ToUpper(p.LastName),
	}
	minibatch.DefaultLogger.Debug(context.Background(), "converting (%v) into (%v)", p, transformed)
	return transformed, nil
}
