package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"

	"github.com/birbparty/metabase-go/apierr"
	"github.com/birbparty/metabase-go/mbql"
	"github.com/birbparty/metabase-go/models"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// fields are the user-editable attributes shared by collections, cards and
// dashboards. A nil pointer means the attribute is not being set.
type fields struct {
	Name        *string `json:"name" validate:"omitempty,max=255"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
	Color       *string `json:"color" validate:"omitempty,len=7,hexcolor"`
}

// problems collects every violation of one request so callers see them all
// at once.
type problems struct {
	errs *multierror.Error
}

func (p *problems) add(format string, args ...interface{}) {
	p.errs = multierror.Append(p.errs, fmt.Errorf(format, args...))
}

// check runs the field rules. Names must be non-blank when present, and when
// required is set they must be present.
func (p *problems) check(f fields, requireName bool) {
	switch {
	case f.Name == nil && requireName:
		p.add("name is required")
	case f.Name != nil && strings.TrimSpace(*f.Name) == "":
		p.add("name cannot be empty")
	}

	err := validate.Struct(f)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return
	}
	for _, fe := range verrs {
		switch fe.Tag() {
		case "max":
			p.add("%s cannot exceed %s characters", fe.Field(), fe.Param())
		case "len", "hexcolor":
			p.add("%s must be a hex color (#RRGGBB)", fe.Field())
		default:
			p.add("%s is invalid", fe.Field())
		}
	}
}

// result returns a Validation error listing every problem, or nil.
func (p *problems) result(what string) error {
	if p.errs == nil {
		return nil
	}
	p.errs.ErrorFormat = func(errs []error) string {
		msgs := make([]string, len(errs))
		for i, err := range errs {
			msgs[i] = err.Error()
		}
		return strings.Join(msgs, "; ")
	}
	return invalid(p.errs, what)
}

// invalid reports err as a Validation error regardless of its own kind.
func invalid(err error, message string) error {
	e := apierr.Wrap(err, apierr.KindValidation, message)
	e.Kind = apierr.KindValidation
	e.Retryable = false
	return e
}

// checkDatasetQuery requires a dataset_query that decodes as MBQL or native.
// Native template tags may stay unbound; they are filled when the card runs.
func (p *problems) checkDatasetQuery(raw []byte, required bool) {
	if len(raw) == 0 || string(raw) == "null" {
		if required {
			p.add("dataset_query is required")
		}
		return
	}
	dq, err := mbql.ParseDatasetQuery(raw)
	if err != nil {
		p.add("dataset_query is malformed: %v", err)
		return
	}
	if dq.Native != nil && strings.TrimSpace(dq.Native.SQL) == "" {
		p.add("dataset_query has an empty native query")
	}
}

func (p *problems) checkCardType(cfg Config, t models.CardType) {
	if t != "" && !cfg.cardTypeAllowed(t) {
		p.add("card type %q is not allowed", string(t))
	}
}
