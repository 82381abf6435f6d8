package configstore

import (
	"fmt"
	"regexp"

	"github.com/rakunlabs/webhookgw/internal/pattern"
	"github.com/rakunlabs/webhookgw/internal/render"
)

var (
	serviceRe   = regexp.MustCompile(`^[a-z0-9_-]+$`)
	alignmentRe = regexp.MustCompile(`^(org|device):\d+$`)
	tokenRe     = regexp.MustCompile(`^[A-Za-z0-9]{32}$`)
)

// validate checks a record's static shape: service naming, alignment shape,
// field-pattern grammar and template delimiter balance. It does not check
// token uniqueness; that is the store's job since it requires seeing every
// other record.
func validate(rec Record) error {
	if !serviceRe.MatchString(rec.Service) {
		return fmt.Errorf("%w: service %q must match %s", ErrBadConfig, rec.Service, serviceRe.String())
	}

	if rec.Alignment != "" && !alignmentRe.MatchString(rec.Alignment) {
		return fmt.Errorf("%w: alignment %q must match %s", ErrBadConfig, rec.Alignment, alignmentRe.String())
	}

	if _, err := pattern.Parse(rec.Fields); err != nil {
		return fmt.Errorf("%w: fields: %v", ErrBadConfig, err)
	}

	if _, err := render.Render(rec.Template, pattern.ValueMap{}); err != nil {
		return fmt.Errorf("%w: template: %v", ErrBadConfig, err)
	}

	return nil
}
