// internal/dispatcher/resolve.go
package dispatcher

import (
	"math/rand/v2"
	"strings"
	"time"

	"github-streak-manager/internal/schedule"
)

const dateToken = "{{date}}"

// Resolver picks the concrete message and time for each date of a bulk request.
type Resolver struct {
	template string
	messages []string
	clock    schedule.Clock
	clocks   []schedule.Clock
	intn     func(n int) int
}

// NewResolver builds a Resolver. intn returns a uniform value in [0, n); nil uses math/rand/v2.
func NewResolver(template string, messages []string, clock schedule.Clock, clocks []schedule.Clock, intn func(n int) int) *Resolver {
	if intn == nil {
		intn = rand.IntN
	}
	return &Resolver{
		template: template,
		messages: messages,
		clock:    clock,
		clocks:   clocks,
		intn:     intn,
	}
}

// Time combines date with the configured time of day, or a random candidate when any are set.
func (r *Resolver) Time(date time.Time) time.Time {
	c := r.clock
	if len(r.clocks) > 0 {
		c = r.clocks[r.intn(len(r.clocks))]
	}
	return c.On(date)
}

// Message renders the template, or a random candidate when any are set, for date.
func (r *Resolver) Message(date time.Time) string {
	tmpl := r.template
	if len(r.messages) > 0 {
		tmpl = r.messages[r.intn(len(r.messages))]
	}
	return strings.ReplaceAll(tmpl, dateToken, schedule.FormatDate(date))
}
