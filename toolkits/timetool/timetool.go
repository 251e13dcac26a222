// Package timetool provides a tool that reports the current wall-clock time.
package timetool

import (
	"context"
	"fmt"
	"time"

	"github.com/skosovsky/dispatchy"
)

// Args selects the zone the time is reported in.
type Args struct {
	Timezone string `json:"timezone,omitempty" description:"IANA time zone name, e.g. Europe/Berlin. Defaults to UTC."`
}

// Result carries the formatted time and the zone it is expressed in.
type Result struct {
	Time     string `json:"time" description:"Current time in RFC3339 format"`
	Timezone string `json:"timezone" description:"Zone the time is expressed in"`
}

// CurrentTime reports the current time in the requested zone.
// An unknown zone name is a client error so the model can correct it.
func CurrentTime(_ context.Context, args Args) (Result, error) {
	loc := time.UTC
	if args.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(args.Timezone)
		if err != nil {
			return Result{}, &dispatchy.ClientError{
				Reason: fmt.Sprintf("unknown timezone %q", args.Timezone),
			}
		}
	}
	now := time.Now().In(loc)
	return Result{
		Time:     now.Format(time.RFC3339),
		Timezone: loc.String(),
	}, nil
}

// NewCurrentTimeTool builds the current_time tool.
func NewCurrentTimeTool() (dispatchy.Tool, error) {
	return dispatchy.NewTool("current_time", "Returns the current time in RFC3339 format, optionally in a given IANA time zone.", CurrentTime)
}

// Register builds the toolkit's tools and registers them on reg.
func Register(reg *dispatchy.Registry) error {
	t, err := NewCurrentTimeTool()
	if err != nil {
		return err
	}
	return reg.Register(t)
}
