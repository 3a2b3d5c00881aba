package pipeline

import (
	"time"

	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/tacheron/imapc/command"
)

// CommandTrace summarises one disposed command's round trip, using the protobuf well-known
// types for its timestamp and duration. It is a plain Go struct, not itself a protobuf message.
type CommandTrace struct {
	Tag      uint32
	Name     string
	UID      bool
	TraceID  string
	Started  *timestamppb.Timestamp
	Duration *durationpb.Duration
	Status   string
}

func newCommandTrace(c *command.Command, started time.Time, elapsed time.Duration) *CommandTrace {
	return &CommandTrace{
		Tag:      c.Tag(),
		Name:     c.Name,
		UID:      c.UID,
		TraceID:  c.TraceID.String(),
		Started:  timestamppb.New(started),
		Duration: durationpb.New(elapsed),
		Status:   c.State().String(),
	}
}
