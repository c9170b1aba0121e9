package scheduling

import (
	"errors"
	"fmt"
	"strings"
)

// Command and option names as registered with Discord.
const (
	CommandSchedule = "schedule"
	CommandEnd      = "end"
	CommandEdit     = "edit"
	CommandCancel   = "cancel"

	OptionType   = "type"
	OptionTime   = "time"
	OptionHost   = "host"
	OptionCohost = "cohost"
)

// Session types accepted by the schedule command's type option.
const (
	TypeShift    = "Shift"
	TypeTraining = "Training Session"
)

const (
	noCohost  = "None"
	unchanged = "Unchanged"
)

var ErrUnknownCommand = errors.New("unknown command")

// Invocation is one of Schedule, End, Edit or Cancel.
type Invocation interface {
	Name() string
	invocation()
}

type Schedule struct {
	Type   string
	Time   string
	Host   string
	Cohost string
}

type End struct{}

type Edit struct {
	Time   string
	Cohost string
}

type Cancel struct{}

func (Schedule) Name() string { return CommandSchedule }
func (End) Name() string      { return CommandEnd }
func (Edit) Name() string     { return CommandEdit }
func (Cancel) Name() string   { return CommandCancel }

func (Schedule) invocation() {}
func (End) invocation()      {}
func (Edit) invocation()     {}
func (Cancel) invocation()   {}

// Parse decides the invocation variant for a command name and its options.
// Absent optional fields get their reply defaults here; an option supplied
// as the empty string counts as absent.
func Parse(name string, opts map[string]string) (Invocation, error) {
	get := func(k string) string { return opts[k] }
	orDefault := func(k, def string) string {
		if v := opts[k]; v != "" {
			return v
		}
		return def
	}

	switch strings.TrimSpace(name) {
	case CommandSchedule:
		return Schedule{
			Type:   get(OptionType),
			Time:   get(OptionTime),
			Host:   get(OptionHost),
			Cohost: orDefault(OptionCohost, noCohost),
		}, nil
	case CommandEnd:
		return End{}, nil
	case CommandEdit:
		return Edit{
			Time:   orDefault(OptionTime, unchanged),
			Cohost: orDefault(OptionCohost, unchanged),
		}, nil
	case CommandCancel:
		return Cancel{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
}
