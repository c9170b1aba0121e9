package scheduling

import kit "shiftbot/internal/transport"

// Commands returns the slash command descriptors the bot registers.
func Commands() []kit.CommandSpec {
	return []kit.CommandSpec{
		{
			Name:        CommandSchedule,
			Description: "Schedule a shift or training session",
			Options: []kit.OptionSpec{
				{
					Name:        OptionType,
					Description: "Shift or Training",
					Required:    true,
					Choices: []kit.Choice{
						{Name: "Shift", Value: TypeShift},
						{Name: "Training", Value: TypeTraining},
					},
				},
				{Name: OptionTime, Description: "Time of the session", Required: true},
				{Name: OptionHost, Description: "Host Roblox username", Required: true},
				{Name: OptionCohost, Description: "Optional Co-Host Roblox username"},
			},
		},
		{
			Name:        CommandEnd,
			Description: "End your scheduled session",
		},
		{
			Name:        CommandEdit,
			Description: "Edit your scheduled session",
			Options: []kit.OptionSpec{
				{Name: OptionTime, Description: "New time (optional)"},
				{Name: OptionCohost, Description: "New Co-Host (optional)"},
			},
		},
		{
			Name:        CommandCancel,
			Description: "Cancel your scheduled session",
		},
	}
}
