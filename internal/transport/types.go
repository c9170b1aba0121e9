package transport

import "context"

type UpdateKind string

const (
	// UpdateCommand is a chat-input (slash) command invocation.
	UpdateCommand UpdateKind = "command"
	// UpdateOther covers every interaction the bot does not act on
	// (components, autocomplete, modals, context-menu commands).
	UpdateOther UpdateKind = "other"
)

type Update struct {
	Kind        UpdateKind
	Interaction *Interaction
}

// Interaction is a single inbound invocation. Options holds the string
// options exactly as supplied by the caller; absent options have no key.
type Interaction struct {
	ID    string
	Token string
	AppID string

	GuildID   string
	ChannelID string
	UserID    string
	Username  string

	Command string
	Options map[string]string
}

// Option returns the named option and whether it was supplied.
func (i *Interaction) Option(name string) (string, bool) {
	if i == nil || i.Options == nil {
		return "", false
	}
	v, ok := i.Options[name]
	return v, ok
}

type ChannelTarget struct {
	ChannelID string
}

type SendOptions struct {
	SuppressEmbeds bool
	Ephemeral      bool
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	// Reply sends the initial response to an interaction.
	Reply(ctx context.Context, in *Interaction, text string, opt *SendOptions) error
	SendText(ctx context.Context, to ChannelTarget, text string, opt *SendOptions) error
}

// Choice is one enumerated value of a string option.
type Choice struct {
	Name  string
	Value string
}

type OptionSpec struct {
	Name        string
	Description string
	Required    bool
	Choices     []Choice
}

// CommandSpec declares a slash command with string options.
type CommandSpec struct {
	Name        string
	Description string
	Options     []OptionSpec
}

type RegisteredCommand struct {
	ID   string
	Name string
}

// CommandRegistrar is implemented by adapters whose platform keeps a
// server-side command registry. Registration is a global upsert by name.
type CommandRegistrar interface {
	RegisterCommands(ctx context.Context, appID string, cmds []CommandSpec) ([]RegisteredCommand, error)
}
