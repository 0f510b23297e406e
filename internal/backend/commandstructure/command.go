package commandstructure

// Command is one step of the submission image pipeline. Execute receives the
// encoded image produced by the previous step and returns a new encoding.
type Command interface {
	Name() string
	Execute(imageData []byte) ([]byte, error)
}

// CommandFactory builds a command from its YAML parameters.
type CommandFactory func(params map[string]any) (Command, error)

// CommandConfig names a registered command and carries its parameters.
type CommandConfig struct {
	Name   string
	Params map[string]any
}
