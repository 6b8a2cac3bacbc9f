package scales

import (
	"context"

	"github.com/Velocidex/ordereddict"
	"www.velocidex.com/golang/basilisk/config"
	"www.velocidex.com/golang/basilisk/errors"
	"www.velocidex.com/golang/basilisk/scales/schema"
	"www.velocidex.com/golang/basilisk/subjects"
)

// Submitter lets command handlers register artifacts they derive
// from the subject (an unpacked payload, a carved file) as new
// subjects with provenance links.
type Submitter interface {
	SubmitDerived(ctx context.Context,
		parent *subjects.Subject,
		name string, data []byte, tag string) (*subjects.Subject, error)
}

// InvocationOptions carries the per-invocation collaborators a
// handler may use.
type InvocationOptions struct {
	// Child OS processes the handler spawns must be registered here
	// so a timeout can kill them.
	Tracker *ProcessTracker

	Submitter Submitter

	// Private scratch directory, removed after the invocation.
	StagingDir string
}

type CommandHandler func(ctx context.Context,
	args map[string]interface{},
	handle *subjects.Handle,
	opts *InvocationOptions) (interface{}, error)

// Reformatter renders a command's structured output for humans.
type Reformatter func(output *ordereddict.Dict) (string, error)

type CommandSpec struct {
	Name string
	Args *schema.Spec
	Info string

	// Exact mime type which triggers this command automatically on
	// ingestion.
	Mime    string
	Autorun bool

	Handler   CommandHandler
	Markdown  Reformatter
	Plaintext Reformatter
}

// The Commands capability is an ordered set of named commands plus an
// optional readiness check shared by all of them.
type Commands struct {
	// check runs before every command. A WARNING error is a
	// recoverable condition (the file is not actually a PE) - the
	// invocation is recorded failed and the worker moves on. Any
	// other error is fatal for the invocation.
	check func(handle *subjects.Handle) error

	specs []*CommandSpec
}

func NewCommands(check func(handle *subjects.Handle) error,
	specs ...*CommandSpec) *Commands {
	return &Commands{check: check, specs: specs}
}

func (self *Commands) Get(name string) (*CommandSpec, error) {
	for _, spec := range self.specs {
		if spec.Name == name {
			return spec, nil
		}
	}

	return nil, errors.NewNotFoundError("no such command %v", name)
}

func (self *Commands) List() []*CommandSpec {
	return self.specs
}

// Invoke runs the full command pipeline: argument validation,
// readiness check, handler execution and the output type contract.
func (self *Commands) Invoke(
	ctx context.Context,
	config_obj *config.Config,
	command string,
	args map[string]interface{},
	handle *subjects.Handle,
	opts *InvocationOptions) (*ordereddict.Dict, error) {

	spec, err := self.Get(command)
	if err != nil {
		return nil, err
	}

	arg_spec := spec.Args
	if arg_spec == nil {
		arg_spec = schema.NewSpec()
	}

	validated, err := arg_spec.Validate(args)
	if err != nil {
		return nil, err
	}

	if self.check != nil {
		err := self.check(handle)
		if err != nil {
			if errors.IsWarning(err) {
				return nil, err
			}
			return nil, errors.NewCommandError(
				"readiness check failed: %v", err)
		}
	}

	if opts == nil {
		opts = &InvocationOptions{}
	}

	raw, err := spec.Handler(ctx, validated, handle, opts)
	if err != nil {
		return nil, err
	}

	return contractOutput(spec.Name, raw)
}

// contractOutput enforces that handlers return structured data. A
// bare string or number is always a plugin bug.
func contractOutput(command string, raw interface{}) (*ordereddict.Dict, error) {
	switch t := raw.(type) {
	case *ordereddict.Dict:
		return t, nil

	case map[string]interface{}:
		result := ordereddict.NewDict()
		for k, v := range t {
			result.Set(k, v)
		}
		return result, nil

	case []interface{}:
		return ordereddict.NewDict().Set("rows", t), nil

	case []*ordereddict.Dict:
		rows := make([]interface{}, 0, len(t))
		for _, row := range t {
			rows = append(rows, row)
		}
		return ordereddict.NewDict().Set("rows", rows), nil

	case []string:
		rows := make([]interface{}, 0, len(t))
		for _, row := range t {
			rows = append(rows, row)
		}
		return ordereddict.NewDict().Set("rows", rows), nil
	}

	return nil, errors.NewTypeContractError(
		"command %v returned %T, outputs must be a dict or a list",
		command, raw)
}
