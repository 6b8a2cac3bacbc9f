package scales

import (
	"context"

	"www.velocidex.com/golang/basilisk/config"
	"www.velocidex.com/golang/basilisk/scales/schema"
)

// UploadHandler fetches an artifact from somewhere (a URL, a remote
// share) into the staging directory and returns the name of the file
// it wrote there.
type UploadHandler func(ctx context.Context,
	args map[string]interface{},
	staging_dir string) (string, error)

// The Upload capability acquires new subjects from external sources
// instead of a direct byte upload.
type Upload struct {
	Args    *schema.Spec
	Info    string
	Handler UploadHandler
}

func NewUpload(args *schema.Spec, info string, handler UploadHandler) *Upload {
	return &Upload{Args: args, Info: info, Handler: handler}
}

// Fetch validates the arguments and runs the handler. The returned
// name is relative to the staging directory.
func (self *Upload) Fetch(
	ctx context.Context,
	config_obj *config.Config,
	args map[string]interface{},
	staging_dir string) (string, error) {

	arg_spec := self.Args
	if arg_spec == nil {
		arg_spec = schema.NewSpec()
	}

	validated, err := arg_spec.Validate(args)
	if err != nil {
		return "", err
	}

	return self.Handler(ctx, validated, staging_dir)
}
