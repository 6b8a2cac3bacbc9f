package scales

import (
	"context"
	"time"

	"github.com/Velocidex/ordereddict"
	"github.com/Velocidex/ttlcache/v2"
	"www.velocidex.com/golang/basilisk/config"
	"www.velocidex.com/golang/basilisk/errors"
	"www.velocidex.com/golang/basilisk/records"
	"www.velocidex.com/golang/basilisk/scales/schema"
	"www.velocidex.com/golang/basilisk/subjects"
)

type InterfaceType string

const (
	// Pulls fetch data about the subject from an external system and
	// are cached.
	PULL InterfaceType = "pull"

	// Pushes send the subject out and always run.
	PUSH InterfaceType = "push"
)

type InterfaceHandler func(ctx context.Context,
	args map[string]interface{},
	handle *subjects.Handle) (*ordereddict.Dict, error)

type InterfaceSpec struct {
	Name string
	Type InterfaceType
	Args *schema.Spec
	Info string

	Handler   InterfaceHandler
	Markdown  Reformatter
	Plaintext Reformatter
}

// The Interface capability talks to external systems (sandboxes,
// reputation services) synchronously - it never goes through the
// dispatcher. Pull results are cached for a short period to spare
// the remote end.
type Interface struct {
	specs []*InterfaceSpec
	cache *ttlcache.Cache
}

func NewInterface(specs ...*InterfaceSpec) *Interface {
	cache := ttlcache.NewCache()
	cache.SetTTL(10 * time.Minute)
	cache.SkipTTLExtensionOnHit(true)

	return &Interface{specs: specs, cache: cache}
}

func (self *Interface) Get(name string) (*InterfaceSpec, error) {
	for _, spec := range self.specs {
		if spec.Name == name {
			return spec, nil
		}
	}

	return nil, errors.NewNotFoundError("no such interface entry %v", name)
}

func (self *Interface) List() []*InterfaceSpec {
	return self.specs
}

// Invoke validates and runs an interface entry. Pull results are
// cached under (digest, name, normalized args).
func (self *Interface) Invoke(
	ctx context.Context,
	config_obj *config.Config,
	name string,
	args map[string]interface{},
	handle *subjects.Handle) (*ordereddict.Dict, error) {

	spec, err := self.Get(name)
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

	cache_key := handle.Subject.Sha256Digest + "/" + name + "/" +
		records.NormalizeArgs(validated)

	if spec.Type == PULL {
		cached_any, err := self.cache.Get(cache_key)
		if err == nil {
			cached, ok := cached_any.(*ordereddict.Dict)
			if ok {
				return cached, nil
			}
		}
	}

	result, err := spec.Handler(ctx, validated, handle)
	if err != nil {
		return nil, err
	}

	if spec.Type == PULL {
		self.cache.Set(cache_key, result)
	}

	return result, nil
}

func (self *Interface) Close() {
	self.cache.Close()
}
