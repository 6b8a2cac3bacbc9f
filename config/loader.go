package config

import (
	"fmt"
	"os"
)

type loaderFunction struct {
	name        string
	loader_func func(self *Loader) (*Config, error)
}

type validatorFunction struct {
	name      string
	validator func(self *Loader, config_obj *Config) error
}

// A Loader builds a validated Config from an ordered list of possible
// sources. The first source that yields a config wins. Each With*
// directive returns a copy so partially built loaders can be shared.
type Loader struct {
	verbose bool

	loaders    []loaderFunction
	validators []validatorFunction
}

func NewLoader() *Loader {
	return &Loader{}
}

func (self *Loader) Copy() *Loader {
	return &Loader{
		verbose:    self.verbose,
		loaders:    append([]loaderFunction{}, self.loaders...),
		validators: append([]validatorFunction{}, self.validators...),
	}
}

func (self *Loader) WithFileLoader(filename string) *Loader {
	if filename == "" {
		return self
	}

	self = self.Copy()
	self.loaders = append(self.loaders, loaderFunction{
		name: "WithFileLoader",
		loader_func: func(self *Loader) (*Config, error) {
			return LoadConfig(filename)
		}})
	return self
}

func (self *Loader) WithEnvLoader(env_var string) *Loader {
	self = self.Copy()
	self.loaders = append(self.loaders, loaderFunction{
		name: "WithEnvLoader",
		loader_func: func(self *Loader) (*Config, error) {
			env_config := os.Getenv(env_var)
			if env_config != "" {
				return LoadConfig(env_config)
			}
			return nil, fmt.Errorf("env var %v is not set", env_var)
		}})
	return self
}

// WithNullLoader falls back to the built in defaults. Usually last.
func (self *Loader) WithNullLoader() *Loader {
	self = self.Copy()
	self.loaders = append(self.loaders, loaderFunction{
		name: "WithNullLoader",
		loader_func: func(self *Loader) (*Config, error) {
			return GetDefaultConfig(), nil
		}})
	return self
}

func (self *Loader) WithVerbose(verbose bool) *Loader {
	self = self.Copy()
	self.verbose = verbose
	return self
}

func (self *Loader) WithCustomValidator(
	name string, validator func(config_obj *Config) error) *Loader {

	self = self.Copy()
	self.validators = append(self.validators, validatorFunction{
		name: name,
		validator: func(self *Loader, config_obj *Config) error {
			return validator(config_obj)
		}})
	return self
}

func (self *Loader) Validate(config_obj *Config) error {
	if self.verbose && config_obj.Logging != nil {
		config_obj.Logging.Level = "debug"
	}

	err := ValidateConfig(config_obj)
	if err != nil {
		return err
	}

	for _, validator := range self.validators {
		err := validator.validator(self, config_obj)
		if err != nil {
			return fmt.Errorf("%v: %w", validator.name, err)
		}
	}

	return nil
}

func (self *Loader) LoadAndValidate() (*Config, error) {
	errs := []error{}
	for _, loader := range self.loaders {
		config_obj, err := loader.loader_func(self)
		if err == nil {
			return config_obj, self.Validate(config_obj)
		}
		errs = append(errs, fmt.Errorf("%v: %w", loader.name, err))
	}

	return nil, fmt.Errorf("unable to load config: %v", errs)
}
