package scales

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"testing"

	"github.com/Velocidex/ordereddict"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"www.velocidex.com/golang/basilisk/config"
	"www.velocidex.com/golang/basilisk/errors"
	"www.velocidex.com/golang/basilisk/file_store/memory"
	"www.velocidex.com/golang/basilisk/scales/schema"
	"www.velocidex.com/golang/basilisk/subjects"
)

func testHandle(t *testing.T, data []byte) *subjects.Handle {
	config_obj := config.GetDefaultConfig()

	dirname, err := ioutil.TempDir("", "basilisk_test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dirname) })
	config_obj.CacheDirectory = dirname

	files := memory.NewMemoryFileStore()
	require.NoError(t, files.Put("abcd", bytes.NewReader(data)))

	handle, err := subjects.NewHandle(config_obj, files,
		subjects.NewSubject("abcd", subjects.FILE, "sample"))
	require.NoError(t, err)
	t.Cleanup(handle.Close)

	return handle
}

func echoDefinition(check func(*subjects.Handle) error) *Definition {
	return &Definition{
		Name:        "echo",
		Description: "test scale",
		Version:     "1.0",
		Supports:    []subjects.FileType{subjects.FILE},
		Commands: func(config_obj *config.Config) (*Commands, error) {
			return NewCommands(check,
				&CommandSpec{
					Name: "say",
					Args: schema.NewSpec(
						&schema.Field{
							Name: "word", Kind: schema.STRING,
							Required: true}),
					Handler: func(ctx context.Context,
						args map[string]interface{},
						handle *subjects.Handle,
						opts *InvocationOptions) (interface{}, error) {
						return ordereddict.NewDict().
							Set("word", args["word"]), nil
					},
					Plaintext: func(output *ordereddict.Dict) (string, error) {
						word, _ := output.GetString("word")
						return word, nil
					},
				},
				&CommandSpec{
					Name:    "broken",
					Autorun: true,
					Mime:    "application/x-dosexec",
					Handler: func(ctx context.Context,
						args map[string]interface{},
						handle *subjects.Handle,
						opts *InvocationOptions) (interface{}, error) {
						return "a bare string", nil
					},
				},
			), nil
		},
	}
}

func TestInvokePipeline(t *testing.T) {
	config_obj := config.GetDefaultConfig()
	handle := testHandle(t, []byte("x"))

	scale, err := echoDefinition(nil).Build(config_obj)
	require.NoError(t, err)

	commands, err := scale.GetCommands()
	require.NoError(t, err)

	output, err := commands.Invoke(context.Background(), config_obj,
		"say", map[string]interface{}{"word": "hello"}, handle, nil)
	require.NoError(t, err)

	word, _ := output.GetString("word")
	assert.Equal(t, "hello", word)

	// Validation failures are itemized.
	_, err = commands.Invoke(context.Background(), config_obj,
		"say", map[string]interface{}{}, handle, nil)
	assert.True(t, errors.IsValidation(err))

	// Unknown commands are not found.
	_, err = commands.Invoke(context.Background(), config_obj,
		"missing", nil, handle, nil)
	assert.True(t, errors.IsNotFound(err))

	// Unstructured outputs violate the type contract.
	_, err = commands.Invoke(context.Background(), config_obj,
		"broken", nil, handle, nil)
	assert.True(t, errors.IsTypeContract(err))
}

func TestReadinessCheck(t *testing.T) {
	config_obj := config.GetDefaultConfig()
	handle := testHandle(t, []byte("x"))

	scale, err := echoDefinition(func(handle *subjects.Handle) error {
		return errors.NewWarning("not a PE file")
	}).Build(config_obj)
	require.NoError(t, err)

	commands, _ := scale.GetCommands()
	_, err = commands.Invoke(context.Background(), config_obj,
		"say", map[string]interface{}{"word": "x"}, handle, nil)
	assert.True(t, errors.IsWarning(err))
	assert.Equal(t, "not a PE file", err.Error())
}

func TestBuildSkipsScaleErrorCapability(t *testing.T) {
	config_obj := config.GetDefaultConfig()

	definition := echoDefinition(nil)
	definition.Interface = func(config_obj *config.Config) (*Interface, error) {
		return nil, errors.NewScaleError("no API key configured")
	}

	scale, err := definition.Build(config_obj)
	require.NoError(t, err)

	// Commands still work, the interface is simply absent.
	_, err = scale.GetCommands()
	assert.NoError(t, err)

	_, err = scale.GetInterface()
	assert.True(t, errors.IsUnsupported(err))
}

func TestBuildFailsOnOtherErrors(t *testing.T) {
	config_obj := config.GetDefaultConfig()

	definition := echoDefinition(nil)
	definition.Upload = func(config_obj *config.Config) (*Upload, error) {
		return nil, fmt.Errorf("programming error")
	}

	_, err := definition.Build(config_obj)
	assert.Error(t, err)
}

func TestRegistrySelection(t *testing.T) {
	config_obj := config.GetDefaultConfig()

	reg_mu.Lock()
	saved_builtin := builtin_definitions
	saved_packaged := packaged_definitions
	builtin_definitions = nil
	packaged_definitions = nil
	reg_mu.Unlock()
	defer func() {
		reg_mu.Lock()
		builtin_definitions = saved_builtin
		packaged_definitions = saved_packaged
		reg_mu.Unlock()
	}()

	RegisterBuiltin(echoDefinition(nil))

	other := echoDefinition(nil)
	other.Name = "other"
	RegisterBuiltin(other)

	// A packaged definition with the same name overrides builtin.
	override := echoDefinition(nil)
	override.Description = "packaged override"
	RegisterPackaged(override)

	registry := NewRegistry(config_obj)

	// nil selection loads everything.
	require.NoError(t, registry.Load(nil))
	infos := registry.List(subjects.ANY)
	require.Len(t, infos, 2)

	scale, err := registry.Get("echo", subjects.ANY)
	require.NoError(t, err)
	assert.Equal(t, "packaged override", scale.Description)

	// Empty selection loads nothing.
	require.NoError(t, registry.Load([]string{}))
	assert.Empty(t, registry.List(subjects.ANY))

	// Explicit selection loads only the named scales.
	require.NoError(t, registry.Load([]string{"other"}))
	_, err = registry.Get("echo", subjects.ANY)
	assert.True(t, errors.IsNotFound(err))
	_, err = registry.Get("other", subjects.ANY)
	assert.NoError(t, err)
}

func TestRegistryFileTypeSupport(t *testing.T) {
	config_obj := config.GetDefaultConfig()

	reg_mu.Lock()
	saved_builtin := builtin_definitions
	saved_packaged := packaged_definitions
	builtin_definitions = nil
	packaged_definitions = nil
	reg_mu.Unlock()
	defer func() {
		reg_mu.Lock()
		builtin_definitions = saved_builtin
		packaged_definitions = saved_packaged
		reg_mu.Unlock()
	}()

	RegisterBuiltin(echoDefinition(nil))

	registry := NewRegistry(config_obj)
	require.NoError(t, registry.Load(nil))

	_, err := registry.Get("echo", subjects.FILE)
	assert.NoError(t, err)

	_, err = registry.Get("echo", subjects.MEMORY)
	assert.True(t, errors.IsUnsupported(err))

	assert.Len(t, registry.List(subjects.FILE), 1)
	assert.Empty(t, registry.List(subjects.MEMORY))

	autoruns := registry.Autoruns(subjects.FILE)
	require.Len(t, autoruns, 1)
	assert.Equal(t, "broken", autoruns[0].Command)
	assert.Equal(t, "application/x-dosexec", autoruns[0].Mime)
}

func TestFormat(t *testing.T) {
	raw := []byte(`{"word":"hello"}`)

	plaintext := func(output *ordereddict.Dict) (string, error) {
		word, _ := output.GetString("word")
		return word, nil
	}
	markdown := func(output *ordereddict.Dict) (string, error) {
		word, _ := output.GetString("word")
		return "# " + word, nil
	}

	// json passes through unchanged.
	result, err := Format(FORMAT_JSON, markdown, plaintext, raw)
	require.NoError(t, err)
	assert.Equal(t, string(raw), result)

	result, err = Format(FORMAT_PLAINTEXT, markdown, plaintext, raw)
	require.NoError(t, err)
	assert.Equal(t, "hello", result)

	result, err = Format(FORMAT_MARKDOWN, markdown, plaintext, raw)
	require.NoError(t, err)
	assert.Equal(t, "# hello", result)

	// Missing renderers are unsupported.
	_, err = Format(FORMAT_MARKDOWN, nil, plaintext, raw)
	assert.True(t, errors.IsUnsupported(err))

	// Error outputs bypass the renderers.
	error_raw := []byte(`{"error":"worker failed please check log"}`)
	result, err = Format(FORMAT_MARKDOWN, markdown, plaintext, error_raw)
	require.NoError(t, err)
	assert.Equal(t, "**worker failed please check log**", result)

	result, err = Format(FORMAT_PLAINTEXT, nil, nil, error_raw)
	require.NoError(t, err)
	assert.Equal(t, "worker failed please check log", result)
}

func TestInterfacePullCaching(t *testing.T) {
	config_obj := config.GetDefaultConfig()
	handle := testHandle(t, []byte("x"))

	calls := 0
	iface := NewInterface(&InterfaceSpec{
		Name: "reputation",
		Type: PULL,
		Handler: func(ctx context.Context,
			args map[string]interface{},
			handle *subjects.Handle) (*ordereddict.Dict, error) {
			calls++
			return ordereddict.NewDict().Set("score", calls), nil
		},
	})
	defer iface.Close()

	_, err := iface.Invoke(context.Background(), config_obj,
		"reputation", nil, handle)
	require.NoError(t, err)

	_, err = iface.Invoke(context.Background(), config_obj,
		"reputation", nil, handle)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
}
