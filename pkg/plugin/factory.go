// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"bytes"
	"encoding/json"
	"reflect"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// Error codes for factory failures.
const (
	CodeInvalidOptions = "INVALID_OPTIONS"
	CodeInvalidSchema  = "INVALID_SCHEMA"
)

// schemaResource is the resource name options schemas are compiled under.
const schemaResource = "options.schema.json"

// Factory builds plugin instances from raw options.
type Factory interface {
	// New validates options and builds the plugin. A nil Plugin with a nil
	// error means the plugin chose not to run.
	New(options any, sdk SDK) (Plugin, error)

	// Schema returns the JSON Schema of the options New accepts.
	Schema() ([]byte, error)
}

// Build constructs a plugin from typed arguments. Returning nil disables the
// plugin for the current epoch.
type Build[T any] func(args Args[T]) Plugin

// Define returns a Factory whose options are decoded into T.
//
// Options may be given as nil (zero T), as a T or *T, or as any
// JSON-compatible value such as a map loaded from a configuration file. The
// latter is validated against the JSON Schema reflected from T before
// decoding, so unknown keys and wrongly typed values are rejected.
func Define[T any](build Build[T]) Factory {
	f := &typedFactory[T]{build: build}
	f.compile = sync.OnceValues(f.compileSchema)
	return f
}

type typedFactory[T any] struct {
	build   Build[T]
	compile func() (*compiledSchema, error)
}

type compiledSchema struct {
	document []byte
	schema   *jschema.Schema
}

// New implements Factory.
func (f *typedFactory[T]) New(options any, sdk SDK) (Plugin, error) {
	opts, err := f.decode(options)
	if err != nil {
		return nil, err
	}
	return f.build(Args[T]{Options: opts, SDK: sdk}), nil
}

// Schema implements Factory.
func (f *typedFactory[T]) Schema() ([]byte, error) {
	c, err := f.compile()
	if err != nil {
		return nil, err
	}
	return c.document, nil
}

func (f *typedFactory[T]) decode(options any) (T, error) {
	var opts T
	switch v := options.(type) {
	case nil:
		return opts, nil
	case T:
		return v, nil
	case *T:
		if v != nil {
			return *v, nil
		}
		return opts, nil
	}

	c, err := f.compile()
	if err != nil {
		return opts, err
	}

	raw, err := json.Marshal(options)
	if err != nil {
		return opts, oops.Code(CodeInvalidOptions).Wrap(err)
	}

	instance, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return opts, oops.Code(CodeInvalidOptions).Wrap(err)
	}

	if err := c.schema.Validate(instance); err != nil {
		return opts, oops.Code(CodeInvalidOptions).Wrapf(err, "options do not match schema")
	}

	if err := json.Unmarshal(raw, &opts); err != nil {
		return opts, oops.Code(CodeInvalidOptions).Wrap(err)
	}
	return opts, nil
}

func (f *typedFactory[T]) compileSchema() (*compiledSchema, error) {
	r := jsonschema.Reflector{
		DoNotReference: true,
	}
	schema := r.Reflect(new(T))
	schema.Title = reflect.TypeFor[T]().String()

	document, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code(CodeInvalidSchema).Wrap(err)
	}

	var schemaData any
	if err := json.Unmarshal(document, &schemaData); err != nil {
		return nil, oops.Code(CodeInvalidSchema).Wrap(err)
	}

	c := jschema.NewCompiler()
	if err := c.AddResource(schemaResource, schemaData); err != nil {
		return nil, oops.Code(CodeInvalidSchema).Wrap(err)
	}

	compiled, err := c.Compile(schemaResource)
	if err != nil {
		return nil, oops.Code(CodeInvalidSchema).Wrap(err)
	}

	return &compiledSchema{document: document, schema: compiled}, nil
}
