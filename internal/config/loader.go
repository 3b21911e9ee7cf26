package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds the configuration. Values from the YAML file at path (skipped
// when path is empty) override the defaults; environment variables override
// both. The result is validated.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, wrapConfigError(fmt.Sprintf("failed to load config from %q", path), err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, wrapConfigError("failed to load environment", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, wrapConfigError("failed to parse config", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps a recognized environment variable to its koanf key. Unknown
// variables map to "" and are skipped.
func envKey(name string) string {
	return keyByEnv[name]
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("koanf"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return wrapConfigError("invalid configuration", err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describe(fe))
	}
	return &ConfigError{message: "invalid configuration: " + strings.Join(msgs, "; "), cause: err}
}

// describe renders a field error using the environment variable name.
func describe(fe validator.FieldError) string {
	// Namespace is "Config.<section>.<field>"; drop the struct name.
	key := fe.Namespace()
	if i := strings.IndexByte(key, '.'); i >= 0 {
		key = key[i+1:]
	}
	name := key
	if e, ok := envByKey[key]; ok {
		name = e
	}

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s must be set", name)
	case "required_if":
		return fmt.Sprintf("%s must be set when %s", name, fe.Param())
	case "ltefield":
		return fmt.Sprintf("%s must not exceed %s", name, fe.Param())
	case "file":
		return fmt.Sprintf("%s must name an existing file", name)
	default:
		return fmt.Sprintf("%s failed %s=%s (got %v)", name, fe.Tag(), fe.Param(), fe.Value())
	}
}
